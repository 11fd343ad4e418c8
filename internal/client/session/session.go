// Package session caches who is signed in on this client and what they may
// do. The cache is the only writer of the session keys in local state; the
// identity provider reports changes and the cache reconciles them.
package session

import (
    "context"
    "strings"
    "sync"
    "time"

    "github.com/sirupsen/logrus"

    "github.com/iliyamo/vehicle-rental-marketplace/internal/apperr"
    "github.com/iliyamo/vehicle-rental-marketplace/internal/client/localstate"
    "github.com/iliyamo/vehicle-rental-marketplace/internal/logger"
)

// Redirect targets.
const (
    DefaultSignOutTarget = "signin.html"
    DeniedAuth           = "/?denied=auth"
    DeniedHost           = "/?denied=host"
)

// Session is the cached signed-in user.
type Session struct {
    ID       string    `json:"id"`
    Name     string    `json:"name"`
    Email    string    `json:"email"`
    Phone    string    `json:"phone"`
    Role     Role      `json:"role"`
    LastSync time.Time `json:"lastSync"`
}

// Principal is a signed-in user as the identity provider reports it.
type Principal struct {
    UID         string
    Email       string
    DisplayName string
}

// Provider is the identity provider the cache follows.
type Provider interface {
    // Subscribe calls fn with the current principal, or nil, on every
    // provider state change. The returned func unsubscribes.
    Subscribe(fn func(*Principal)) func()
    SignOut(ctx context.Context) error
    IDToken(ctx context.Context) (string, error)
    Ready() *Ready
}

// Navigator performs redirects for the UI layer.
type Navigator interface {
    Redirect(target string)
}

// NavigatorFunc adapts a func to Navigator.
type NavigatorFunc func(target string)

func (f NavigatorFunc) Redirect(target string) { f(target) }

type Options struct {
    State         localstate.Store
    Provider      Provider
    Navigator     Navigator
    SpecialAdmins []string // emails that may toggle admin mode
    Log           *logrus.Logger
    Now           func() time.Time
}

// Cache is the auth state cache. Create one per client with New.
type Cache struct {
    state    localstate.Store
    provider Provider
    nav      Navigator
    specials map[string]bool
    log      *logrus.Logger
    now      func() time.Time

    mu     sync.Mutex
    last   snapshot
    subs   map[int]func(*Session)
    nextID int
    unsub  func()
}

// snapshot is the part of a session whose change is worth announcing.
type snapshot struct {
    present bool
    id      string
    name    string
    email   string
    role    Role
}

func New(o Options) *Cache {
    if o.Log == nil {
        o.Log = logger.Discard()
    }
    if o.Now == nil {
        o.Now = func() time.Time { return time.Now().UTC() }
    }
    if o.Navigator == nil {
        o.Navigator = NavigatorFunc(func(string) {})
    }
    c := &Cache{
        state:    o.State,
        provider: o.Provider,
        nav:      o.Navigator,
        specials: map[string]bool{},
        log:      o.Log,
        now:      o.Now,
        subs:     map[int]func(*Session){},
    }
    for _, e := range o.SpecialAdmins {
        if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
            c.specials[e] = true
        }
    }
    c.last = c.snapshotOf(c.Current())
    return c
}

// Init starts following the provider.
func (c *Cache) Init() {
    if c.provider == nil {
        return
    }
    unsub := c.provider.Subscribe(c.HandleProviderChange)
    c.mu.Lock()
    c.unsub = unsub
    c.mu.Unlock()
}

// Teardown stops following the provider and drops every subscriber.
func (c *Cache) Teardown() {
    c.mu.Lock()
    unsub := c.unsub
    c.unsub = nil
    c.subs = map[int]func(*Session){}
    c.mu.Unlock()
    if unsub != nil {
        unsub()
    }
}

// WaitReady blocks until the provider has restored its state.
func (c *Cache) WaitReady(ctx context.Context, timeout time.Duration) error {
    if c.provider == nil {
        return nil
    }
    return c.provider.Ready().Wait(ctx, timeout)
}

// Current returns the cached session, or nil when there is none. An
// unreadable blob counts as signed out.
func (c *Cache) Current() *Session {
    var s Session
    found, err := localstate.GetJSON(c.state, localstate.KeyCurrentUser, &s)
    if err != nil {
        c.log.WithError(err).Warn("discarding unreadable session")
        return nil
    }
    if !found || s.ID == "" {
        return nil
    }
    return &s
}

func (c *Cache) isSpecial(s *Session) bool {
    return s != nil && c.specials[strings.ToLower(strings.TrimSpace(s.Email))]
}

// adminModeFlag is the stored toggle. It defaults to on.
func (c *Cache) adminModeFlag() bool {
    v, ok := c.state.Get(localstate.KeyAdminMode)
    return !ok || v == "true"
}

func (c *Cache) effectiveRole(s *Session) Role {
    if s == nil {
        return RoleGuest
    }
    if c.isSpecial(s) {
        if c.adminModeFlag() {
            return RoleAdmin
        }
        return RoleHost
    }
    if !s.Role.Valid() {
        return RoleGuest
    }
    return s.Role
}

// EffectiveRole is the role the UI should act on. A special admin with
// admin mode off acts as a host; the stored role is left alone.
func (c *Cache) EffectiveRole() Role { return c.effectiveRole(c.Current()) }

// StoredRole is the role saved with the session, ignoring admin mode.
func (c *Cache) StoredRole() Role {
    if s := c.Current(); s != nil {
        return s.Role
    }
    return RoleGuest
}

func (c *Cache) IsAuthenticated() bool { return c.Current() != nil }

func (c *Cache) IsAdmin() bool {
    s := c.Current()
    return c.effectiveRole(s) == RoleAdmin || (c.isSpecial(s) && c.adminModeFlag())
}

func (c *Cache) IsHost() bool {
    r := c.EffectiveRole()
    return r == RoleHost || r == RoleAdmin
}

// IsSpecialAdmin reports whether the signed-in email is on the allowlist.
func (c *Cache) IsSpecialAdmin() bool { return c.isSpecial(c.Current()) }

// AdminModeEnabled reports the toggle for a special admin, and whether the
// stored role is admin for everyone else.
func (c *Cache) AdminModeEnabled() bool {
    s := c.Current()
    if c.isSpecial(s) {
        return c.adminModeFlag()
    }
    return s != nil && s.Role == RoleAdmin
}

// SetAdminMode flips the toggle. It returns false for users who are not on
// the allowlist. The toggle only changes what the client shows.
func (c *Cache) SetAdminMode(on bool) bool {
    if !c.IsSpecialAdmin() {
        return false
    }
    v := "false"
    if on {
        v = "true"
    }
    if err := c.state.Set(localstate.KeyAdminMode, v); err != nil {
        c.log.WithError(err).Warn("save admin mode")
        return false
    }
    c.notify()
    return true
}

// SetRole changes the stored role of the current session.
func (c *Cache) SetRole(r Role) error {
    if !r.Valid() {
        return apperr.Validation("unknown role", "role")
    }
    s := c.Current()
    if s == nil {
        return apperr.New(apperr.KindAuthRequired, "not signed in")
    }
    s.Role = r
    if err := c.save(s); err != nil {
        return err
    }
    c.notify()
    return nil
}

// UpdateProfile changes the display name of the current session.
func (c *Cache) UpdateProfile(name string) error {
    s := c.Current()
    if s == nil {
        return apperr.New(apperr.KindAuthRequired, "not signed in")
    }
    s.Name = strings.TrimSpace(name)
    if err := c.save(s); err != nil {
        return err
    }
    c.notify()
    return nil
}

func (c *Cache) save(s *Session) error {
    s.LastSync = c.now()
    if err := localstate.SetJSON(c.state, localstate.KeyCurrentUser, s); err != nil {
        return err
    }
    return c.state.Set(localstate.KeyUserRole, string(s.Role))
}

// sessionKeys are removed whenever the provider reports no user.
var sessionKeys = []string{
    localstate.KeyCurrentUser,
    localstate.KeyUserRole,
    localstate.KeyAdminMode,
}

// signOutKeys are removed by an explicit sign-out.
var signOutKeys = append(append([]string{}, sessionKeys...),
    localstate.KeySignedOutIntentionally,
    localstate.KeyForceSignOut,
    localstate.KeyPendingDeletes,
    localstate.KeyVehicleCache,
    localstate.KeyPlanCache,
)

// SignOut clears every piece of local session state, asks the provider to
// sign out and redirects to target. Local state is cleared whether or not
// the provider call succeeds; when it fails the intentional sign-out flag
// keeps the provider's stale user from being adopted again.
func (c *Cache) SignOut(ctx context.Context, target string) {
    if target == "" {
        target = DefaultSignOutTarget
    }
    if err := c.state.Delete(signOutKeys...); err != nil {
        c.log.WithError(err).Warn("clear local session")
    }
    _ = c.state.Set(localstate.KeySignedIn, "false")
    if c.provider != nil {
        if err := c.provider.SignOut(ctx); err != nil {
            c.log.WithError(err).Warn("provider sign-out failed, local session cleared")
            _ = c.state.Set(localstate.KeySignedOutIntentionally, "true")
        }
    }
    c.notify()
    c.nav.Redirect(target)
}

// ClearSignOutFlag is called before an explicit sign-in so the next
// provider report is adopted.
func (c *Cache) ClearSignOutFlag() {
    _ = c.state.Delete(localstate.KeySignedOutIntentionally, localstate.KeyForceSignOut)
}

// HandleProviderChange reconciles the cache with a provider report. A
// signed-in principal is adopted unless the user signed out on purpose;
// anything else clears the session. Repeated reports with the same
// principal leave the same state behind.
func (c *Cache) HandleProviderChange(p *Principal) {
    _ = c.state.Delete(localstate.KeyForceSignOut)
    intentional, _ := c.state.Get(localstate.KeySignedOutIntentionally)

    if p != nil && p.UID != "" && intentional != "true" {
        if err := c.adopt(p); err != nil {
            c.log.WithError(err).Warn("save session")
        }
    } else {
        if err := c.state.Delete(sessionKeys...); err != nil {
            c.log.WithError(err).Warn("clear session")
        }
        _ = c.state.Set(localstate.KeySignedIn, "false")
    }
    c.notify()
}

func (c *Cache) adopt(p *Principal) error {
    email := strings.ToLower(strings.TrimSpace(p.Email))
    s := &Session{ID: p.UID, Email: email, Name: strings.TrimSpace(p.DisplayName), Role: RoleHost}
    if s.Name == "" {
        s.Name, _, _ = strings.Cut(email, "@")
    }
    if prev := c.Current(); prev != nil && prev.ID == p.UID {
        s.Role = prev.Role
        s.Phone = prev.Phone
    } else if c.specials[email] {
        s.Role = RoleAdmin
    }
    if err := c.save(s); err != nil {
        return err
    }
    return c.state.Set(localstate.KeySignedIn, "true")
}

// Subscribe registers fn to be called once per session transition. A
// transition is a change of id, name, email or effective role.
func (c *Cache) Subscribe(fn func(*Session)) func() {
    c.mu.Lock()
    defer c.mu.Unlock()
    id := c.nextID
    c.nextID++
    c.subs[id] = fn
    return func() {
        c.mu.Lock()
        defer c.mu.Unlock()
        delete(c.subs, id)
    }
}

func (c *Cache) snapshotOf(s *Session) snapshot {
    if s == nil {
        return snapshot{}
    }
    return snapshot{present: true, id: s.ID, name: s.Name, email: s.Email, role: c.effectiveRole(s)}
}

func (c *Cache) notify() {
    s := c.Current()
    snap := c.snapshotOf(s)

    c.mu.Lock()
    if snap == c.last {
        c.mu.Unlock()
        return
    }
    c.last = snap
    fns := make([]func(*Session), 0, len(c.subs))
    for _, fn := range c.subs {
        fns = append(fns, fn)
    }
    c.mu.Unlock()

    for _, fn := range fns {
        fn(s)
    }
}

// RequireAuth redirects to the public page when nobody is signed in.
func (c *Cache) RequireAuth() bool {
    if !c.IsAuthenticated() {
        c.nav.Redirect(DeniedAuth)
        return false
    }
    return true
}

// RequireHost redirects to the public page unless the user is a host or an
// admin.
func (c *Cache) RequireHost() bool {
    if !c.IsHost() && !c.IsAdmin() {
        c.nav.Redirect(DeniedHost)
        return false
    }
    return true
}

func (c *Cache) SafetyAcknowledged() bool {
    v, _ := c.state.Get(localstate.KeySafetyAcknowledged)
    return v == "true"
}

func (c *Cache) AcknowledgeSafety() error {
    return c.state.Set(localstate.KeySafetyAcknowledged, "true")
}
