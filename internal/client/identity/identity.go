// Package identity is the CLI's identity provider. It signs in against the
// backend's auth endpoints, keeps the tokens in the keychain and reports
// the signed-in principal to the session cache.
package identity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/vehicle-rental-marketplace/internal/apperr"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/client/api"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/client/keychain"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/client/session"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/logger"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/utils"
)

// refreshSkew renews a token this long before it expires.
const refreshSkew = 30 * time.Second

// Authenticator is the part of the API client the provider needs.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (api.AuthResponse, error)
	Register(ctx context.Context, email, password, name string) (api.AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (api.AuthResponse, error)
	Logout(ctx context.Context, refreshToken string) error
}

// Provider implements session.Provider.
type Provider struct {
	auth  Authenticator
	keys  keychain.Keychain
	log   *logrus.Logger
	now   func() time.Time
	ready *session.Ready

	mu      sync.Mutex
	refresh sync.Mutex // serializes token renewal
	current *session.Principal
	started bool
	subs    map[int]func(*session.Principal)
	nextID  int
}

func New(auth Authenticator, keys keychain.Keychain, log *logrus.Logger) *Provider {
	if log == nil {
		log = logger.Discard()
	}
	return &Provider{
		auth:  auth,
		keys:  keys,
		log:   log,
		now:   time.Now,
		ready: session.NewReady(),
		subs:  map[int]func(*session.Principal){},
	}
}

// Start restores the principal from the stored identity token and resolves
// Ready. An unreadable token is discarded.
func (p *Provider) Start() {
	var pr *session.Principal
	raw, err := p.keys.Get(keychain.KeyIdentityToken)
	switch {
	case err == nil:
		if c, _, rerr := utils.ReadIdentityToken(raw); rerr == nil {
			pr = principalOf(c)
		} else {
			p.log.WithError(rerr).Warn("discarding unreadable identity token")
			p.clearTokens()
		}
	case !errors.Is(err, keychain.ErrNotFound):
		p.log.WithError(err).Warn("read identity token")
	}

	p.mu.Lock()
	p.started = true
	p.mu.Unlock()
	p.ready.Resolve()
	p.set(pr)
}

func (p *Provider) Ready() *session.Ready { return p.ready }

// Subscribe registers fn. Once the provider has started fn is also called
// right away with the current principal.
func (p *Provider) Subscribe(fn func(*session.Principal)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	started, cur := p.started, p.current
	p.mu.Unlock()

	if started {
		fn(cur)
	}
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	}
}

// Current returns the signed-in principal, or nil.
func (p *Provider) Current() *session.Principal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *Provider) set(pr *session.Principal) {
	p.mu.Lock()
	p.current = pr
	fns := make([]func(*session.Principal), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(pr)
	}
}

// SignIn exchanges credentials for tokens.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*session.Principal, error) {
	res, err := p.auth.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return p.accept(res)
}

// Register creates an account and signs it in.
func (p *Provider) Register(ctx context.Context, email, password, name string) (*session.Principal, error) {
	res, err := p.auth.Register(ctx, email, password, name)
	if err != nil {
		return nil, err
	}
	return p.accept(res)
}

func (p *Provider) accept(res api.AuthResponse) (*session.Principal, error) {
	if err := p.store(res); err != nil {
		return nil, err
	}
	pr := &session.Principal{UID: res.User.ID, Email: res.User.Email, DisplayName: res.User.Name}
	p.set(pr)
	return pr, nil
}

func (p *Provider) store(res api.AuthResponse) error {
	if err := p.keys.Set(keychain.KeyIdentityToken, res.Access.Token); err != nil {
		return err
	}
	if res.Refresh.Token == "" {
		return nil
	}
	return p.keys.Set(keychain.KeyRefreshToken, res.Refresh.Token)
}

func (p *Provider) clearTokens() {
	for _, k := range []string{keychain.KeyIdentityToken, keychain.KeyRefreshToken} {
		if err := p.keys.Delete(k); err != nil {
			p.log.WithError(err).WithField("key", k).Warn("delete credential")
		}
	}
}

// SignOut forgets the local tokens, reports no principal and revokes the
// refresh token on the server. The revocation error is returned after local
// state is already gone.
func (p *Provider) SignOut(ctx context.Context) error {
	refresh, _ := p.keys.Get(keychain.KeyRefreshToken)
	p.clearTokens()
	p.set(nil)
	if refresh == "" {
		return nil
	}
	return p.auth.Logout(ctx, refresh)
}

// IDToken returns a valid identity token, renewing it with the refresh
// token when it is about to expire.
func (p *Provider) IDToken(ctx context.Context) (string, error) {
	p.refresh.Lock()
	defer p.refresh.Unlock()

	raw, err := p.keys.Get(keychain.KeyIdentityToken)
	if err != nil {
		return "", apperr.Wrap(apperr.KindAuthRequired, "not signed in", err)
	}
	_, exp, err := utils.ReadIdentityToken(raw)
	if err == nil && (exp.IsZero() || p.now().Add(refreshSkew).Before(exp)) {
		return raw, nil
	}

	refresh, kerr := p.keys.Get(keychain.KeyRefreshToken)
	if kerr != nil {
		return "", apperr.Wrap(apperr.KindAuthRequired, "session expired, sign in again", kerr)
	}
	res, err := p.auth.Refresh(ctx, refresh)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindAuthRequired {
			p.clearTokens()
			p.set(nil)
		}
		return "", err
	}
	if _, err := p.accept(res); err != nil {
		return "", err
	}
	return res.Access.Token, nil
}

func principalOf(c utils.IdentityClaims) *session.Principal {
	return &session.Principal{UID: c.UserID, Email: c.Email, DisplayName: c.Name}
}
