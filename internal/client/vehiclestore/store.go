// Package vehiclestore is the client's offline-tolerant view of the vehicle
// catalog. The remote API is the system of record; a local cache in
// localstate keeps listings readable while the remote is unreachable, and
// deletes that could not reach the remote are queued and retried.
package vehiclestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/iliyamo/vehicle-rental-marketplace/internal/apperr"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/client/localstate"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/client/session"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/logger"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/model"
)

// Defaults.
const (
	DefaultCooldown      = 60 * time.Second
	DefaultRetryInterval = 30 * time.Second
	DefaultProfileTTL    = 5 * time.Minute
)

// User-facing quota messages.
const (
	msgFreeExhausted = "You used your 2 free postings. Upgrade to add more vehicles."
	msgActiveCap     = "You've reached your %s plan limit of %s active vehicles. Please upgrade to a higher plan or deactivate another vehicle first."
	msgEditLimit     = "Free plan allows one edit per vehicle. Upgrade to edit again."
)

// ErrBackoff is returned while the remote is skipped after a failure.
var ErrBackoff = &apperr.Error{Kind: apperr.KindStorageUnavailable, Message: "remote store unreachable, using local data"}

// Remote is the vehicle API the store reconciles with. *api.Client
// satisfies it.
type Remote interface {
	ListVehicles(ctx context.Context, status, ownerID string) ([]model.Vehicle, error)
	GetVehicle(ctx context.Context, id string) (model.Vehicle, error)
	CreateVehicle(ctx context.Context, v model.Vehicle) (model.Vehicle, error)
	UpdateVehicle(ctx context.Context, id string, patch map[string]any) (model.Vehicle, error)
	SetVehicleStatus(ctx context.Context, id, status string) (model.Vehicle, error)
	DeleteVehicle(ctx context.Context, id string) error
	GetUser(ctx context.Context, id string) (model.UserProfile, error)
	IncrementVehiclesCreated(ctx context.Context, id string) (int, error)
}

// Identity reports the signed-in user. *session.Cache satisfies it.
type Identity interface {
	Current() *session.Session
	IsAdmin() bool
}

// Degradation describes one fallback: an operation that could not use the
// remote and was served, or recorded, locally.
type Degradation struct {
	Op  string
	Err error
	At  time.Time
}

// PlanCheck is the outcome of a quota check.
type PlanCheck struct {
	Allowed         bool
	Plan            model.Plan
	ActiveCount     int
	LifetimeCreated int
	Message         string
}

type Options struct {
	Remote        Remote
	Identity      Identity
	State         localstate.Store
	Log           *logrus.Logger
	OnDegraded    func(Degradation)
	Cooldown      time.Duration
	RetryInterval time.Duration
	ProfileTTL    time.Duration
	Now           func() time.Time
}

// Store is the offline-tolerant vehicle store. Create one with New and call
// Init before use.
type Store struct {
	remote        Remote
	identity      Identity
	state         localstate.Store
	log           *logrus.Logger
	onDegraded    func(Degradation)
	now           func() time.Time
	retryInterval time.Duration
	profileTTL    time.Duration
	cb            *gobreaker.CircuitBreaker

	mu       sync.Mutex
	vehicles []model.Vehicle
	lastSync time.Time
	profiles map[string]cachedProfile

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type cachedProfile struct {
	profile model.UserProfile
	at      time.Time
}

// cacheBlob is the persisted form of the vehicle cache.
type cacheBlob struct {
	Vehicles []model.Vehicle `json:"vehicles"`
	LastSync time.Time       `json:"lastSync"`
}

// planBlob keeps the last known quota inputs for offline checks.
type planBlob struct {
	UserID          string `json:"userId"`
	Plan            string `json:"plan"`
	VehiclesCreated int    `json:"vehiclesCreated"`
}

func New(o Options) *Store {
	if o.Log == nil {
		o.Log = logger.Discard()
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	if o.Cooldown <= 0 {
		o.Cooldown = DefaultCooldown
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = DefaultRetryInterval
	}
	if o.ProfileTTL <= 0 {
		o.ProfileTTL = DefaultProfileTTL
	}
	s := &Store{
		remote:        o.Remote,
		identity:      o.Identity,
		state:         o.State,
		log:           o.Log,
		onDegraded:    o.OnDegraded,
		now:           o.Now,
		retryInterval: o.RetryInterval,
		profileTTL:    o.ProfileTTL,
		profiles:      map[string]cachedProfile{},
	}
	log := o.Log
	s.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "vehicle-remote",
		MaxRequests: 1,
		Timeout:     o.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).Info("remote availability changed")
		},
	})
	return s
}

// Init loads the cache and starts retrying queued deletes every
// RetryInterval until Teardown.
func (s *Store) Init(ctx context.Context) {
	s.Load()
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(s.retryInterval)
		defer t.Stop()
		s.RetryPendingDeletes(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.RetryPendingDeletes(ctx)
			}
		}
	}()
}

// Teardown stops the retry loop and waits for it to exit.
func (s *Store) Teardown() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// InBackoff reports whether remote calls are currently being skipped.
func (s *Store) InBackoff() bool { return s.cb.State() == gobreaker.StateOpen }

// reachable reports whether err came back from a remote that answered.
// Those errors must not put the store into backoff.
func reachable(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.KindStorageUnavailable, apperr.KindUnknown:
		return false
	}
	return true
}

type answered struct{ err error }

// call runs fn through the breaker. Errors from a remote that answered pass
// through untouched and count as success; anything else is
// StorageUnavailable.
func (s *Store) call(fn func() error) error {
	res, err := s.cb.Execute(func() (interface{}, error) {
		if err := fn(); err != nil {
			if reachable(err) {
				return answered{err}, nil
			}
			return nil, err
		}
		return nil, nil
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return ErrBackoff
	case err != nil:
		if apperr.KindOf(err) == apperr.KindStorageUnavailable {
			return err
		}
		return apperr.Wrap(apperr.KindStorageUnavailable, "remote store unreachable", err)
	}
	if a, ok := res.(answered); ok {
		return a.err
	}
	return nil
}

func (s *Store) degrade(op string, err error) {
	s.log.WithError(err).WithField("op", op).Warn("vehicle store degraded")
	if s.onDegraded != nil {
		s.onDegraded(Degradation{Op: op, Err: err, At: s.now()})
	}
}

// ----- cache -----

// Load reads the persisted cache without starting the retry loop.
func (s *Store) Load() {
	var blob cacheBlob
	if _, err := localstate.GetJSON(s.state, localstate.KeyVehicleCache, &blob); err != nil {
		s.log.WithError(err).Warn("discarding unreadable vehicle cache")
	}
	s.mu.Lock()
	s.vehicles = blob.Vehicles
	s.lastSync = blob.LastSync
	s.mu.Unlock()
}

// saveLocked persists the cache. s.mu must be held.
func (s *Store) saveLocked() {
	s.lastSync = s.now()
	blob := cacheBlob{Vehicles: s.vehicles, LastSync: s.lastSync}
	if err := localstate.SetJSON(s.state, localstate.KeyVehicleCache, blob); err != nil {
		s.log.WithError(err).Warn("save vehicle cache")
	}
}

func (s *Store) cached() []model.Vehicle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Vehicle(nil), s.vehicles...)
}

// LastSync is when the cache was last written.
func (s *Store) LastSync() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync
}

// replaceCached swaps every cached vehicle matching drop for fresh.
func (s *Store) replaceCached(drop func(model.Vehicle) bool, fresh []model.Vehicle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool, len(fresh))
	for _, v := range fresh {
		seen[v.ID] = true
	}
	next := append([]model.Vehicle(nil), fresh...)
	for _, v := range s.vehicles {
		if !seen[v.ID] && !drop(v) {
			next = append(next, v)
		}
	}
	s.vehicles = next
	s.saveLocked()
}

func (s *Store) upsertCached(v model.Vehicle) {
	s.replaceCached(func(model.Vehicle) bool { return false }, []model.Vehicle{v})
}

func (s *Store) dropCached(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.vehicles[:0:0]
	for _, v := range s.vehicles {
		if v.ID != id {
			next = append(next, v)
		}
	}
	removed := len(next) != len(s.vehicles)
	s.vehicles = next
	s.saveLocked()
	return removed
}

func (s *Store) findCached(id string) (model.Vehicle, bool) {
	for _, v := range s.cached() {
		if v.ID == id {
			return v, true
		}
	}
	return model.Vehicle{}, false
}

// ----- pending deletes -----

func (s *Store) pendingLocked() []string {
	var ids []string
	if _, err := localstate.GetJSON(s.state, localstate.KeyPendingDeletes, &ids); err != nil {
		s.log.WithError(err).Warn("discarding unreadable pending deletes")
		return nil
	}
	return ids
}

// PendingDeletes returns the ids whose remote delete is still outstanding.
func (s *Store) PendingDeletes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingLocked()
}

func (s *Store) pendingSet() map[string]bool {
	out := map[string]bool{}
	for _, id := range s.PendingDeletes() {
		out[id] = true
	}
	return out
}

func (s *Store) enqueue(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.pendingLocked()
	for _, p := range ids {
		if p == id {
			return
		}
	}
	if err := localstate.SetJSON(s.state, localstate.KeyPendingDeletes, append(ids, id)); err != nil {
		s.log.WithError(err).Warn("save pending deletes")
	}
}

func (s *Store) dequeue(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.pendingLocked()
	next := ids[:0:0]
	for _, p := range ids {
		if p != id {
			next = append(next, p)
		}
	}
	if len(next) == len(ids) {
		return
	}
	if err := localstate.SetJSON(s.state, localstate.KeyPendingDeletes, next); err != nil {
		s.log.WithError(err).Warn("save pending deletes")
	}
}

// present drops pending deletes and backfills images.
func present(vs []model.Vehicle, pending map[string]bool, keep func(model.Vehicle) bool) []model.Vehicle {
	out := make([]model.Vehicle, 0, len(vs))
	for _, v := range vs {
		if pending[v.ID] || !keep(v) {
			continue
		}
		out = append(out, v.WithImage())
	}
	return out
}

func isActive(v model.Vehicle) bool { return v.Status == model.VehicleActive || v.Status == "" }

// ----- reads -----

// ListActive returns the public listings. When the remote cannot be used the
// cached listings are returned instead and a Degradation is reported.
func (s *Store) ListActive(ctx context.Context) []model.Vehicle {
	var remote []model.Vehicle
	err := s.call(func() (err error) {
		remote, err = s.remote.ListVehicles(ctx, model.VehicleActive, "")
		return err
	})
	if err == nil {
		s.replaceCached(isActive, remote)
		return present(remote, s.pendingSet(), isActive)
	}
	s.degrade("list_active", err)
	return present(s.cached(), s.pendingSet(), isActive)
}

// ListOwned returns ownerID's vehicles, or the signed-in user's when
// ownerID is empty.
func (s *Store) ListOwned(ctx context.Context, ownerID string) []model.Vehicle {
	sess := s.identity.Current()
	if ownerID == "" && sess != nil {
		ownerID = sess.ID
	}
	owned := func(v model.Vehicle) bool { return ownerID != "" && v.Owner() == ownerID }
	if sess == nil || ownerID == "" {
		return present(s.cached(), s.pendingSet(), owned)
	}

	var remote []model.Vehicle
	err := s.call(func() (err error) {
		remote, err = s.remote.ListVehicles(ctx, "", ownerID)
		return err
	})
	if err == nil {
		s.replaceCached(owned, remote)
		return present(remote, s.pendingSet(), owned)
	}
	s.degrade("list_owned", err)
	return present(s.cached(), s.pendingSet(), owned)
}

// Get returns one vehicle, from the remote when possible.
func (s *Store) Get(ctx context.Context, id string) (model.Vehicle, error) {
	if s.pendingSet()[id] {
		return model.Vehicle{}, apperr.New(apperr.KindNotFound, "vehicle not found")
	}
	var v model.Vehicle
	err := s.call(func() (err error) {
		v, err = s.remote.GetVehicle(ctx, id)
		return err
	})
	switch {
	case err == nil:
		s.upsertCached(v)
		return v.WithImage(), nil
	case apperr.KindOf(err) == apperr.KindNotFound:
		s.dropCached(id)
		return model.Vehicle{}, err
	case reachable(err):
		return model.Vehicle{}, err
	}
	s.degrade("get", err)
	if v, ok := s.findCached(id); ok {
		return v.WithImage(), nil
	}
	return model.Vehicle{}, apperr.New(apperr.KindNotFound, "vehicle not found")
}

// Stats summarizes the cached vehicles, excluding pending deletes.
func (s *Store) Stats() model.VehicleStats {
	all := func(model.Vehicle) bool { return true }
	return model.SummarizeVehicles(present(s.cached(), s.pendingSet(), all))
}

// ----- plan -----

// profile returns uid's profile from the in-process cache, the remote, or
// the last persisted plan, in that order.
func (s *Store) profile(ctx context.Context, uid string) model.UserProfile {
	s.mu.Lock()
	cp, ok := s.profiles[uid]
	s.mu.Unlock()
	if ok && s.now().Sub(cp.at) < s.profileTTL {
		return cp.profile
	}

	var p model.UserProfile
	err := s.call(func() (err error) {
		p, err = s.remote.GetUser(ctx, uid)
		return err
	})
	if err == nil {
		s.mu.Lock()
		s.profiles[uid] = cachedProfile{profile: p, at: s.now()}
		s.mu.Unlock()
		blob := planBlob{UserID: uid, Plan: p.Plan, VehiclesCreated: p.VehiclesCreated}
		if err := localstate.SetJSON(s.state, localstate.KeyPlanCache, blob); err != nil {
			s.log.WithError(err).Warn("save plan cache")
		}
		return p
	}
	s.degrade("profile", err)

	var blob planBlob
	if found, _ := localstate.GetJSON(s.state, localstate.KeyPlanCache, &blob); found && blob.UserID == uid {
		return model.UserProfile{ID: uid, Plan: blob.Plan, VehiclesCreated: blob.VehiclesCreated}
	}
	return model.UserProfile{ID: uid, Plan: model.PlanFree}
}

// InvalidateProfile forgets the cached profile of uid.
func (s *Store) InvalidateProfile(uid string) {
	s.mu.Lock()
	delete(s.profiles, uid)
	s.mu.Unlock()
}

// Plan returns the signed-in user's plan.
func (s *Store) Plan(ctx context.Context) (model.Plan, error) {
	sess := s.identity.Current()
	if sess == nil {
		return model.Plan{}, apperr.New(apperr.KindAuthRequired, "not signed in")
	}
	return model.PlanFor(strings.ToLower(s.profile(ctx, sess.ID).Plan)), nil
}

// CheckPlan reports whether the signed-in user may create another vehicle.
// The free plan caps lifetime creations as well as active listings; paid
// plans cap active listings only.
func (s *Store) CheckPlan(ctx context.Context) (PlanCheck, error) {
	sess := s.identity.Current()
	if sess == nil {
		return PlanCheck{}, apperr.New(apperr.KindAuthRequired, "not signed in")
	}
	prof := s.profile(ctx, sess.ID)
	plan := model.PlanFor(strings.ToLower(prof.Plan))

	active := 0
	for _, v := range s.ListOwned(ctx, sess.ID) {
		if v.Status == model.VehicleActive {
			active++
		}
	}

	pc := PlanCheck{Plan: plan, ActiveCount: active, LifetimeCreated: prof.VehiclesCreated}
	if plan.Key == model.PlanFree {
		pc.Allowed = prof.VehiclesCreated < plan.LifetimeCreateLimit && active < plan.ActiveVehicleLimit
	} else {
		pc.Allowed = active < plan.ActiveVehicleLimit
	}
	switch {
	case plan.Key == model.PlanFree && prof.VehiclesCreated >= plan.LifetimeCreateLimit:
		pc.Message = msgFreeExhausted
	case active >= plan.ActiveVehicleLimit:
		pc.Message = fmt.Sprintf(msgActiveCap, plan.Key, plan.LimitLabel())
	}
	return pc, nil
}

// ----- writes -----

// Create saves a new vehicle owned by the signed-in user. The quota is
// checked first; the new listing is always active.
func (s *Store) Create(ctx context.Context, v model.Vehicle) (model.Vehicle, error) {
	sess := s.identity.Current()
	if sess == nil {
		return model.Vehicle{}, apperr.New(apperr.KindAuthRequired, "not signed in")
	}
	pc, err := s.CheckPlan(ctx)
	if err != nil {
		return model.Vehicle{}, err
	}
	if !pc.Allowed {
		return model.Vehicle{}, apperr.New(apperr.KindPlanLimitExceeded, pc.Message)
	}

	v.ID = ""
	v.OwnerID = sess.ID
	v.HostID = sess.ID
	v.Status = model.VehicleActive
	v.EditCount = 0
	if v.HostName == "" {
		v.HostName = sess.Name
	}
	if v.HostEmail == "" {
		v.HostEmail = sess.Email
	}

	var saved model.Vehicle
	err = s.call(func() (err error) {
		saved, err = s.remote.CreateVehicle(ctx, v)
		return err
	})
	if err != nil {
		if !reachable(err) {
			s.degrade("create", err)
			return model.Vehicle{}, apperr.Wrap(apperr.KindStorageUnavailable, "could not save vehicle, try again when online", err)
		}
		return model.Vehicle{}, err
	}
	s.upsertCached(saved)

	if err := s.call(func() error {
		_, err := s.remote.IncrementVehiclesCreated(ctx, sess.ID)
		return err
	}); err != nil {
		s.degrade("increment_created", err)
	}
	s.InvalidateProfile(sess.ID)
	return saved, nil
}

// immutable fields are never sent in an update.
var immutable = []string{"id", "ownerId", "hostId", "createdAt", "updatedAt", "editCount"}

// Update applies patch to a vehicle the caller owns, or any vehicle for an
// admin. Free-plan vehicles may be edited once.
func (s *Store) Update(ctx context.Context, id string, patch map[string]any) (model.Vehicle, error) {
	sess := s.identity.Current()
	if sess == nil {
		return model.Vehicle{}, apperr.New(apperr.KindAuthRequired, "not signed in")
	}
	cur, err := s.Get(ctx, id)
	if err != nil {
		return model.Vehicle{}, err
	}
	if cur.Owner() != sess.ID && !s.identity.IsAdmin() {
		s.log.WithFields(logrus.Fields{"vehicle_id": id, "error_kind": apperr.KindForbidden}).Warn("update refused")
		return model.Vehicle{}, apperr.New(apperr.KindForbidden, "Not authorized to edit this vehicle")
	}
	plan := model.PlanFor(strings.ToLower(s.profile(ctx, sess.ID).Plan))
	if plan.Key == model.PlanFree && cur.EditCount >= 1 {
		return model.Vehicle{}, apperr.New(apperr.KindEditLimitExceeded, msgEditLimit)
	}

	clean := make(map[string]any, len(patch))
	for k, v := range patch {
		clean[k] = v
	}
	for _, k := range immutable {
		delete(clean, k)
	}

	var saved model.Vehicle
	err = s.call(func() (err error) {
		saved, err = s.remote.UpdateVehicle(ctx, id, clean)
		return err
	})
	if err != nil {
		if !reachable(err) {
			s.degrade("update", err)
		}
		return model.Vehicle{}, err
	}
	s.upsertCached(saved)
	return saved, nil
}

// Remove deletes a vehicle. A delete the remote does not complete, whether
// refused or unreachable, is queued for retry and the vehicle leaves the
// cache anyway. It reports
// whether the vehicle was removed from the cache or the remote.
func (s *Store) Remove(ctx context.Context, id string) bool {
	err := s.call(func() error { return s.remote.DeleteVehicle(ctx, id) })
	switch {
	case err == nil:
		s.dequeue(id)
	case apperr.KindOf(err) == apperr.KindNotFound:
		s.dequeue(id)
	default:
		// refused or unreachable, the delete is retried later either way
		s.enqueue(id)
		s.degrade("remove", err)
	}
	fromCache := s.dropCached(id)
	return fromCache || err == nil
}

// SetStatus shows or hides a vehicle. Unknown statuses are refused.
func (s *Store) SetStatus(ctx context.Context, id, status string) bool {
	if !model.ValidVehicleStatus(status) {
		s.log.WithField("status", status).Warn("refusing invalid vehicle status")
		return false
	}
	var saved model.Vehicle
	err := s.call(func() (err error) {
		saved, err = s.remote.SetVehicleStatus(ctx, id, status)
		return err
	})
	if err == nil {
		s.upsertCached(saved)
		return true
	}
	s.degrade("set_status", err)

	s.mu.Lock()
	defer s.mu.Unlock()
	changed := false
	for i := range s.vehicles {
		if s.vehicles[i].ID == id {
			s.vehicles[i].Status = status
			s.vehicles[i].UpdatedAt = s.now()
			changed = true
		}
	}
	if changed {
		s.saveLocked()
	}
	return changed
}

// RetryPendingDeletes retries every queued delete and returns how many
// completed. Nothing is attempted while in backoff.
func (s *Store) RetryPendingDeletes(ctx context.Context) int {
	if s.InBackoff() {
		return 0
	}
	done := 0
	for _, id := range s.PendingDeletes() {
		if ctx.Err() != nil {
			return done
		}
		err := s.call(func() error { return s.remote.DeleteVehicle(ctx, id) })
		if err == nil || apperr.KindOf(err) == apperr.KindNotFound {
			s.dequeue(id)
			done++
			continue
		}
		s.log.WithError(err).WithField("vehicle_id", id).Debug("pending delete still failing")
		if !reachable(err) {
			return done
		}
	}
	return done
}
