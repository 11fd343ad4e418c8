package vehiclestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/vehicle-rental-marketplace/internal/apperr"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/client/localstate"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/client/session"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/model"
)

// fakeRemote behaves like the vehicle API: ids and timestamps are assigned
// on create and the edit counter is advanced on update.
type fakeRemote struct {
	mu       sync.Mutex
	down     bool
	refuse   bool // answer deletes with Forbidden
	calls    int
	seq      int
	vehicles map[string]model.Vehicle
	users    map[string]model.UserProfile
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{vehicles: map[string]model.Vehicle{}, users: map[string]model.UserProfile{}}
}

func (f *fakeRemote) setDown(down bool) {
	f.mu.Lock()
	f.down = down
	f.mu.Unlock()
}

func (f *fakeRemote) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// enter records a call and fails while the remote is down. f.mu is held on
// return and released by the deferred unlock in each method.
func (f *fakeRemote) enter() error {
	f.mu.Lock()
	f.calls++
	if f.down {
		return apperr.Wrap(apperr.KindStorageUnavailable, "failed to connect to server", errors.New("connection refused"))
	}
	return nil
}

func (f *fakeRemote) ListVehicles(_ context.Context, status, ownerID string) ([]model.Vehicle, error) {
	err := f.enter()
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	var out []model.Vehicle
	for _, v := range f.vehicles {
		if (status == "" || v.Status == status) && (ownerID == "" || v.Owner() == ownerID) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRemote) GetVehicle(_ context.Context, id string) (model.Vehicle, error) {
	err := f.enter()
	defer f.mu.Unlock()
	if err != nil {
		return model.Vehicle{}, err
	}
	v, ok := f.vehicles[id]
	if !ok {
		return model.Vehicle{}, apperr.New(apperr.KindNotFound, "vehicle not found")
	}
	return v, nil
}

func (f *fakeRemote) CreateVehicle(_ context.Context, v model.Vehicle) (model.Vehicle, error) {
	err := f.enter()
	defer f.mu.Unlock()
	if err != nil {
		return model.Vehicle{}, err
	}
	f.seq++
	v.ID = fmt.Sprintf("v%d", f.seq)
	v.CreatedAt = time.Now().UTC()
	v.UpdatedAt = v.CreatedAt
	f.vehicles[v.ID] = v
	return v, nil
}

func (f *fakeRemote) UpdateVehicle(_ context.Context, id string, patch map[string]any) (model.Vehicle, error) {
	err := f.enter()
	defer f.mu.Unlock()
	if err != nil {
		return model.Vehicle{}, err
	}
	cur, ok := f.vehicles[id]
	if !ok {
		return model.Vehicle{}, apperr.New(apperr.KindNotFound, "vehicle not found")
	}
	raw, _ := json.Marshal(cur)
	merged := map[string]any{}
	_ = json.Unmarshal(raw, &merged)
	for k, v := range patch {
		merged[k] = v
	}
	raw, _ = json.Marshal(merged)
	var next model.Vehicle
	if err := json.Unmarshal(raw, &next); err != nil {
		return model.Vehicle{}, apperr.Validation(err.Error())
	}
	next.ID, next.OwnerID, next.HostID, next.CreatedAt = cur.ID, cur.OwnerID, cur.HostID, cur.CreatedAt
	next.EditCount = cur.EditCount + 1
	next.UpdatedAt = time.Now().UTC()
	f.vehicles[id] = next
	return next, nil
}

func (f *fakeRemote) SetVehicleStatus(_ context.Context, id, status string) (model.Vehicle, error) {
	err := f.enter()
	defer f.mu.Unlock()
	if err != nil {
		return model.Vehicle{}, err
	}
	v, ok := f.vehicles[id]
	if !ok {
		return model.Vehicle{}, apperr.New(apperr.KindNotFound, "vehicle not found")
	}
	v.Status = status
	f.vehicles[id] = v
	return v, nil
}

func (f *fakeRemote) DeleteVehicle(_ context.Context, id string) error {
	err := f.enter()
	defer f.mu.Unlock()
	if err != nil {
		return err
	}
	if f.refuse {
		return apperr.New(apperr.KindForbidden, "Missing or insufficient permissions")
	}
	if _, ok := f.vehicles[id]; !ok {
		return apperr.New(apperr.KindNotFound, "vehicle not found")
	}
	delete(f.vehicles, id)
	return nil
}

func (f *fakeRemote) GetUser(_ context.Context, id string) (model.UserProfile, error) {
	err := f.enter()
	defer f.mu.Unlock()
	if err != nil {
		return model.UserProfile{}, err
	}
	u, ok := f.users[id]
	if !ok {
		return model.UserProfile{}, apperr.New(apperr.KindNotFound, "user not found")
	}
	return u, nil
}

func (f *fakeRemote) IncrementVehiclesCreated(_ context.Context, id string) (int, error) {
	err := f.enter()
	defer f.mu.Unlock()
	if err != nil {
		return 0, err
	}
	u := f.users[id]
	u.ID = id
	u.VehiclesCreated++
	f.users[id] = u
	return u.VehiclesCreated, nil
}

type fakeIdentity struct {
	sess  *session.Session
	admin bool
}

func (f fakeIdentity) Current() *session.Session { return f.sess }
func (f fakeIdentity) IsAdmin() bool             { return f.admin }

func host(id string) fakeIdentity {
	return fakeIdentity{sess: &session.Session{ID: id, Name: "Host " + id, Email: id + "@example.com", Role: session.RoleHost}}
}

type fixture struct {
	store    *Store
	remote   *fakeRemote
	state    *localstate.Memory
	degraded []Degradation
}

func newFixture(t *testing.T, id Identity) *fixture {
	t.Helper()
	f := &fixture{remote: newFakeRemote(), state: localstate.NewMemory()}
	var mu sync.Mutex
	f.store = New(Options{
		Remote:   f.remote,
		Identity: id,
		State:    f.state,
		Cooldown: 30 * time.Millisecond,
		OnDegraded: func(d Degradation) {
			mu.Lock()
			f.degraded = append(f.degraded, d)
			mu.Unlock()
		},
	})
	return f
}

func (f *fixture) seed(vs ...model.Vehicle) {
	for _, v := range vs {
		f.remote.vehicles[v.ID] = v
	}
}

func listing(id, owner, status string) model.Vehicle {
	return model.Vehicle{
		ID: id, OwnerID: owner, HostID: owner, Status: status,
		Year: 2020, Make: "Toyota", Model: "Corolla", Category: "sedan",
		Country: "US", State: "CA", City: "Fresno", Price: 45, Frequency: "day",
		Fuel: "gas", Insurance: "included", Image: "img/" + id + ".jpg",
	}
}

func ids(vs []model.Vehicle) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.ID)
	}
	sort.Strings(out)
	return out
}

func TestCreateThenListOwnedRoundTrip(t *testing.T) {
	f := newFixture(t, host("u1"))
	f.remote.users["u1"] = model.UserProfile{ID: "u1", Plan: model.PlanStarter}
	ctx := context.Background()

	in := listing("", "u1", model.VehicleActive)
	in.HostName = "Host u1"
	in.HostEmail = "u1@example.com"
	in.Photos = []string{"a.jpg", "b.jpg"}
	created, err := f.store.Create(ctx, in)
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	owned := f.store.ListOwned(ctx, "u1")
	require.Len(t, owned, 1)
	got := owned[0]
	assert.Equal(t, created.ID, got.ID)
	got.ID, got.CreatedAt, got.UpdatedAt = "", time.Time{}, time.Time{}
	assert.Equal(t, in, got)

	assert.Equal(t, 1, f.remote.users["u1"].VehiclesCreated)
}

func TestCreateSetsOwnerAndStatus(t *testing.T) {
	f := newFixture(t, host("u1"))
	f.remote.users["u1"] = model.UserProfile{ID: "u1", Plan: model.PlanPro}

	in := listing("", "someone-else", model.VehicleHidden)
	created, err := f.store.Create(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "u1", created.OwnerID)
	assert.Equal(t, "u1", created.HostID)
	assert.Equal(t, model.VehicleActive, created.Status)
	assert.Equal(t, "Host u1", created.HostName)
}

func TestCreateRequiresIdentity(t *testing.T) {
	f := newFixture(t, fakeIdentity{})
	_, err := f.store.Create(context.Background(), listing("", "", ""))
	assert.Equal(t, apperr.KindAuthRequired, apperr.KindOf(err))
	assert.Zero(t, f.remote.callCount())
}

func TestFreePlanLifetimeQuota(t *testing.T) {
	f := newFixture(t, host("u1"))
	f.remote.users["u1"] = model.UserProfile{ID: "u1", Plan: model.PlanFree, VehiclesCreated: 2}

	_, err := f.store.Create(context.Background(), listing("", "u1", ""))
	require.Error(t, err)
	assert.Equal(t, apperr.KindPlanLimitExceeded, apperr.KindOf(err))
	assert.Equal(t, "You used your 2 free postings. Upgrade to add more vehicles.", err.Error())
	assert.Empty(t, f.remote.vehicles)
}

func TestPaidPlanActiveCap(t *testing.T) {
	f := newFixture(t, host("u1"))
	f.remote.users["u1"] = model.UserProfile{ID: "u1", Plan: model.PlanStarter, VehiclesCreated: 40}
	for i := 0; i < 5; i++ {
		f.seed(listing(fmt.Sprintf("a%d", i), "u1", model.VehicleActive))
	}
	f.seed(listing("h1", "u1", model.VehicleHidden))

	pc, err := f.store.CheckPlan(context.Background())
	require.NoError(t, err)
	assert.False(t, pc.Allowed)
	assert.Equal(t, 5, pc.ActiveCount)
	assert.Equal(t, "You've reached your starter plan limit of 5 active vehicles. Please upgrade to a higher plan or deactivate another vehicle first.", pc.Message)

	require.True(t, f.store.SetStatus(context.Background(), "a0", model.VehicleHidden))
	pc, err = f.store.CheckPlan(context.Background())
	require.NoError(t, err)
	assert.True(t, pc.Allowed)
	assert.Empty(t, pc.Message)
}

func TestFreePlanEditLimit(t *testing.T) {
	ctx := context.Background()

	t.Run("free plan edited once", func(t *testing.T) {
		f := newFixture(t, host("u1"))
		f.remote.users["u1"] = model.UserProfile{ID: "u1", Plan: model.PlanFree}
		v := listing("v1", "u1", model.VehicleActive)
		v.EditCount = 1
		f.seed(v)

		_, err := f.store.Update(ctx, "v1", map[string]any{"price": 50})
		require.Error(t, err)
		assert.Equal(t, apperr.KindEditLimitExceeded, apperr.KindOf(err))
		assert.Equal(t, "Free plan allows one edit per vehicle. Upgrade to edit again.", err.Error())
		assert.Equal(t, 45.0, f.remote.vehicles["v1"].Price)
	})

	t.Run("free plan first edit", func(t *testing.T) {
		f := newFixture(t, host("u1"))
		f.remote.users["u1"] = model.UserProfile{ID: "u1", Plan: model.PlanFree}
		f.seed(listing("v1", "u1", model.VehicleActive))

		got, err := f.store.Update(ctx, "v1", map[string]any{"price": 50})
		require.NoError(t, err)
		assert.Equal(t, 1, got.EditCount)
		assert.Equal(t, 50.0, got.Price)
	})

	for _, plan := range []string{model.PlanStarter, model.PlanPro} {
		t.Run(plan+" plan keeps editing", func(t *testing.T) {
			f := newFixture(t, host("u1"))
			f.remote.users["u1"] = model.UserProfile{ID: "u1", Plan: plan}
			v := listing("v1", "u1", model.VehicleActive)
			v.EditCount = 5
			f.seed(v)

			got, err := f.store.Update(ctx, "v1", map[string]any{"city": "Oakland", "ownerId": "intruder"})
			require.NoError(t, err)
			assert.Equal(t, 6, got.EditCount)
			assert.Equal(t, "Oakland", got.City)
			assert.Equal(t, "u1", got.OwnerID)
		})
	}
}

func TestUpdateRequiresOwnerOrAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, host("intruder"))
	f.remote.users["intruder"] = model.UserProfile{ID: "intruder", Plan: model.PlanPro}
	f.seed(listing("v1", "owner", model.VehicleActive))

	_, err := f.store.Update(ctx, "v1", map[string]any{"price": 1})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	admin := host("admin")
	admin.admin = true
	f.store.identity = admin
	f.remote.users["admin"] = model.UserProfile{ID: "admin", Plan: model.PlanPro}
	got, err := f.store.Update(ctx, "v1", map[string]any{"price": 1})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Price)
	assert.Equal(t, "owner", got.OwnerID)
}

func TestPendingDeleteHiddenUntilRetried(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, host("u1"))
	f.seed(listing("v1", "u1", model.VehicleActive), listing("v2", "u1", model.VehicleActive))
	require.Equal(t, []string{"v1", "v2"}, ids(f.store.ListActive(ctx)))

	f.remote.setDown(true)
	assert.True(t, f.store.Remove(ctx, "v1"))
	assert.Equal(t, []string{"v1"}, f.store.PendingDeletes())
	assert.Equal(t, []string{"v2"}, ids(f.store.ListActive(ctx)))
	assert.Equal(t, []string{"v2"}, ids(f.store.ListOwned(ctx, "")))

	// nothing is retried while backing off
	f.remote.setDown(false)
	assert.Zero(t, f.store.RetryPendingDeletes(ctx))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"v2"}, ids(f.store.ListActive(ctx)), "remote still has v1")
	assert.Equal(t, []string{"v2"}, ids(f.store.ListOwned(ctx, "")))
	_, err := f.store.Get(ctx, "v1")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	assert.Equal(t, 1, f.store.RetryPendingDeletes(ctx))
	assert.Empty(t, f.store.PendingDeletes())
	assert.NotContains(t, f.remote.vehicles, "v1")
}

func TestRefusedDeleteIsQueuedAndHidden(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, host("u1"))
	f.seed(listing("v1", "u1", model.VehicleActive), listing("v2", "u1", model.VehicleActive))
	require.Equal(t, []string{"v1", "v2"}, ids(f.store.ListActive(ctx)))

	f.remote.mu.Lock()
	f.remote.refuse = true
	f.remote.mu.Unlock()

	assert.True(t, f.store.Remove(ctx, "v1"))
	assert.Equal(t, []string{"v1"}, f.store.PendingDeletes())
	assert.Equal(t, []string{"v2"}, ids(f.store.ListActive(ctx)))
	assert.False(t, f.store.InBackoff(), "a refusal is an answer, not an outage")
	require.NotEmpty(t, f.degraded)
	assert.Equal(t, "remove", f.degraded[len(f.degraded)-1].Op)

	// still refused: the id stays queued
	assert.Zero(t, f.store.RetryPendingDeletes(ctx))
	assert.Equal(t, []string{"v1"}, f.store.PendingDeletes())

	f.remote.mu.Lock()
	f.remote.refuse = false
	f.remote.mu.Unlock()
	assert.Equal(t, 1, f.store.RetryPendingDeletes(ctx))
	assert.Empty(t, f.store.PendingDeletes())
}

func TestRemoveMissingVehicleIsNotQueued(t *testing.T) {
	f := newFixture(t, host("u1"))
	assert.False(t, f.store.Remove(context.Background(), "ghost"))
	assert.Empty(t, f.store.PendingDeletes())
	assert.False(t, f.store.InBackoff())
}

func TestRetryLoopDrainsQueue(t *testing.T) {
	f := newFixture(t, host("u1"))
	f.store.retryInterval = 10 * time.Millisecond
	f.seed(listing("v1", "u1", model.VehicleActive))
	require.NoError(t, localstate.SetJSON(f.state, localstate.KeyPendingDeletes, []string{"v1", "gone"}))

	f.store.Init(context.Background())
	defer f.store.Teardown()
	assert.Eventually(t, func() bool { return len(f.store.PendingDeletes()) == 0 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, f.remote.vehicles)
}

func TestBackoffSkipsRemoteAndReportsDegradation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, host("u1"))
	f.seed(listing("v1", "u1", model.VehicleActive))
	require.Len(t, f.store.ListActive(ctx), 1)
	base := f.remote.callCount()

	f.remote.setDown(true)
	assert.Equal(t, []string{"v1"}, ids(f.store.ListActive(ctx)), "served from cache")
	assert.True(t, f.store.InBackoff())
	assert.Equal(t, []string{"v1"}, ids(f.store.ListActive(ctx)))
	assert.Equal(t, base+1, f.remote.callCount(), "second call skipped the remote")
	require.Len(t, f.degraded, 2)
	assert.Equal(t, "list_active", f.degraded[0].Op)
	assert.ErrorIs(t, f.degraded[1].Err, ErrBackoff)

	f.remote.setDown(false)
	time.Sleep(50 * time.Millisecond)
	f.store.ListActive(ctx)
	assert.Equal(t, base+2, f.remote.callCount())
	assert.False(t, f.store.InBackoff())
}

func TestAnsweredErrorsDoNotTripBackoff(t *testing.T) {
	f := newFixture(t, host("u1"))
	_, err := f.store.Get(context.Background(), "missing")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.False(t, f.store.InBackoff())
	assert.Empty(t, f.degraded)
}

func TestListActiveBackfillsImages(t *testing.T) {
	f := newFixture(t, host("u1"))
	withPhoto := listing("p", "u1", model.VehicleActive)
	withPhoto.Image = ""
	withPhoto.Photos = []string{"first.jpg"}
	bare := listing("b", "u1", model.VehicleActive)
	bare.Image = ""
	f.seed(withPhoto, bare, listing("h", "u1", model.VehicleHidden))

	got := map[string]string{}
	for _, v := range f.store.ListActive(context.Background()) {
		got[v.ID] = v.Image
	}
	assert.Equal(t, map[string]string{"p": "first.jpg", "b": model.PlaceholderImage}, got)
}

func TestListActiveMirrorsIntoCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, host("u1"))
	f.seed(listing("v1", "u1", model.VehicleActive))
	f.store.ListActive(ctx)

	// a fresh store over the same local state sees the cached listing offline
	f.remote.setDown(true)
	again := New(Options{Remote: f.remote, Identity: host("u1"), State: f.state})
	again.Load()
	assert.Equal(t, []string{"v1"}, ids(again.ListActive(ctx)))
	assert.False(t, again.LastSync().IsZero())
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, host("u1"))
	f.seed(listing("v1", "u1", model.VehicleActive))
	f.store.ListActive(ctx)

	assert.False(t, f.store.SetStatus(ctx, "v1", "deleted"))

	assert.True(t, f.store.SetStatus(ctx, "v1", model.VehicleHidden))
	assert.Equal(t, model.VehicleHidden, f.remote.vehicles["v1"].Status)

	f.remote.setDown(true)
	assert.True(t, f.store.SetStatus(ctx, "v1", model.VehicleActive), "cache-only update")
	assert.Equal(t, model.VehicleHidden, f.remote.vehicles["v1"].Status)
	assert.Equal(t, []string{"v1"}, ids(f.store.ListActive(ctx)))
	assert.False(t, f.store.SetStatus(ctx, "unknown", model.VehicleActive))
}

func TestCheckPlanOfflineUsesPersistedPlan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, host("u1"))
	f.remote.users["u1"] = model.UserProfile{ID: "u1", Plan: model.PlanFree, VehiclesCreated: 2}
	pc, err := f.store.CheckPlan(ctx)
	require.NoError(t, err)
	require.False(t, pc.Allowed)

	f.remote.setDown(true)
	f.store.InvalidateProfile("u1")
	pc, err = f.store.CheckPlan(ctx)
	require.NoError(t, err)
	assert.False(t, pc.Allowed)
	assert.Equal(t, 2, pc.LifetimeCreated)
}

func TestStatsExcludesPendingDeletes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, host("u1"))
	f.seed(listing("v1", "u1", model.VehicleActive), listing("v2", "u1", model.VehicleActive))
	f.store.ListActive(ctx)
	require.NoError(t, localstate.SetJSON(f.state, localstate.KeyPendingDeletes, []string{"v2"}))

	st := f.store.Stats()
	assert.Equal(t, 1, st.Total)
	assert.Equal(t, 1, st.Active)
	assert.Equal(t, 45.0, st.AveragePrice)
}
