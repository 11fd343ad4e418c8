package storage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/vehicle-rental-marketplace/internal/apperr"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/logger"
)

type car struct {
	ID     string   `json:"id" bson:"_id"`
	Make   string   `json:"make" bson:"make"`
	Status string   `json:"status" bson:"status"`
	Price  float64  `json:"price" bson:"price"`
	Tags   []string `json:"tags,omitempty" bson:"tags,omitempty"`
}

// brokenStore fails every call, standing in for an unreachable primary.
type brokenStore struct{ calls int }

var errDown = errors.New("connection refused")

func (b *brokenStore) Get(context.Context, string, string, any) error      { b.calls++; return unavailable("get", errDown) }
func (b *brokenStore) List(context.Context, string, Filter, any) error     { b.calls++; return unavailable("list", errDown) }
func (b *brokenStore) Put(context.Context, string, string, any) error      { b.calls++; return unavailable("put", errDown) }
func (b *brokenStore) Delete(context.Context, string, string) error        { b.calls++; return unavailable("delete", errDown) }
func (b *brokenStore) Merge(context.Context, string, string, map[string]any) error {
	b.calls++
	return unavailable("merge", errDown)
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, Vehicles, "v1", car{ID: "v1", Make: "Honda", Status: "active", Price: 40}))
	require.NoError(t, s.Put(ctx, Vehicles, "v2", car{ID: "v2", Make: "Ford", Status: "hidden", Price: 55}))

	var got car
	require.NoError(t, s.Get(ctx, Vehicles, "v1", &got))
	assert.Equal(t, "Honda", got.Make)

	var active []car
	require.NoError(t, s.List(ctx, Vehicles, Filter{"status": "active"}, &active))
	require.Len(t, active, 1)
	assert.Equal(t, "v1", active[0].ID)

	var priced []car
	require.NoError(t, s.List(ctx, Vehicles, Filter{"price": 55}, &priced))
	require.Len(t, priced, 1)

	require.NoError(t, s.Merge(ctx, Vehicles, "v1", map[string]any{"status": "hidden", "tags": []string{"a"}}))
	require.NoError(t, s.Get(ctx, Vehicles, "v1", &got))
	assert.Equal(t, "hidden", got.Status)
	assert.Equal(t, "Honda", got.Make)
	assert.Equal(t, []string{"a"}, got.Tags)

	require.NoError(t, s.Delete(ctx, Vehicles, "v1"))
	err := s.Get(ctx, Vehicles, "v1", &got)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.True(t, errors.Is(s.Delete(ctx, Vehicles, "v1"), apperr.ErrNotFound))

	var none []car
	require.NoError(t, s.List(ctx, "empty", nil, &none))
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFile(dir)
	require.NoError(t, err)
	exerciseStore(t, f)

	// A second instance over the same directory sees persisted data.
	again, err := NewFile(dir)
	require.NoError(t, err)
	var got car
	require.NoError(t, again.Get(context.Background(), Vehicles, "v2", &got))
	assert.Equal(t, "Ford", got.Make)
}

func TestFallbackServesFromMirrorWhenPrimaryDown(t *testing.T) {
	ctx := context.Background()
	primary := &brokenStore{}
	mirror := NewMemory()
	fb := NewFallback(primary, mirror, logger.Discard())

	require.NoError(t, fb.Put(ctx, Vehicles, "v1", car{ID: "v1", Make: "Honda", Status: "active"}))

	var got car
	require.NoError(t, fb.Get(ctx, Vehicles, "v1", &got))
	assert.Equal(t, "Honda", got.Make)

	var list []car
	require.NoError(t, fb.List(ctx, Vehicles, Filter{"status": "active"}, &list))
	assert.Len(t, list, 1)

	require.NoError(t, fb.Delete(ctx, Vehicles, "v1"))
	assert.Equal(t, int64(4), fb.Degradations())
	assert.Equal(t, 4, primary.calls)
}

func TestFallbackReturnsSameShapeFromEitherPath(t *testing.T) {
	ctx := context.Background()
	healthy := NewFallback(NewMemory(), NewMemory(), logger.Discard())
	degraded := NewFallback(&brokenStore{}, NewMemory(), logger.Discard())

	for _, fb := range []*Fallback{healthy, degraded} {
		require.NoError(t, fb.Put(ctx, Vehicles, "v1", car{ID: "v1", Make: "Kia", Status: "active", Price: 30}))
	}
	var a, b car
	require.NoError(t, healthy.Get(ctx, Vehicles, "v1", &a))
	require.NoError(t, degraded.Get(ctx, Vehicles, "v1", &b))
	assert.Equal(t, a, b)
	assert.Zero(t, healthy.Degradations())
}

func TestFallbackLogsMirrorOnlyRead(t *testing.T) {
	ctx := context.Background()
	primary, mirror := NewMemory(), NewMemory()
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	fb := NewFallback(primary, mirror, log)

	require.NoError(t, mirror.Put(ctx, Vehicles, "v1", car{ID: "v1", Make: "Mazda"}))

	var got car
	require.NoError(t, fb.Get(ctx, Vehicles, "v1", &got))
	assert.Equal(t, "Mazda", got.Make)
	assert.Equal(t, int64(1), fb.MirrorOnlyReads())
	assert.Zero(t, fb.Degradations())

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.DebugLevel, entry.Level)
	assert.Equal(t, "get", entry.Data["op"])
	assert.Equal(t, Vehicles, entry.Data["collection"])
	assert.Equal(t, "NotFound", entry.Data["error_kind"])

	// absent from both stores stays a plain miss
	hook.Reset()
	err := fb.Get(ctx, Vehicles, "v2", &got)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.Equal(t, int64(1), fb.MirrorOnlyReads())
	assert.Empty(t, hook.AllEntries())
}

func TestFallbackWritesMirrorAlongsidePrimary(t *testing.T) {
	ctx := context.Background()
	primary, mirror := NewMemory(), NewMemory()
	fb := NewFallback(primary, mirror, logger.Discard())

	require.NoError(t, fb.Put(ctx, Vehicles, "v1", car{ID: "v1", Make: "Audi"}))
	var got car
	require.NoError(t, mirror.Get(ctx, Vehicles, "v1", &got))
	assert.Equal(t, "Audi", got.Make)
}

func TestFallbackWithoutPrimaryHasNoTransactions(t *testing.T) {
	fb := NewFallback(nil, NewMemory(), logger.Discard())
	err := fb.RunTransaction(context.Background(), func(context.Context, Tx) error { return nil })
	assert.True(t, errors.Is(err, apperr.ErrStorageUnavailable))
	assert.Equal(t, "mirror", fb.Mode())
}

func TestFallbackTransactionReplaysOntoMirror(t *testing.T) {
	ctx := context.Background()
	primary, mirror := NewMemory(), NewMemory()
	fb := NewFallback(primary, mirror, logger.Discard())

	err := fb.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Put(ctx, Reviews, "r1", car{ID: "r1", Make: "review"})
	})
	require.NoError(t, err)

	var got car
	require.NoError(t, mirror.Get(ctx, Reviews, "r1", &got))
	assert.Equal(t, "review", got.Make)
}

func TestMemoryTransactionRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Put(ctx, Hosts, "h1", map[string]any{"ratingCount": 1}))

	boom := errors.New("boom")
	err := m.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Merge(ctx, Hosts, "h1", map[string]any{"ratingCount": 2}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var got map[string]any
	require.NoError(t, m.Get(ctx, Hosts, "h1", &got))
	assert.Equal(t, float64(1), got["ratingCount"])
}

func TestTransactionRejectsReadAfterWrite(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	err := m.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Put(ctx, Hosts, "h1", map[string]any{}); err != nil {
			return err
		}
		var out map[string]any
		return tx.Get(ctx, Hosts, "h1", &out)
	})
	assert.ErrorIs(t, err, ErrReadAfterWrite)
}

func TestMemoryTransactionsSerialize(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Put(ctx, Hosts, "h1", map[string]any{"ratingCount": 0}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
				var h struct {
					RatingCount int `json:"ratingCount"`
				}
				if err := tx.Get(ctx, Hosts, "h1", &h); err != nil {
					return err
				}
				return tx.Merge(ctx, Hosts, "h1", map[string]any{"ratingCount": h.RatingCount + 1})
			})
		}()
	}
	wg.Wait()

	var h struct {
		RatingCount int `json:"ratingCount"`
	}
	require.NoError(t, m.Get(ctx, Hosts, "h1", &h))
	assert.Equal(t, 20, h.RatingCount)
}

func TestMemoryTransactionKeepsConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Put(ctx, Users, "host1", map[string]any{"name": "Host", "ratingCount": 2}))

	err := m.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		var h map[string]any
		if err := tx.Get(ctx, Users, "host1", &h); err != nil {
			return err
		}
		// lands between the transaction's read and its commit
		require.NoError(t, m.Put(ctx, Users, "newuser", map[string]any{"name": "New"}))
		require.NoError(t, m.Merge(ctx, Users, "host1", map[string]any{"vehiclesCreated": 1}))
		return tx.Merge(ctx, Users, "host1", map[string]any{"ratingCount": 3})
	})
	require.NoError(t, err)

	var fresh map[string]any
	require.NoError(t, m.Get(ctx, Users, "newuser", &fresh))
	assert.Equal(t, "New", fresh["name"])

	var host map[string]any
	require.NoError(t, m.Get(ctx, Users, "host1", &host))
	assert.Equal(t, float64(3), host["ratingCount"])
	assert.Equal(t, float64(1), host["vehiclesCreated"])
	assert.Equal(t, "Host", host["name"])
}
