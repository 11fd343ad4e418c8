package inbox

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/vehicle-rental-marketplace/internal/apperr"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/model"
)

type fakeAPI struct {
	mu       sync.Mutex
	msgs     []model.SupportMessage
	listErr  error
	failIDs  map[string]bool
	patched  map[string]model.MessagePatch
	tokens   []string
	listings int
}

func (f *fakeAPI) ListMessages(_ context.Context, token string) ([]model.SupportMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
	f.listings++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]model.SupportMessage(nil), f.msgs...), nil
}

func (f *fakeAPI) PatchMessage(_ context.Context, token, id string, p model.MessagePatch) (model.SupportMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIDs[id] {
		return model.SupportMessage{}, apperr.New(apperr.KindStorageUnavailable, "boom")
	}
	if f.patched == nil {
		f.patched = map[string]model.MessagePatch{}
	}
	f.patched[id] = p
	return model.SupportMessage{ID: id}, nil
}

// flakyTokens fails the first n calls.
type flakyTokens struct {
	n     int
	calls int
}

func (f *flakyTokens) IDToken(context.Context) (string, error) {
	f.calls++
	if f.calls <= f.n {
		return "", errors.New("token not ready")
	}
	return "tok", nil
}

type notes struct {
	mu   sync.Mutex
	list []string
}

func (n *notes) Notify(level Level, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.list = append(n.list, string(level)+": "+msg)
}

func at(min int) time.Time { return time.Date(2026, 3, 1, 12, min, 0, 0, time.UTC) }

func sample() []model.SupportMessage {
	return []model.SupportMessage{
		{ID: "u", Status: model.MessageUnread, Name: "Ann", Subject: "Keys", CreatedAt: at(1)},
		{ID: "a", Status: model.MessageArchived, Starred: true, CreatedAt: at(2)},
		{ID: "t", Status: model.MessageTrash, Email: "spam@x.io", CreatedAt: at(3)},
		{ID: "o", Status: model.MessageOpen, Starred: true, Message: "Refund please", CreatedAt: at(4)},
	}
}

func idsOf(ms []model.SupportMessage) []string {
	out := []string{}
	for _, m := range ms {
		out = append(out, m.ID)
	}
	return out
}

func newInbox(api *fakeAPI, tokens TokenSource, n *notes, redirects *[]string) *Inbox {
	return New(Options{
		API:          api,
		Tokens:       tokens,
		Notifier:     n,
		TokenBackoff: time.Millisecond,
		Navigator: navFunc(func(target string) {
			if redirects != nil {
				*redirects = append(*redirects, target)
			}
		}),
	})
}

type navFunc func(string)

func (f navFunc) Redirect(target string) { f(target) }

func TestApplyViews(t *testing.T) {
	msgs := sample()
	assert.Equal(t, []string{"o", "u"}, idsOf(Apply(msgs, Filter{View: "inbox"}, "")))
	assert.Equal(t, []string{"o", "a"}, idsOf(Apply(msgs, Filter{View: "starred"}, "")))
	assert.Equal(t, []string{"t"}, idsOf(Apply(msgs, Filter{View: "status-trash"}, "")))
	assert.Equal(t, []string{"u", "a", "t", "o"}, idsOf(Apply(msgs, Filter{View: "all"}, "oldest")))
	assert.Equal(t, []string{"o"}, idsOf(Apply(msgs, Filter{View: "all", Query: "REFUND"}, "")))
	assert.Equal(t, []string{"t"}, idsOf(Apply(msgs, Filter{View: "all", Query: "spam@"}, "")))
}

func TestLoadRetriesTokenUntilReady(t *testing.T) {
	api := &fakeAPI{msgs: sample()}
	tokens := &flakyTokens{n: 3}
	var redirects []string
	b := newInbox(api, tokens, &notes{}, &redirects)

	got, err := b.Load(context.Background(), Filter{View: "inbox"}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"o", "u"}, idsOf(got))
	assert.Equal(t, 4, tokens.calls)
	assert.Equal(t, []string{"tok"}, api.tokens)
	assert.Empty(t, redirects)
}

func TestLoadRedirectsWhenTokenNeverArrives(t *testing.T) {
	api := &fakeAPI{msgs: sample()}
	tokens := &flakyTokens{n: 100}
	var redirects []string
	b := newInbox(api, tokens, &notes{}, &redirects)

	_, err := b.Load(context.Background(), Filter{}, "")
	assert.Equal(t, apperr.KindAuthRequired, apperr.KindOf(err))
	assert.Equal(t, DefaultTokenAttempts, tokens.calls)
	assert.Equal(t, []string{"signin.html"}, redirects)
	assert.Zero(t, api.listings)
}

func TestLoadFailureKeepsPreviousSet(t *testing.T) {
	api := &fakeAPI{msgs: sample()}
	n := &notes{}
	b := newInbox(api, &flakyTokens{}, n, nil)
	_, err := b.Load(context.Background(), Filter{}, "")
	require.NoError(t, err)

	api.listErr = errors.New("network down")
	got, err := b.Load(context.Background(), Filter{View: "starred"}, "")
	require.Error(t, err)
	assert.Equal(t, []string{"o", "a"}, idsOf(got))
	assert.Len(t, b.Messages(), 4)
	assert.Equal(t, []string{"error: Failed to load messages"}, n.list)
}

func TestOpenMarksUnreadAsOpen(t *testing.T) {
	api := &fakeAPI{msgs: sample()}
	n := &notes{}
	b := newInbox(api, &flakyTokens{}, n, nil)
	_, err := b.Load(context.Background(), Filter{}, "")
	require.NoError(t, err)

	m, err := b.Open(context.Background(), "u")
	require.NoError(t, err)
	assert.Equal(t, model.MessageOpen, m.Status)
	require.NotNil(t, api.patched["u"].Status)
	assert.Equal(t, model.MessageOpen, *api.patched["u"].Status)
	assert.Equal(t, []string{"info: Status updated to open"}, n.list)

	// already open: no patch
	delete(api.patched, "o")
	_, err = b.Open(context.Background(), "o")
	require.NoError(t, err)
	assert.NotContains(t, api.patched, "o")

	_, err = b.Open(context.Background(), "missing")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestSetStatusRejectsUnknownStatus(t *testing.T) {
	b := newInbox(&fakeAPI{}, &flakyTokens{}, &notes{}, nil)
	err := b.SetStatus(context.Background(), "u", "deleted-forever")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestToggleStar(t *testing.T) {
	api := &fakeAPI{msgs: sample()}
	b := newInbox(api, &flakyTokens{}, &notes{}, nil)
	_, err := b.Load(context.Background(), Filter{}, "")
	require.NoError(t, err)

	require.NoError(t, b.ToggleStar(context.Background(), "u"))
	assert.True(t, *api.patched["u"].Starred)
	assert.Equal(t, 3, b.Counts().Starred)

	api.failIDs = map[string]bool{"o": true}
	assert.Error(t, b.ToggleStar(context.Background(), "o"))
	assert.Equal(t, 3, b.Counts().Starred, "local state unchanged on failure")
}

func TestBulkIsNotAtomic(t *testing.T) {
	api := &fakeAPI{msgs: sample(), failIDs: map[string]bool{"o": true}}
	n := &notes{}
	b := newInbox(api, &flakyTokens{}, n, nil)
	_, err := b.Load(context.Background(), Filter{}, "")
	require.NoError(t, err)

	res := b.DeleteMany(context.Background(), []string{"u", "o"})
	assert.Equal(t, []string{"u"}, res.Updated)
	assert.Equal(t, []string{"o"}, res.Failed)
	assert.Equal(t, model.MessageTrash, *api.patched["u"].Status)
	assert.Equal(t, []string{"error: Failed to delete"}, n.list)

	c := b.Counts()
	assert.Equal(t, 2, c.Trash)
	assert.Equal(t, 1, c.Open)
	assert.Equal(t, 0, c.Unread)
}

func TestBulkMessages(t *testing.T) {
	api := &fakeAPI{msgs: sample()}
	n := &notes{}
	b := newInbox(api, &flakyTokens{}, n, nil)
	_, err := b.Load(context.Background(), Filter{}, "")
	require.NoError(t, err)

	res := b.ArchiveMany(context.Background(), []string{"u", "o"})
	assert.Len(t, res.Updated, 2)
	b.MarkReadMany(context.Background(), []string{"a"})
	assert.Empty(t, b.ArchiveMany(context.Background(), nil).Updated)
	assert.Equal(t, []string{"info: Archived 2 messages", "info: Marked as read"}, n.list)
}

func TestCounts(t *testing.T) {
	api := &fakeAPI{msgs: sample()}
	b := newInbox(api, &flakyTokens{}, &notes{}, nil)
	_, err := b.Load(context.Background(), Filter{}, "")
	require.NoError(t, err)

	assert.Equal(t, Counts{Inbox: 2, Unread: 1, Open: 1, Archived: 1, Trash: 1, Starred: 2}, b.Counts())
}

func TestAutoRefreshStopsOnCancel(t *testing.T) {
	api := &fakeAPI{msgs: sample()}
	b := newInbox(api, &flakyTokens{}, &notes{}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	var loads atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.AutoRefresh(ctx, 5*time.Millisecond, Filter{View: "inbox"}, "", func(ms []model.SupportMessage, err error) {
			if err == nil && len(ms) == 2 {
				loads.Add(1)
			}
		})
	}()

	assert.Eventually(t, func() bool { return loads.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("auto refresh did not stop")
	}
}
