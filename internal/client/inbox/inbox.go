// Package inbox is the admin support inbox on the client. It keeps the last
// loaded message set, filters it locally and applies per-message patches.
package inbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/vehicle-rental-marketplace/internal/apperr"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/client/session"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/logger"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/model"
)

// Defaults.
const (
	DefaultTokenAttempts = 5
	DefaultTokenBackoff  = 300 * time.Millisecond
	DefaultRefresh       = 30 * time.Second
)

// API is the admin message endpoint set. *api.Client satisfies it.
type API interface {
	ListMessages(ctx context.Context, token string) ([]model.SupportMessage, error)
	PatchMessage(ctx context.Context, token, id string, p model.MessagePatch) (model.SupportMessage, error)
}

type TokenSource interface {
	IDToken(ctx context.Context) (string, error)
}

// Level is the severity of a user notification.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notifier shows transient messages to the user.
type Notifier interface {
	Notify(level Level, msg string)
}

// NotifierFunc adapts a func to Notifier.
type NotifierFunc func(level Level, msg string)

func (f NotifierFunc) Notify(level Level, msg string) { f(level, msg) }

// Filter selects messages by view and free-text query.
type Filter struct {
	View  string
	Query string
}

// Apply filters and sorts msgs. It is what Load applies to every fetch and
// matches the server's own filter.
func Apply(msgs []model.SupportMessage, f Filter, sort string) []model.SupportMessage {
	return model.MessageQuery{View: f.View, Search: f.Query, Sort: sort}.Select(msgs)
}

type Options struct {
	API           API
	Tokens        TokenSource
	Navigator     session.Navigator
	Notifier      Notifier
	Log           *logrus.Logger
	TokenAttempts int
	TokenBackoff  time.Duration
}

// Inbox holds the last loaded messages.
type Inbox struct {
	api      API
	tokens   TokenSource
	nav      session.Navigator
	notifier Notifier
	log      *logrus.Logger
	attempts int
	backoff  time.Duration

	mu       sync.Mutex
	messages []model.SupportMessage
}

func New(o Options) *Inbox {
	if o.Log == nil {
		o.Log = logger.Discard()
	}
	if o.Navigator == nil {
		o.Navigator = session.NavigatorFunc(func(string) {})
	}
	if o.Notifier == nil {
		o.Notifier = NotifierFunc(func(Level, string) {})
	}
	if o.TokenAttempts <= 0 {
		o.TokenAttempts = DefaultTokenAttempts
	}
	if o.TokenBackoff <= 0 {
		o.TokenBackoff = DefaultTokenBackoff
	}
	return &Inbox{
		api:      o.API,
		tokens:   o.Tokens,
		nav:      o.Navigator,
		notifier: o.Notifier,
		log:      o.Log,
		attempts: o.TokenAttempts,
		backoff:  o.TokenBackoff,
	}
}

// token waits for the identity token, which may not be available right
// after start-up. When every attempt fails the user is sent to sign in.
func (b *Inbox) token(ctx context.Context) (string, error) {
	var lastErr error
	for i := 0; i < b.attempts; i++ {
		tok, err := b.tokens.IDToken(ctx)
		if err == nil && tok != "" {
			return tok, nil
		}
		lastErr = err
		if i == b.attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(b.backoff):
		}
	}
	b.log.WithError(lastErr).WithField("attempts", b.attempts).Warn("no identity token, redirecting to sign in")
	b.nav.Redirect(session.DefaultSignOutTarget)
	return "", apperr.Wrap(apperr.KindAuthRequired, "sign in to view messages", lastErr)
}

// Messages returns the last loaded set, unfiltered.
func (b *Inbox) Messages() []model.SupportMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.SupportMessage(nil), b.messages...)
}

func (b *Inbox) find(id string) (model.SupportMessage, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range b.messages {
		if m.ID == id {
			return m, true
		}
	}
	return model.SupportMessage{}, false
}

func (b *Inbox) apply(id string, p model.MessagePatch) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.messages {
		if b.messages[i].ID == id {
			b.messages[i] = p.Apply(b.messages[i])
		}
	}
}

// Load fetches every message and returns the filtered view. A failed fetch
// keeps the previous set, which is returned filtered along with the error.
func (b *Inbox) Load(ctx context.Context, f Filter, sort string) ([]model.SupportMessage, error) {
	tok, err := b.token(ctx)
	if err != nil {
		return nil, err
	}
	msgs, err := b.api.ListMessages(ctx, tok)
	if err != nil {
		b.log.WithError(err).Warn("load messages")
		b.notifier.Notify(LevelError, "Failed to load messages")
		return Apply(b.Messages(), f, sort), err
	}
	b.mu.Lock()
	b.messages = msgs
	b.mu.Unlock()
	return Apply(msgs, f, sort), nil
}

func (b *Inbox) patch(ctx context.Context, id string, p model.MessagePatch) error {
	tok, err := b.token(ctx)
	if err != nil {
		return err
	}
	if _, err := b.api.PatchMessage(ctx, tok, id, p); err != nil {
		return err
	}
	b.apply(id, p)
	return nil
}

// SetStatus moves one message to status.
func (b *Inbox) SetStatus(ctx context.Context, id, status string) error {
	if !model.ValidMessageStatus(status) {
		return apperr.Validation("unknown message status", "status")
	}
	if err := b.patch(ctx, id, model.MessagePatch{Status: &status}); err != nil {
		b.log.WithError(err).WithField("message_id", id).Warn("update message status")
		b.notifier.Notify(LevelError, "Failed to update status")
		return err
	}
	b.notifier.Notify(LevelInfo, "Status updated to "+status)
	return nil
}

// ToggleStar flips the starred flag of a loaded message.
func (b *Inbox) ToggleStar(ctx context.Context, id string) error {
	m, ok := b.find(id)
	if !ok {
		return apperr.New(apperr.KindNotFound, "message not loaded")
	}
	starred := !m.Starred
	if err := b.patch(ctx, id, model.MessagePatch{Starred: &starred}); err != nil {
		b.log.WithError(err).WithField("message_id", id).Warn("toggle star")
		return err
	}
	return nil
}

// Open returns a loaded message for display, marking it open if it was
// unread.
func (b *Inbox) Open(ctx context.Context, id string) (model.SupportMessage, error) {
	m, ok := b.find(id)
	if !ok {
		return model.SupportMessage{}, apperr.New(apperr.KindNotFound, "message not loaded")
	}
	if m.Status == model.MessageUnread {
		if err := b.SetStatus(ctx, id, model.MessageOpen); err == nil {
			m.Status = model.MessageOpen
		}
	}
	return m, nil
}

// BulkResult reports which messages a bulk action changed. Bulk actions
// patch one message at a time, so a failure part way leaves the rest as
// they were; reload to see the true state.
type BulkResult struct {
	Updated []string
	Failed  []string
}

func (b *Inbox) bulk(ctx context.Context, ids []string, status, done, failed string) BulkResult {
	var res BulkResult
	if len(ids) == 0 {
		return res
	}
	tok, err := b.token(ctx)
	if err != nil {
		res.Failed = append(res.Failed, ids...)
		return res
	}
	p := model.MessagePatch{Status: &status}
	for _, id := range ids {
		if _, err := b.api.PatchMessage(ctx, tok, id, p); err != nil {
			b.log.WithError(err).WithFields(logrus.Fields{"message_id": id, "status": status}).Warn("bulk update")
			res.Failed = append(res.Failed, id)
			continue
		}
		b.apply(id, p)
		res.Updated = append(res.Updated, id)
	}
	if len(res.Failed) > 0 {
		b.notifier.Notify(LevelError, failed)
	} else {
		b.notifier.Notify(LevelInfo, done)
	}
	return res
}

func (b *Inbox) ArchiveMany(ctx context.Context, ids []string) BulkResult {
	return b.bulk(ctx, ids, model.MessageArchived, fmt.Sprintf("Archived %d messages", len(ids)), "Failed to archive")
}

func (b *Inbox) MarkReadMany(ctx context.Context, ids []string) BulkResult {
	return b.bulk(ctx, ids, model.MessageOpen, "Marked as read", "Failed to mark read")
}

// DeleteMany moves messages to the trash.
func (b *Inbox) DeleteMany(ctx context.Context, ids []string) BulkResult {
	return b.bulk(ctx, ids, model.MessageTrash, "Deleted messages", "Failed to delete")
}

// Counts are the navigation badge numbers.
type Counts struct {
	Inbox    int
	Unread   int
	Open     int
	Pending  int
	Resolved int
	Archived int
	Trash    int
	Starred  int
}

// Counts tallies the loaded messages.
func (b *Inbox) Counts() Counts {
	var c Counts
	for _, m := range b.Messages() {
		if m.InInbox() {
			c.Inbox++
		}
		if m.Starred {
			c.Starred++
		}
		switch m.Status {
		case model.MessageUnread:
			c.Unread++
		case model.MessageOpen:
			c.Open++
		case model.MessagePending:
			c.Pending++
		case model.MessageResolved:
			c.Resolved++
		case model.MessageArchived:
			c.Archived++
		case model.MessageTrash:
			c.Trash++
		}
	}
	return c
}

// AutoRefresh reloads every interval until ctx is done, handing each result
// to fn. It blocks.
func (b *Inbox) AutoRefresh(ctx context.Context, interval time.Duration, f Filter, sort string, fn func([]model.SupportMessage, error)) {
	if interval <= 0 {
		interval = DefaultRefresh
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			msgs, err := b.Load(ctx, f, sort)
			if fn != nil {
				fn(msgs, err)
			}
		}
	}
}
