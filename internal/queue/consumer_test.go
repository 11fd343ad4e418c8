package queue

import (
    "encoding/json"
    "os"
    "path/filepath"
    "testing"

    "github.com/sirupsen/logrus"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/vehicle-rental-marketplace/internal/config"
)

type captured struct{ got []SupportSubmittedEvent }

func (c *captured) Notify(ev SupportSubmittedEvent) error {
    c.got = append(c.got, ev)
    return nil
}

func quietLogger() *logrus.Logger {
    l := logrus.New()
    l.SetOutput(os.Stderr)
    l.SetLevel(logrus.PanicLevel)
    return l
}

func TestHandleSupportMessage(t *testing.T) {
    n := &captured{}
    c := &Consumer{Log: quietLogger(), Notifier: n}
    body, err := json.Marshal(SupportSubmittedEvent{MessageID: "m1", Name: "Dana", Priority: "high"})
    require.NoError(t, err)

    require.NoError(t, c.Handle(SupportSubmittedQueue, body))
    require.Len(t, n.got, 1)
    assert.Equal(t, "m1", n.got[0].MessageID)
}

func TestHandleRejectsBadInput(t *testing.T) {
    c := &Consumer{Log: quietLogger(), Notifier: &captured{}}
    assert.Error(t, c.Handle(SupportSubmittedQueue, []byte("{")))
    assert.Error(t, c.Handle("other", []byte("{}")))
    assert.NoError(t, c.Handle(ReviewSubmittedQueue, []byte(`{"review_id":"r1","rating":5}`)))
}

func TestFileNotifierAppends(t *testing.T) {
    path := filepath.Join(t.TempDir(), "logs", "support.log")
    f := &FileNotifier{Path: path}
    require.NoError(t, f.Notify(SupportSubmittedEvent{MessageID: "a", Priority: "normal"}))
    require.NoError(t, f.Notify(SupportSubmittedEvent{MessageID: "b", Priority: "high"}))

    data, err := os.ReadFile(path)
    require.NoError(t, err)
    assert.Contains(t, string(data), "id=a")
    assert.Contains(t, string(data), "id=b | priority=high")
}

func TestNewNotifierChoosesTransport(t *testing.T) {
    _, isFile := NewNotifier(config.SMTPConfig{}, "ops@example.com").(*FileNotifier)
    assert.True(t, isFile)
    _, isMail := NewNotifier(config.SMTPConfig{Host: "smtp", Port: 25, From: "noreply@example.com"}, "ops@example.com").(MailNotifier)
    assert.True(t, isMail)
}
