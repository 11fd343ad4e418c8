package events

import (
    "context"
    "io"
    "net"
    "testing"
    "time"

    "github.com/sirupsen/logrus"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/vehicle-rental-marketplace/internal/queue"
)

// silentBroker accepts connections and never answers the AMQP handshake.
func silentBroker(t *testing.T) string {
    t.Helper()
    ln, err := net.Listen("tcp", "127.0.0.1:0")
    require.NoError(t, err)
    t.Cleanup(func() { _ = ln.Close() })
    go func() {
        for {
            conn, err := ln.Accept()
            if err != nil {
                return
            }
            go func() {
                _, _ = io.Copy(io.Discard, conn)
                _ = conn.Close()
            }()
        }
    }()
    return "amqp://guest:guest@" + ln.Addr().String() + "/"
}

func quietLogger() *logrus.Logger {
    log := logrus.New()
    log.SetOutput(io.Discard)
    return log
}

func TestNewWithoutURLIsNoop(t *testing.T) {
    p := New("", quietLogger())
    assert.IsType(t, Noop{}, p)
    assert.NoError(t, p.Publish(context.Background(), queue.SupportSubmittedQueue, nil))
}

func TestNewSetsDialTimeout(t *testing.T) {
    p, ok := New("amqp://localhost/", quietLogger()).(*AMQP)
    require.True(t, ok)
    assert.Equal(t, DefaultDialTimeout, p.DialTimeout)
}

func TestPublishGivesUpOnSilentBroker(t *testing.T) {
    p := &AMQP{URL: silentBroker(t), Log: quietLogger(), DialTimeout: 200 * time.Millisecond}

    start := time.Now()
    err := p.Publish(context.Background(), queue.SupportSubmittedQueue, map[string]string{"id": "m1"})
    assert.Error(t, err)
    assert.Less(t, time.Since(start), 3*time.Second)
}

func TestPublishHonorsContextDeadline(t *testing.T) {
    p := &AMQP{URL: silentBroker(t), Log: quietLogger(), DialTimeout: time.Minute}

    ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
    defer cancel()
    start := time.Now()
    err := p.Publish(ctx, queue.SupportSubmittedQueue, map[string]string{"id": "m1"})
    assert.Error(t, err)
    assert.Less(t, time.Since(start), 3*time.Second)
}
