// Package events publishes domain events to RabbitMQ. Publishing is best
// effort: failures are logged and returned so callers can ignore them
// without interrupting the request.
package events

import (
    "context"
    "encoding/json"
    "net"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/vehicle-rental-marketplace/internal/queue"
)

// Publisher sends an event to a named queue.
type Publisher interface {
    Publish(ctx context.Context, queueName string, event any) error
}

// Noop drops every event. It is used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, string, any) error { return nil }

// DefaultDialTimeout bounds the connect and handshake of one publish.
const DefaultDialTimeout = 2 * time.Second

// AMQP dials the broker for each publish, declares the durable queue and
// sends a persistent JSON message on the default exchange.
type AMQP struct {
    URL         string
    Log         *logrus.Logger
    DialTimeout time.Duration
}

// New returns an AMQP publisher for url, or Noop when url is empty.
func New(url string, log *logrus.Logger) Publisher {
    if url == "" {
        return Noop{}
    }
    return &AMQP{URL: url, Log: log, DialTimeout: DefaultDialTimeout}
}

// dial connects within DialTimeout or the ctx deadline, whichever is sooner.
// The deadline also covers the AMQP handshake; the client clears it once the
// connection is open.
func (p *AMQP) dial(ctx context.Context) (*amqp.Connection, error) {
    timeout := p.DialTimeout
    if timeout <= 0 {
        timeout = DefaultDialTimeout
    }
    deadline := time.Now().Add(timeout)
    if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
        deadline = d
    }
    return amqp.DialConfig(p.URL, amqp.Config{
        Dial: func(network, addr string) (net.Conn, error) {
            d := net.Dialer{Deadline: deadline}
            conn, err := d.DialContext(ctx, network, addr)
            if err != nil {
                return nil, err
            }
            if err := conn.SetDeadline(deadline); err != nil {
                _ = conn.Close()
                return nil, err
            }
            return conn, nil
        },
    })
}

func (p *AMQP) Publish(ctx context.Context, queueName string, event any) error {
    l := p.Log.WithField("queue", queueName)
    conn, err := p.dial(ctx)
    if err != nil {
        l.WithError(err).Warn("rabbitmq dial failed")
        return err
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        l.WithError(err).Warn("rabbitmq channel open failed")
        return err
    }
    defer func() { _ = ch.Close() }()

    if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
        l.WithError(err).Warn("rabbitmq queue declare failed")
        return err
    }

    body, err := json.Marshal(event)
    if err != nil {
        return err
    }
    if err := ch.PublishWithContext(ctx, "", queueName, false, false, amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        Timestamp:    time.Now().UTC(),
        Body:         body,
    }); err != nil {
        l.WithError(err).Warn("rabbitmq publish failed")
        return err
    }
    return nil
}

// SupportSubmitted publishes a support message event.
func SupportSubmitted(ctx context.Context, p Publisher, ev queue.SupportSubmittedEvent) error {
    return p.Publish(ctx, queue.SupportSubmittedQueue, ev)
}

// ReviewSubmitted publishes a review event.
func ReviewSubmitted(ctx context.Context, p Publisher, ev queue.ReviewSubmittedEvent) error {
    return p.Publish(ctx, queue.ReviewSubmittedQueue, ev)
}

// Recorder keeps published events in memory. Handlers' tests use it.
type Recorder struct {
    Events []Recorded
}

// Recorded is one captured publish.
type Recorded struct {
    Queue string
    Event any
}

func (r *Recorder) Publish(_ context.Context, queueName string, event any) error {
    r.Events = append(r.Events, Recorded{Queue: queueName, Event: event})
    return nil
}
