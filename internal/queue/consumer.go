package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/sirupsen/logrus"
    "gopkg.in/gomail.v2"

    "github.com/iliyamo/vehicle-rental-marketplace/internal/config"
)

// Notifier tells the site operator about a new support message.
type Notifier interface {
    Notify(ev SupportSubmittedEvent) error
}

// MailNotifier emails support messages through SMTP.
type MailNotifier struct {
    SMTP config.SMTPConfig
    To   string
}

func (m MailNotifier) Notify(ev SupportSubmittedEvent) error {
    msg := gomail.NewMessage()
    msg.SetHeader("From", m.SMTP.From)
    msg.SetHeader("To", m.To)
    if ev.Email != "" {
        msg.SetHeader("Reply-To", ev.Email)
    }
    subject := ev.Subject
    if subject == "" {
        subject = "New support message"
    }
    msg.SetHeader("Subject", fmt.Sprintf("[%s] %s", ev.Priority, subject))
    msg.SetBody("text/plain", fmt.Sprintf("From: %s <%s>\nIssue: %s\n\n%s", ev.Name, ev.Email, ev.IssueType, ev.Message))
    return gomail.NewDialer(m.SMTP.Host, m.SMTP.Port, m.SMTP.User, m.SMTP.Password).DialAndSend(msg)
}

// FileNotifier appends one line per message to Path.
type FileNotifier struct {
    Path string
    mu   sync.Mutex
}

func (f *FileNotifier) Notify(ev SupportSubmittedEvent) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
        return fmt.Errorf("mkdir logs: %w", err)
    }
    fh, err := os.OpenFile(f.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer fh.Close()
    line := fmt.Sprintf("[%s] Support message | id=%s | priority=%s | issue=%q | from=%q <%s> | subject=%q\n",
        ev.SubmittedAt, ev.MessageID, ev.Priority, ev.IssueType, ev.Name, ev.Email, ev.Subject)
    if _, err := fh.WriteString(line); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

// NewNotifier mails when SMTP is configured and writes logs/support.log
// otherwise.
func NewNotifier(smtp config.SMTPConfig, to string) Notifier {
    if smtp.Enabled() && to != "" {
        return MailNotifier{SMTP: smtp, To: to}
    }
    return &FileNotifier{Path: filepath.Join("logs", "support.log")}
}

// Consumer drains the support and review queues.
type Consumer struct {
    URL      string
    Log      *logrus.Logger
    Notifier Notifier
}

// Run connects, consumes and reconnects with exponential backoff until ctx
// is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        conn, err := amqp.Dial(c.URL)
        if err != nil {
            c.Log.WithError(err).Warnf("queue consumer: dial failed, retrying in %s", backoff)
            if !sleep(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second

        err = c.consume(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        c.Log.WithError(err).Warn("queue consumer: loop ended, reconnecting")
        if !sleep(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        c.Log.WithError(err).Warn("queue consumer: set QoS failed")
    }

    deliveries := make(map[string]<-chan amqp.Delivery, 2)
    for _, name := range []string{SupportSubmittedQueue, ReviewSubmittedQueue} {
        if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
            return fmt.Errorf("queue declare %s: %w", name, err)
        }
        msgs, err := ch.Consume(name, "", false, false, false, false, nil)
        if err != nil {
            return fmt.Errorf("queue consume %s: %w", name, err)
        }
        deliveries[name] = msgs
    }

    support, reviews := deliveries[SupportSubmittedQueue], deliveries[ReviewSubmittedQueue]
    for {
        var d amqp.Delivery
        var ok bool
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok = <-support:
        case d, ok = <-reviews:
        }
        if !ok {
            return errors.New("deliveries channel closed")
        }
        if err := c.Handle(d.RoutingKey, d.Body); err != nil {
            c.Log.WithError(err).WithField("queue", d.RoutingKey).Error("queue consumer: handle message failed")
            _ = d.Nack(false, false)
            continue
        }
        _ = d.Ack(false)
    }
}

// Handle processes one message body from queueName.
func (c *Consumer) Handle(queueName string, body []byte) error {
    switch queueName {
    case SupportSubmittedQueue:
        var ev SupportSubmittedEvent
        if err := json.Unmarshal(body, &ev); err != nil {
            return fmt.Errorf("unmarshal: %w", err)
        }
        return c.Notifier.Notify(ev)
    case ReviewSubmittedQueue:
        var ev ReviewSubmittedEvent
        if err := json.Unmarshal(body, &ev); err != nil {
            return fmt.Errorf("unmarshal: %w", err)
        }
        c.Log.WithFields(logrus.Fields{
            "review_id":  ev.ReviewID,
            "host_id":    ev.HostID,
            "vehicle_id": ev.VehicleID,
            "rating":     ev.Rating,
        }).Info("review submitted")
        return nil
    }
    return fmt.Errorf("unknown queue %q", queueName)
}
