// Package notification delivers booking and payment events to the
// notification queue. Delivery is best-effort: failures are logged and
// returned, and callers are expected to ignore them rather than roll back
// the mutation that triggered the event.
package notification

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"servicehub/internal/domain"
)

const queueName = "servicehub.notifications"

type Event struct {
	Type          string    `json:"type"`
	RecipientID   int64     `json:"recipient_id"`
	BookingID     int64     `json:"booking_id"`
	BookingNumber string    `json:"booking_number"`
	Amount        int64     `json:"amount,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	At            time.Time `json:"at"`
}

// Publisher pushes events onto a durable RabbitMQ queue as persistent JSON
// messages.
type Publisher struct {
	url     string
	loggerf func(format string, args ...interface{})
}

func NewPublisher(url string, loggerf func(format string, args ...interface{})) *Publisher {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	return &Publisher{url: url, loggerf: loggerf}
}

func (p *Publisher) publish(ctx context.Context, ev Event) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.loggerf("level=error msg=notification dial failed err=%v", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.loggerf("level=error msg=notification channel open failed err=%v", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	// Durable so events survive broker restarts; declare is idempotent.
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		p.loggerf("level=error msg=notification queue declare failed err=%v", err)
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(ctx, "", queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		p.loggerf("level=error msg=notification publish failed type=%s booking_id=%d err=%v", ev.Type, ev.BookingID, err)
	}
	return err
}

func (p *Publisher) event(typ string, recipientID int64, b *domain.Booking) Event {
	return Event{
		Type:          typ,
		RecipientID:   recipientID,
		BookingID:     b.ID,
		BookingNumber: b.BookingNumber,
		At:            time.Now().UTC(),
	}
}

func (p *Publisher) NotifyBookingCreated(ctx context.Context, recipientID int64, b *domain.Booking) error {
	return p.publish(ctx, p.event("booking.created", recipientID, b))
}

func (p *Publisher) NotifyBookingConfirmed(ctx context.Context, recipientID int64, b *domain.Booking) error {
	return p.publish(ctx, p.event("booking.confirmed", recipientID, b))
}

func (p *Publisher) NotifyBookingCancelled(ctx context.Context, recipientID int64, b *domain.Booking, reason string) error {
	ev := p.event("booking.cancelled", recipientID, b)
	ev.Reason = reason
	return p.publish(ctx, ev)
}

func (p *Publisher) NotifyPaymentSucceeded(ctx context.Context, recipientID int64, b *domain.Booking, amount int64) error {
	ev := p.event("payment.success", recipientID, b)
	ev.Amount = amount
	return p.publish(ctx, ev)
}

func (p *Publisher) NotifyPaymentFailed(ctx context.Context, recipientID int64, b *domain.Booking) error {
	return p.publish(ctx, p.event("payment.failed", recipientID, b))
}

func (p *Publisher) NotifyPaymentRefunded(ctx context.Context, recipientID int64, b *domain.Booking, amount int64) error {
	ev := p.event("payment.refunded", recipientID, b)
	ev.Amount = amount
	return p.publish(ctx, ev)
}

// Noop satisfies the notification contracts when no broker is configured.
type Noop struct{}

func (Noop) NotifyBookingCreated(context.Context, int64, *domain.Booking) error { return nil }
func (Noop) NotifyBookingConfirmed(context.Context, int64, *domain.Booking) error {
	return nil
}
func (Noop) NotifyBookingCancelled(context.Context, int64, *domain.Booking, string) error {
	return nil
}
func (Noop) NotifyPaymentSucceeded(context.Context, int64, *domain.Booking, int64) error {
	return nil
}
func (Noop) NotifyPaymentFailed(context.Context, int64, *domain.Booking) error { return nil }
func (Noop) NotifyPaymentRefunded(context.Context, int64, *domain.Booking, int64) error {
	return nil
}
