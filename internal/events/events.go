package events

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

// Routing keys consumed by the notification worker.
const (
	BookingConfirmed = "booking.confirmed"
	BookingCancelled = "booking.cancelled"
	BookingExpired   = "booking.expired"
	BookingNoShow    = "booking.no_show"
	BookingCompleted = "booking.completed"

	MeetingCodeIssued = "meeting.code_issued"
	MeetingStarted    = "meeting.started"
	MeetingExtension  = "meeting.extension"

	PaymentCaptured        = "payment.captured"
	PaymentRefunded        = "payment.refunded"
	PaymentTransferPending = "payment.transfer_pending"
)

// Event is the envelope published for every notification. Recipients
// are user ids; the worker resolves channels (email/push) itself.
type Event struct {
	ID         string         `json:"id"`
	Key        string         `json:"key"`
	BookingID  int64          `json:"booking_id,omitempty"`
	RequestID  int64          `json:"request_id,omitempty"`
	Recipients []int64        `json:"recipients"`
	Data       map[string]any `json:"data,omitempty"`
	EmittedAt  time.Time      `json:"emitted_at"`
}

// JSONPublisher is the transport the notifier writes to.
type JSONPublisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// Notifier fans state transitions out to interested parties. Emit is
// called only after the owning transaction has committed, and its
// failures are logged, never propagated.
type Notifier interface {
	Emit(ctx context.Context, key string, bookingID int64, recipients []int64, data map[string]any)
	EmitRequest(ctx context.Context, key string, requestID int64, recipients []int64, data map[string]any)
}

// QueueNotifier publishes events to the outbound queue.
type QueueNotifier struct {
	Pub JSONPublisher
}

func (n QueueNotifier) Emit(ctx context.Context, key string, bookingID int64, recipients []int64, data map[string]any) {
	n.publish(ctx, Event{
		ID:         uuid.NewString(),
		Key:        key,
		BookingID:  bookingID,
		Recipients: recipients,
		Data:       data,
		EmittedAt:  time.Now().UTC(),
	})
}

func (n QueueNotifier) EmitRequest(ctx context.Context, key string, requestID int64, recipients []int64, data map[string]any) {
	n.publish(ctx, Event{
		ID:         uuid.NewString(),
		Key:        key,
		RequestID:  requestID,
		Recipients: recipients,
		Data:       data,
		EmittedAt:  time.Now().UTC(),
	})
}

func (n QueueNotifier) publish(ctx context.Context, ev Event) {
	if n.Pub == nil {
		return
	}
	if err := n.Pub.PublishJSON(ctx, ev.Key, ev); err != nil {
		log.Printf("[EVENTS] action=publish key=%s booking_id=%d msg=gagal publish: %v", ev.Key, ev.BookingID, err)
	}
}

// NopNotifier drops everything. Used when AMQP is not configured.
type NopNotifier struct{}

func (NopNotifier) Emit(ctx context.Context, key string, bookingID int64, recipients []int64, data map[string]any) {
}
func (NopNotifier) EmitRequest(ctx context.Context, key string, requestID int64, recipients []int64, data map[string]any) {
}
