// internal/receipt/tracker.go
package receipt

import (
	"context"
	"time"

	"school-notify/internal/common/logger"
	"school-notify/internal/common/metrics"
	"school-notify/internal/notification"
)

// Tracker records read and action receipts. Receipts arrive asynchronously
// and independently of dispatch; each touches only its own recipient's
// record through the aggregate's single-writer lock, so they may run
// concurrently with an ongoing dispatch.
type Tracker struct {
	sink   EventSink
	logger logger.Logger
}

func NewTracker(sink EventSink, log logger.Logger) *Tracker {
	if sink == nil {
		sink = NoopSink{}
	}
	return &Tracker{
		sink:   sink,
		logger: log.WithFields(map[string]interface{}{"component": "receipt-tracker"}),
	}
}

// MarkRead sets the recipient's read receipt. Idempotent per recipient: a
// second call leaves unique views unchanged while total views still count
// the call.
func (t *Tracker) MarkRead(ctx context.Context, agg *notification.Aggregate, recipientID string, at time.Time) error {
	first, err := agg.MarkRead(recipientID, at)
	if err != nil {
		return err
	}

	metrics.ReceiptsRecorded.WithLabelValues("read").Inc()
	t.emit(ctx, Event{
		NotificationID: agg.ID(),
		RecipientID:    recipientID,
		Kind:           EventRead,
		First:          first,
		At:             at,
	})
	return nil
}

// MarkActioned records a click-through. Independent of read state: the
// engine does not infer a view from an action.
func (t *Tracker) MarkActioned(ctx context.Context, agg *notification.Aggregate, recipientID, action string, at time.Time) error {
	first, err := agg.MarkActioned(recipientID, action, at)
	if err != nil {
		return err
	}

	metrics.ReceiptsRecorded.WithLabelValues("action").Inc()
	t.emit(ctx, Event{
		NotificationID: agg.ID(),
		RecipientID:    recipientID,
		Kind:           EventAction,
		Action:         action,
		First:          first,
		At:             at,
	})
	return nil
}

// emit forwards the event to the analytics sink. Sink failures are logged
// and dropped; engagement indexing never blocks receipt recording.
func (t *Tracker) emit(ctx context.Context, ev Event) {
	if err := t.sink.Record(ctx, ev); err != nil {
		t.logger.Warn("analytics sink failed", map[string]interface{}{
			"notificationId": ev.NotificationID,
			"kind":           string(ev.Kind),
			"error":          err.Error(),
		})
	}
}
