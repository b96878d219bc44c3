// internal/dispatch/dispatcher.go
package dispatch

import (
	"context"
	"sync"
	"time"

	"school-notify/internal/channels"
	"school-notify/internal/common/errors"
	"school-notify/internal/common/logger"
	"school-notify/internal/common/metrics"
	"school-notify/internal/models"
	"school-notify/internal/notification"
	"school-notify/internal/recipient"

	"github.com/google/uuid"
)

// Dispatcher attempts delivery for every (recipient, channel) pair of a
// notification. Sends run concurrently on bounded per-channel worker pools;
// every outcome funnels through a single collector that appends the attempt
// to the aggregate and recomputes the rollup, so workers never touch the
// aggregate concurrently.
type Dispatcher struct {
	senders  map[models.Channel]channels.Sender
	contacts recipient.ContactDirectory
	dedup    DedupStore
	cfg      *Config
	logger   logger.Logger
}

func NewDispatcher(senders []channels.Sender, contacts recipient.ContactDirectory, dedup DedupStore, cfg *Config, log logger.Logger) *Dispatcher {
	byChannel := make(map[models.Channel]channels.Sender, len(senders))
	for _, s := range senders {
		byChannel[s.Channel()] = s
	}
	if dedup == nil {
		dedup = NoopDedup{}
	}
	return &Dispatcher{
		senders:  byChannel,
		contacts: contacts,
		dedup:    dedup,
		cfg:      cfg,
		logger:   log.WithFields(map[string]interface{}{"component": "dispatcher"}),
	}
}

// task is one (recipient, channel) send unit.
type task struct {
	contact models.Contact
	channel models.Channel
}

// result carries one finished attempt back to the collector.
type result struct {
	recipientID string
	attempt     models.DeliveryAttempt
}

// Dispatch delivers to every frozen recipient on every enabled channel. The
// aggregate must already be in sending state (BeginSending resolved and
// froze the recipient list); anything else is a caller bug, rejected
// outright. Per-recipient failures never surface as errors: they become
// failed or bounced attempts in the rollup.
func (d *Dispatcher) Dispatch(ctx context.Context, agg *notification.Aggregate) error {
	snap := agg.Snapshot()
	if snap.Status != models.StatusSending {
		return errors.NewStateInvalidError(string(snap.Status), "dispatch")
	}

	started := time.Now()
	log := d.logger.WithFields(map[string]interface{}{"notificationId": snap.ID})
	log.Info("dispatch started", map[string]interface{}{
		"recipients": len(snap.Records),
		"channels":   len(snap.Channels),
	})

	contacts := d.lookupContacts(ctx, snap, log)

	// Collector: the single writer for the aggregate while dispatch runs.
	results := make(chan result, len(snap.Records))
	var collectorDone sync.WaitGroup
	collectorDone.Add(1)
	go func() {
		defer collectorDone.Done()
		for res := range results {
			if err := agg.AppendAttempt(res.recipientID, res.attempt); err != nil {
				log.Error("attempt append failed", map[string]interface{}{
					"recipientId": res.recipientID,
					"error":       err.Error(),
				})
				continue
			}
			metrics.DeliveryAttempts.WithLabelValues(
				string(res.attempt.Channel), string(res.attempt.Status)).Inc()
			if res.attempt.Status == models.AttemptDelivered {
				if err := d.dedup.MarkDelivered(ctx, snap.ID, res.recipientID, res.attempt.Channel); err != nil {
					log.Warn("dedup mark failed", map[string]interface{}{
						"recipientId": res.recipientID,
						"error":       err.Error(),
					})
				}
			}
		}
	}()

	// One bounded worker pool per channel.
	var workersDone sync.WaitGroup
	for _, ch := range snap.Channels {
		sender, ok := d.senders[ch]
		if !ok {
			log.Error("no sender registered for channel", map[string]interface{}{
				"channel": string(ch),
			})
			continue
		}

		settings := d.cfg.Settings(ch)
		tasks := make(chan task)

		for i := 0; i < settings.Workers; i++ {
			workersDone.Add(1)
			go func(ch models.Channel, sender channels.Sender, settings ChannelSettings) {
				defer workersDone.Done()
				for t := range tasks {
					d.runTask(ctx, agg, snap, sender, settings, t, results)
				}
			}(ch, sender, settings)
		}

		workersDone.Add(1)
		go func(ch models.Channel, tasks chan<- task) {
			defer workersDone.Done()
			defer close(tasks)
			for _, rec := range snap.Records {
				contact, ok := contacts[rec.RecipientID]
				if !ok {
					// unknown to the directory: senders bounce on the
					// missing address
					contact = models.Contact{UserID: rec.RecipientID}
				}
				if !contact.Accepts(ch) {
					continue
				}
				select {
				case tasks <- task{contact: contact, channel: ch}:
				case <-ctx.Done():
					return
				}
			}
		}(ch, tasks)
	}

	workersDone.Wait()
	close(results)
	collectorDone.Wait()

	// A cancellation that landed mid-dispatch wins over finishing: the
	// attempts already issued stay recorded under cancelled.
	if agg.Status() == models.StatusSending {
		if err := agg.FinishSending(time.Now().UTC()); err != nil {
			return err
		}
	}
	outcome := string(agg.Status())

	metrics.DispatchDuration.WithLabelValues(outcome).Observe(time.Since(started).Seconds())
	final := agg.Snapshot()
	log.Info("dispatch finished", map[string]interface{}{
		"status":    string(final.Status),
		"delivered": final.Rollup.Delivered,
		"failed":    final.Rollup.Failed,
		"pending":   final.Rollup.Pending,
		"duration":  time.Since(started).String(),
	})
	return nil
}

// runTask sends to one recipient on one channel, retrying failed attempts up
// to the channel's budget. Every issued attempt is recorded, including the
// ones cut short by the per-send timeout.
func (d *Dispatcher) runTask(ctx context.Context, agg *notification.Aggregate, snap models.Notification, sender channels.Sender, settings ChannelSettings, t task, results chan<- result) {
	ch := sender.Channel()

	// Cancellation check between issues: in-flight sends complete, new
	// ones are not started.
	if ctx.Err() != nil || agg.Status() != models.StatusSending {
		return
	}

	// Idempotent re-dispatch: skip pairs that already delivered.
	if agg.DeliveredOn(t.contact.UserID, ch) {
		return
	}
	if seen, err := d.dedup.Seen(ctx, snap.ID, t.contact.UserID, ch); err == nil && seen {
		return
	}

	msg := channels.Message{
		NotificationID: snap.ID,
		Type:           snap.Type,
		Priority:       snap.Priority,
		Content:        snap.ContentFor(ch),
	}

	backoff := settings.Backoff
	for attemptNo := 0; attemptNo <= settings.MaxRetries; attemptNo++ {
		attempt := d.sendOnce(ctx, sender, settings, t.contact, msg)
		results <- result{recipientID: t.contact.UserID, attempt: attempt}

		if attempt.Status.Terminal() {
			return
		}
		if attemptNo == settings.MaxRetries {
			return
		}

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return
		}
		if agg.Status() != models.StatusSending {
			return
		}
	}
}

// sendOnce issues a single attempt with the per-channel timeout. The send
// context is detached from the dispatch context so an attempt already in
// flight when dispatch is cancelled still completes and is recorded.
func (d *Dispatcher) sendOnce(ctx context.Context, sender channels.Sender, settings ChannelSettings, contact models.Contact, msg channels.Message) models.DeliveryAttempt {
	ch := sender.Channel()
	metrics.DispatchInFlight.WithLabelValues(string(ch)).Inc()
	defer metrics.DispatchInFlight.WithLabelValues(string(ch)).Dec()

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settings.Timeout)
	defer cancel()

	started := time.Now().UTC()
	outcome := sender.Send(sendCtx, contact, msg)
	metrics.SendDuration.WithLabelValues(string(ch)).Observe(time.Since(started).Seconds())

	attempt := models.DeliveryAttempt{
		ID:          uuid.New().String(),
		Channel:     ch,
		Status:      outcome.Status,
		AttemptedAt: started,
		Error:       outcome.Error,
	}
	if outcome.Status == models.AttemptDelivered {
		deliveredAt := time.Now().UTC()
		attempt.DeliveredAt = &deliveredAt
	}
	// A sender must never leave an attempt dangling: a timeout or an
	// unset status is recorded as failed.
	if attempt.Status == "" || attempt.Status == models.AttemptPending {
		attempt.Status = models.AttemptFailed
		if attempt.Error == "" {
			attempt.Error = "send returned no outcome"
		}
	}
	return attempt
}

func (d *Dispatcher) lookupContacts(ctx context.Context, snap models.Notification, log logger.Logger) map[string]models.Contact {
	ids := make([]string, len(snap.Records))
	for i, rec := range snap.Records {
		ids[i] = rec.RecipientID
	}

	contacts, err := d.contacts.LookupContacts(ctx, ids)
	if err != nil {
		// Degraded: every send proceeds with an empty contact and the
		// senders bounce on missing addresses rather than blocking the
		// whole dispatch.
		log.Error("contact lookup failed", map[string]interface{}{"error": err.Error()})
		return map[string]models.Contact{}
	}
	return contacts
}
