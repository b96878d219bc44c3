// internal/notification/aggregate.go
package notification

import (
	"context"
	"sync"
	"time"

	"school-notify/internal/common/errors"
	"school-notify/internal/common/metrics"
	"school-notify/internal/models"
)

// RecipientResolver is the slice of the resolver the aggregate needs when it
// enters sending and freezes its recipient list.
type RecipientResolver interface {
	Resolve(ctx context.Context, spec models.RecipientSpec, asOf time.Time) ([]string, error)
}

// ViewCounter is the pluggable rule for deriving unique views from delivery
// records. The default counts lifetime reads; windowed rules can be swapped
// in without touching the tracker.
type ViewCounter interface {
	UniqueViews(records []models.DeliveryRecord, now time.Time) int
}

// LifetimeViews counts every recipient that has ever read the notification.
type LifetimeViews struct{}

func (LifetimeViews) UniqueViews(records []models.DeliveryRecord, _ time.Time) int {
	n := 0
	for i := range records {
		if records[i].IsRead {
			n++
		}
	}
	return n
}

// WindowedViews counts only reads within the trailing window.
type WindowedViews struct {
	Window time.Duration
}

func (w WindowedViews) UniqueViews(records []models.DeliveryRecord, now time.Time) int {
	n := 0
	for i := range records {
		if records[i].IsRead && records[i].ReadAt != nil && now.Sub(*records[i].ReadAt) <= w.Window {
			n++
		}
	}
	return n
}

// Aggregate serializes all mutation of one notification: delivery-record
// appends, rollup recomputation and receipt marks all go through its lock.
// Dispatch workers for different recipients run in parallel but funnel their
// results through here, one writer at a time.
type Aggregate struct {
	mu    sync.Mutex
	n     *models.Notification
	views ViewCounter
}

func NewAggregate(n *models.Notification) *Aggregate {
	return &Aggregate{n: n, views: LifetimeViews{}}
}

// SetViewCounter replaces the unique-view counting rule.
func (a *Aggregate) SetViewCounter(vc ViewCounter) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.views = vc
}

// ID returns the notification identity.
func (a *Aggregate) ID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.n.ID
}

// Status returns the current lifecycle status.
func (a *Aggregate) Status() models.NotificationStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.n.Status
}

// Snapshot returns a consistent copy of the notification: the rollup in the
// copy always matches the attempts it summarizes.
func (a *Aggregate) Snapshot() models.Notification {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.copyLocked()
}

func (a *Aggregate) copyLocked() models.Notification {
	cp := *a.n
	cp.Records = make([]models.DeliveryRecord, len(a.n.Records))
	copy(cp.Records, a.n.Records)
	for i := range cp.Records {
		attempts := make([]models.DeliveryAttempt, len(a.n.Records[i].Attempts))
		copy(attempts, a.n.Records[i].Attempts)
		cp.Records[i].Attempts = attempts
	}
	if a.n.Content != nil {
		cp.Content = make(map[models.Channel]models.ChannelContent, len(a.n.Content))
		for k, v := range a.n.Content {
			cp.Content[k] = v
		}
	}
	if a.n.Rollup.ByChannel != nil {
		cp.Rollup.ByChannel = make(map[models.Channel]models.ChannelStats, len(a.n.Rollup.ByChannel))
		for k, v := range a.n.Rollup.ByChannel {
			cp.Rollup.ByChannel[k] = v
		}
	}
	return cp
}

// ==========================
// Lifecycle transitions
// ==========================

// Submit moves a draft forward: to pending approval when the template
// demands sign-off, straight to approved otherwise.
func (a *Aggregate) Submit(now time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.expireLocked(now); err != nil {
		return err
	}
	if a.n.Status != models.StatusDraft {
		return errors.NewStateInvalidError(string(a.n.Status), "submit")
	}

	if a.n.Approval.State == models.ApprovalPending {
		a.setStatusLocked(models.StatusPendingApproval, now)
	} else {
		a.setStatusLocked(models.StatusApproved, now)
	}
	return nil
}

// Approve records the approver's sign-off and unlocks dispatch.
func (a *Aggregate) Approve(approverID, comment string, now time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.expireLocked(now); err != nil {
		return err
	}
	if a.n.Status != models.StatusPendingApproval {
		return errors.NewStateInvalidError(string(a.n.Status), "approve")
	}

	a.n.Approval.State = models.ApprovalApproved
	a.n.Approval.ApproverID = approverID
	a.n.Approval.Comment = comment
	decided := now
	a.n.Approval.DecidedAt = &decided
	a.setStatusLocked(models.StatusApproved, now)
	return nil
}

// Reject is terminal for this notification instance; a corrected copy must
// be created instead of reviving it.
func (a *Aggregate) Reject(approverID, comment string, now time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.n.Status != models.StatusPendingApproval {
		return errors.NewStateInvalidError(string(a.n.Status), "reject")
	}

	a.n.Approval.State = models.ApprovalRejected
	a.n.Approval.ApproverID = approverID
	a.n.Approval.Comment = comment
	decided := now
	a.n.Approval.DecidedAt = &decided
	a.setStatusLocked(models.StatusCancelled, now)
	return nil
}

// Schedule queues an approved notification for a later dispatch.
func (a *Aggregate) Schedule(at time.Time, now time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.expireLocked(now); err != nil {
		return err
	}
	if a.n.Status != models.StatusApproved {
		return errors.NewStateInvalidError(string(a.n.Status), "schedule")
	}

	scheduled := at
	a.n.ScheduledAt = &scheduled
	a.setStatusLocked(models.StatusScheduled, now)
	return nil
}

// BeginSending performs the one-shot recipient resolution and freezes the
// delivery-record list. Re-entering while already sending with a frozen list
// is a no-op so that an interrupted dispatch can be resumed.
func (a *Aggregate) BeginSending(ctx context.Context, resolver RecipientResolver, now time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.expireLocked(now); err != nil {
		return err
	}

	if a.n.Status == models.StatusSending && len(a.n.Records) > 0 {
		return nil
	}

	switch a.n.Status {
	case models.StatusApproved, models.StatusScheduled:
	case models.StatusPendingApproval:
		return errors.NewApprovalRequiredError(a.n.ID)
	default:
		return errors.NewStateInvalidError(string(a.n.Status), "send")
	}
	if a.n.Approval.State == models.ApprovalPending {
		return errors.NewApprovalRequiredError(a.n.ID)
	}
	if a.n.Approval.State == models.ApprovalRejected {
		return errors.NewStateInvalidError(string(a.n.Status), "send rejected notification")
	}

	// A resolution failure leaves status untouched: the transition aborts
	// and the whole operation is safe to retry.
	ids, err := resolver.Resolve(ctx, a.n.Recipients, now)
	if err != nil {
		return err
	}

	records := make([]models.DeliveryRecord, len(ids))
	for i, id := range ids {
		records[i] = models.DeliveryRecord{RecipientID: id}
	}
	a.n.Records = records
	a.n.Rollup = Recompute(a.n.Records, a.n.Channels)
	a.setStatusLocked(models.StatusSending, now)
	return nil
}

// FinishSending settles the terminal dispatch status once every recipient
// has been attempted.
func (a *Aggregate) FinishSending(now time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.n.Status != models.StatusSending {
		return errors.NewStateInvalidError(string(a.n.Status), "finish sending")
	}

	sent := now
	a.n.SentAt = &sent
	if a.n.Rollup.Total > 0 && a.n.Rollup.Delivered == 0 && a.n.Rollup.Pending == 0 {
		a.setStatusLocked(models.StatusFailed, now)
	} else {
		a.setStatusLocked(models.StatusSent, now)
	}
	return nil
}

// Cancel stops a notification before it is sent. Attempts already issued
// stay recorded; the dispatcher checks the status before issuing new ones.
func (a *Aggregate) Cancel(now time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.n.Status {
	case models.StatusSent, models.StatusFailed, models.StatusCancelled, models.StatusExpired:
		return errors.NewStateInvalidError(string(a.n.Status), "cancel")
	}

	a.setStatusLocked(models.StatusCancelled, now)
	return nil
}

// ExpireIfDue transitions a pre-sent notification to expired once its expiry
// timestamp has passed. It reports whether the transition happened.
func (a *Aggregate) ExpireIfDue(now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.expireLocked(now) != nil
}

// expireLocked flips the status to expired when due and returns the expiry
// error callers surface.
func (a *Aggregate) expireLocked(now time.Time) error {
	switch a.n.Status {
	case models.StatusSent, models.StatusFailed, models.StatusCancelled, models.StatusExpired:
		if a.n.Status == models.StatusExpired {
			return errors.NewNotificationExpiredError(a.n.ID)
		}
		return nil
	}
	if a.n.Expired(now) {
		a.setStatusLocked(models.StatusExpired, now)
		return errors.NewNotificationExpiredError(a.n.ID)
	}
	return nil
}

func (a *Aggregate) setStatusLocked(s models.NotificationStatus, now time.Time) {
	a.n.Status = s
	a.n.UpdatedAt = now
	metrics.NotificationsByStatus.WithLabelValues(string(s)).Inc()
}

// ==========================
// Delivery-record mutation
// ==========================

// AppendAttempt records one delivery attempt for a recipient and recomputes
// the rollup from the full attempt history. Only the dispatcher calls this.
func (a *Aggregate) AppendAttempt(recipientID string, attempt models.DeliveryAttempt) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec := a.n.Record(recipientID)
	if rec == nil {
		return errors.NewNotificationNotFoundError(recipientID)
	}

	rec.Attempts = append(rec.Attempts, attempt)
	a.n.Rollup = Recompute(a.n.Records, a.n.Channels)
	a.n.UpdatedAt = attempt.AttemptedAt
	return nil
}

// DeliveredOn reports whether the recipient already has a delivered attempt
// on the channel. The dispatcher uses it to skip work on re-dispatch.
func (a *Aggregate) DeliveredOn(recipientID string, ch models.Channel) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec := a.n.Record(recipientID)
	if rec == nil {
		return false
	}
	last, ok := rec.LastAttempt(ch)
	return ok && last.Status == models.AttemptDelivered
}

// ==========================
// Receipt mutation
// ==========================

// MarkRead sets the recipient's read flag idempotently and bumps the view
// counters. TotalViews counts every call; UniqueViews is derived from the
// records by the configured counting rule, never incremented ad hoc. It
// reports whether this was the recipient's first read.
func (a *Aggregate) MarkRead(recipientID string, at time.Time) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec := a.n.Record(recipientID)
	if rec == nil {
		return false, errors.NewNotificationNotFoundError(recipientID)
	}

	first := !rec.IsRead
	if first {
		rec.IsRead = true
		readAt := at
		rec.ReadAt = &readAt
	}

	a.n.Analytics.TotalViews++
	a.n.Analytics.ViewsByHour[at.Hour()]++
	a.n.Analytics.UniqueViews = a.views.UniqueViews(a.n.Records, at)
	a.n.UpdatedAt = at
	return first, nil
}

// MarkActioned records a click-through idempotently per recipient. An action
// does not imply a read; callers wanting that semantic mark read first.
func (a *Aggregate) MarkActioned(recipientID, action string, at time.Time) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec := a.n.Record(recipientID)
	if rec == nil {
		return false, errors.NewNotificationNotFoundError(recipientID)
	}

	first := !rec.IsActioned
	if first {
		rec.IsActioned = true
		actionedAt := at
		rec.ActionedAt = &actionedAt
		rec.Action = action
	}

	clicks := 0
	for i := range a.n.Records {
		if a.n.Records[i].IsActioned {
			clicks++
		}
	}
	a.n.Analytics.ClickThroughs = clicks
	a.n.UpdatedAt = at
	return first, nil
}

// SetDevice attaches device metadata to a recipient's record when a channel
// learns it.
func (a *Aggregate) SetDevice(recipientID, device, platform string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if rec := a.n.Record(recipientID); rec != nil {
		if device != "" {
			rec.Device = device
		}
		if platform != "" {
			rec.Platform = platform
		}
	}
}
