// internal/engine/engine.go
package engine

import (
	"context"
	"sync"
	"time"

	"school-notify/internal/common/errors"
	"school-notify/internal/common/logger"
	"school-notify/internal/common/observability"
	"school-notify/internal/dispatch"
	"school-notify/internal/models"
	"school-notify/internal/notification"
	"school-notify/internal/receipt"
	"school-notify/internal/recipient"
	"school-notify/internal/store"
	"school-notify/internal/template"
)

// Engine is the notification dispatch and delivery-tracking engine: the
// library surface the surrounding CRUD layer calls. It owns the live
// aggregates, so a cancel issued through it reaches a dispatch already in
// flight.
type Engine struct {
	templates  *template.Store
	store      *store.NotificationStore
	resolver   *recipient.Resolver
	dispatcher *dispatch.Dispatcher
	tracker    *receipt.Tracker
	obs        *observability.Observability
	views      notification.ViewCounter
	logger     logger.Logger

	mu     sync.Mutex
	active map[string]*notification.Aggregate
}

type Deps struct {
	Templates  *template.Store
	Store      *store.NotificationStore
	Resolver   *recipient.Resolver
	Dispatcher *dispatch.Dispatcher
	Tracker    *receipt.Tracker
	Obs        *observability.Observability
	Views      notification.ViewCounter
	Logger     logger.Logger
}

func New(deps Deps) *Engine {
	views := deps.Views
	if views == nil {
		views = notification.LifetimeViews{}
	}
	return &Engine{
		templates:  deps.Templates,
		store:      deps.Store,
		resolver:   deps.Resolver,
		dispatcher: deps.Dispatcher,
		tracker:    deps.Tracker,
		obs:        deps.Obs,
		views:      views,
		logger:     deps.Logger.WithFields(map[string]interface{}{"component": "engine"}),
		active:     map[string]*notification.Aggregate{},
	}
}

// CreateFromTemplate renders a draft notification from a stored template.
func (e *Engine) CreateFromTemplate(ctx context.Context, templateName string, vars map[string]string, opts template.BuildOptions) (*models.Notification, error) {
	t, err := e.templates.Get(ctx, templateName)
	if err != nil {
		return nil, err
	}

	n, err := template.BuildNotification(t, vars, opts, e.logger)
	if err != nil {
		return nil, err
	}

	if err := e.store.Save(ctx, n); err != nil {
		return nil, err
	}

	e.logger.Info("notification created", map[string]interface{}{
		"notificationId": n.ID,
		"template":       templateName,
		"recipientsSpec": len(n.Recipients.UserIDs) + len(n.Recipients.Roles) + len(n.Recipients.Classes) + len(n.Recipients.Filters),
	})
	return n, nil
}

// CreateAdHoc stores a caller-built draft with no template origin.
func (e *Engine) CreateAdHoc(ctx context.Context, n *models.Notification) error {
	if n.Recipients.Empty() {
		return errors.NewRecipientSpecInvalidError("recipient spec selects nobody")
	}
	for _, ch := range n.Channels {
		if !ch.Valid() {
			return errors.NewChannelUnknownError(string(ch))
		}
	}
	if n.Status == "" {
		n.Status = models.StatusDraft
	}
	if n.Approval.State == "" {
		n.Approval.State = models.ApprovalNotRequired
	}
	return e.store.Save(ctx, n)
}

// ==========================
// Lifecycle operations
// ==========================

func (e *Engine) Submit(ctx context.Context, id string) error {
	return e.mutate(ctx, id, func(agg *notification.Aggregate) error {
		return agg.Submit(time.Now().UTC())
	})
}

func (e *Engine) Approve(ctx context.Context, id, approverID, comment string) error {
	return e.mutate(ctx, id, func(agg *notification.Aggregate) error {
		return agg.Approve(approverID, comment, time.Now().UTC())
	})
}

func (e *Engine) Reject(ctx context.Context, id, approverID, comment string) error {
	return e.mutate(ctx, id, func(agg *notification.Aggregate) error {
		return agg.Reject(approverID, comment, time.Now().UTC())
	})
}

func (e *Engine) Schedule(ctx context.Context, id string, at time.Time) error {
	return e.mutate(ctx, id, func(agg *notification.Aggregate) error {
		return agg.Schedule(at, time.Now().UTC())
	})
}

// Cancel stops a pre-sent notification. When a dispatch is in flight the
// status flip stops new attempts from being issued; attempts already in
// flight complete and are recorded.
func (e *Engine) Cancel(ctx context.Context, id string) error {
	return e.mutate(ctx, id, func(agg *notification.Aggregate) error {
		return agg.Cancel(time.Now().UTC())
	})
}

// Send resolves recipients, freezes the delivery-record list and dispatches
// across all enabled channels. Safe to re-invoke: already-delivered
// (recipient, channel) pairs are skipped and the rollup is recomputed from
// the full attempt history.
func (e *Engine) Send(ctx context.Context, id string) error {
	agg, err := e.aggregate(ctx, id)
	if err != nil {
		return err
	}

	started := time.Now()
	if err := agg.BeginSending(ctx, e.resolver, time.Now().UTC()); err != nil {
		// the aggregate may have flipped to expired; persist that
		e.persist(ctx, agg)
		return err
	}
	if err := e.persist(ctx, agg); err != nil {
		return err
	}

	err = e.dispatcher.Dispatch(ctx, agg)

	if persistErr := e.persist(ctx, agg); persistErr != nil && err == nil {
		err = persistErr
	}

	outcome := string(agg.Status())
	if e.obs != nil {
		e.obs.RecordDispatch(ctx, outcome)
		e.obs.RecordDispatchDuration(ctx, time.Since(started), outcome)
	}

	e.release(id)
	return err
}

// ==========================
// Receipts
// ==========================

func (e *Engine) MarkRead(ctx context.Context, id, recipientID string, at time.Time) error {
	agg, err := e.aggregate(ctx, id)
	if err != nil {
		return err
	}
	if err := e.tracker.MarkRead(ctx, agg, recipientID, at); err != nil {
		return err
	}
	return e.persist(ctx, agg)
}

func (e *Engine) MarkActioned(ctx context.Context, id, recipientID, action string, at time.Time) error {
	agg, err := e.aggregate(ctx, id)
	if err != nil {
		return err
	}
	if err := e.tracker.MarkActioned(ctx, agg, recipientID, action, at); err != nil {
		return err
	}
	return e.persist(ctx, agg)
}

// Get returns a consistent snapshot of one notification.
func (e *Engine) Get(ctx context.Context, id string) (*models.Notification, error) {
	agg, err := e.aggregate(ctx, id)
	if err != nil {
		return nil, err
	}
	snap := agg.Snapshot()
	return &snap, nil
}

// ==========================
// Scheduler entry points
// ==========================

// DispatchDue sends every scheduled notification whose time has arrived.
func (e *Engine) DispatchDue(ctx context.Context, now time.Time, limit int) int {
	due, err := e.store.ListDue(ctx, now, limit)
	if err != nil {
		e.logger.Error("due listing failed", map[string]interface{}{"error": err.Error()})
		return 0
	}

	dispatched := 0
	for _, n := range due {
		if err := e.Send(ctx, n.ID); err != nil {
			e.logger.Error("scheduled dispatch failed", map[string]interface{}{
				"notificationId": n.ID,
				"error":          err.Error(),
				"retryable":      errors.IsRetryable(err),
			})
			continue
		}
		dispatched++
	}
	return dispatched
}

// ExpireDue flips pre-sent notifications past their expiry timestamp.
func (e *Engine) ExpireDue(ctx context.Context, now time.Time, limit int) int {
	overdue, err := e.store.ListExpired(ctx, now, limit)
	if err != nil {
		e.logger.Error("expiry listing failed", map[string]interface{}{"error": err.Error()})
		return 0
	}

	expired := 0
	for _, n := range overdue {
		agg, err := e.aggregate(ctx, n.ID)
		if err != nil {
			continue
		}
		if agg.ExpireIfDue(now) {
			if err := e.persist(ctx, agg); err == nil {
				expired++
			}
			e.release(n.ID)
		}
	}
	return expired
}

// ==========================
// Aggregate registry
// ==========================

// aggregate returns the live aggregate for a notification, loading it from
// the store on first touch. One live instance per notification keeps the
// single-writer discipline across concurrent callers.
func (e *Engine) aggregate(ctx context.Context, id string) (*notification.Aggregate, error) {
	e.mu.Lock()
	if agg, ok := e.active[id]; ok {
		e.mu.Unlock()
		return agg, nil
	}
	e.mu.Unlock()

	n, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if agg, ok := e.active[id]; ok {
		return agg, nil
	}
	agg := notification.NewAggregate(n)
	agg.SetViewCounter(e.views)
	e.active[id] = agg
	return agg, nil
}

// release drops a settled aggregate from the registry once it has no
// in-flight dispatch.
func (e *Engine) release(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if agg, ok := e.active[id]; ok {
		switch agg.Status() {
		case models.StatusSent, models.StatusFailed, models.StatusCancelled, models.StatusExpired:
			delete(e.active, id)
		}
	}
}

func (e *Engine) mutate(ctx context.Context, id string, f func(*notification.Aggregate) error) error {
	agg, err := e.aggregate(ctx, id)
	if err != nil {
		return err
	}
	if err := f(agg); err != nil {
		return err
	}
	return e.persist(ctx, agg)
}

func (e *Engine) persist(ctx context.Context, agg *notification.Aggregate) error {
	snap := agg.Snapshot()
	return e.store.Save(ctx, &snap)
}
