// internal/store/notifications.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"time"

	"school-notify/internal/common/errors"
	"school-notify/internal/common/logger"
	"school-notify/internal/models"

	"github.com/lib/pq"
)

// NotificationStore persists the notification aggregate as one document row.
// Delivery records and the rollup live in the same document, so an update is
// atomic relative to concurrent readers: nobody ever observes a rollup
// inconsistent with the attempts it summarizes.
type NotificationStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewNotificationStore(db *sql.DB, log logger.Logger) *NotificationStore {
	return &NotificationStore{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "notification-store"}),
	}
}

// Save upserts the aggregate document.
func (s *NotificationStore) Save(ctx context.Context, n *models.Notification) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return errors.NewStoreQueryFailedError("notification encode", err)
	}

	const query = `
		INSERT INTO notifications (id, status, data, scheduled_at, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    data = EXCLUDED.data,
		    scheduled_at = EXCLUDED.scheduled_at,
		    expires_at = EXCLUDED.expires_at,
		    updated_at = EXCLUDED.updated_at`

	_, err = s.db.ExecContext(ctx, query,
		n.ID, string(n.Status), raw, n.ScheduledAt, n.ExpiresAt, n.CreatedAt, n.UpdatedAt)
	if err != nil {
		return errors.NewStoreQueryFailedError("notification save", err)
	}

	return nil
}

// Get loads one aggregate by ID.
func (s *NotificationStore) Get(ctx context.Context, id string) (*models.Notification, error) {
	const query = `SELECT data FROM notifications WHERE id = $1`

	var raw []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(&raw)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotificationNotFoundError(id)
	}
	if err != nil {
		return nil, errors.NewStoreQueryFailedError("notification get", err)
	}

	return decode(raw)
}

// ListDue returns scheduled notifications whose dispatch time has arrived.
func (s *NotificationStore) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Notification, error) {
	const query = `
		SELECT data FROM notifications
		WHERE status = $1 AND scheduled_at IS NOT NULL AND scheduled_at <= $2
		ORDER BY scheduled_at
		LIMIT $3`

	return s.list(ctx, query, string(models.StatusScheduled), now, limit)
}

// ListExpired returns unsettled notifications past their expiry timestamp.
// The sending status is included so a dispatch interrupted mid-flight is
// still picked up by the expiry sweep instead of stranding the row.
func (s *NotificationStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.Notification, error) {
	const query = `
		SELECT data FROM notifications
		WHERE status = ANY($1) AND expires_at IS NOT NULL AND expires_at < $2
		ORDER BY expires_at
		LIMIT $3`

	unsettled := pq.Array([]string{
		string(models.StatusDraft),
		string(models.StatusPendingApproval),
		string(models.StatusApproved),
		string(models.StatusScheduled),
		string(models.StatusSending),
	})
	return s.list(ctx, query, unsettled, now, limit)
}

func (s *NotificationStore) list(ctx context.Context, query string, args ...interface{}) ([]*models.Notification, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewStoreQueryFailedError("notification list", err)
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, errors.NewStoreQueryFailedError("notification list scan", err)
		}
		n, err := decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreQueryFailedError("notification list", err)
	}

	return out, nil
}

func decode(raw []byte) (*models.Notification, error) {
	var n models.Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, errors.NewStoreQueryFailedError("notification decode", err)
	}
	return &n, nil
}
