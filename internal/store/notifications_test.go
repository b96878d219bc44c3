// internal/store/notifications_test.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"school-notify/internal/common/errors"
	"school-notify/internal/common/logger"
	"school-notify/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	return db, mock
}

func sampleNotification() *models.Notification {
	return &models.Notification{
		ID:       "n-1",
		Template: "fee-reminder",
		Type:     "fee",
		Priority: models.PriorityHigh,
		Title:    "Fee reminder",
		Message:  "Fee is due.",
		Channels: []models.Channel{models.ChannelInApp},
		Recipients: models.RecipientSpec{
			Roles: []string{"parent"},
		},
		Status:    models.StatusDraft,
		CreatedAt: time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC),
	}
}

func TestNotificationStore_Save(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	s := NewNotificationStore(db, logger.NewTestLogger(t))
	n := sampleNotification()

	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(n.ID, string(n.Status), sqlmock.AnyArg(), nil, nil, n.CreatedAt, n.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Save(context.Background(), n))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationStore_Get(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	s := NewNotificationStore(db, logger.NewTestLogger(t))
	n := sampleNotification()
	raw, err := json.Marshal(n)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT data FROM notifications").
		WithArgs("n-1").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow(raw))

	got, err := s.Get(context.Background(), "n-1")
	require.NoError(t, err)
	assert.Equal(t, n.ID, got.ID)
	assert.Equal(t, n.Status, got.Status)
	assert.Equal(t, n.Recipients.Roles, got.Recipients.Roles)
}

func TestNotificationStore_Get_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	s := NewNotificationStore(db, logger.NewTestLogger(t))

	mock.ExpectQuery("SELECT data FROM notifications").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	got, err := s.Get(context.Background(), "missing")
	assert.Nil(t, got)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNotificationNotFound, errors.CodeOf(err))
}

func TestNotificationStore_ListDue(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	s := NewNotificationStore(db, logger.NewTestLogger(t))
	now := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	due := sampleNotification()
	due.Status = models.StatusScheduled
	at := now.Add(-time.Minute)
	due.ScheduledAt = &at
	raw, err := json.Marshal(due)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT data FROM notifications").
		WithArgs(string(models.StatusScheduled), now, 50).
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow(raw))

	got, err := s.ListDue(context.Background(), now, 50)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "n-1", got[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationStore_ListExpired(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	s := NewNotificationStore(db, logger.NewTestLogger(t))
	now := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	stale := sampleNotification()
	exp := now.Add(-time.Hour)
	stale.ExpiresAt = &exp
	raw, err := json.Marshal(stale)
	require.NoError(t, err)

	// the sweep covers every unsettled status, including a dispatch that
	// was interrupted mid-flight
	unsettled := pq.Array([]string{
		"draft", "pending_approval", "approved", "scheduled", "sending",
	})
	mock.ExpectQuery("SELECT data FROM notifications").
		WithArgs(unsettled, now, 50).
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow(raw))

	got, err := s.ListExpired(context.Background(), now, 50)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "n-1", got[0].ID)
}

func TestNotificationStore_SaveRoundTripsRecords(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	s := NewNotificationStore(db, logger.NewTestLogger(t))

	n := sampleNotification()
	n.Status = models.StatusSent
	deliveredAt := time.Date(2026, 8, 29, 9, 30, 0, 0, time.UTC)
	n.Records = []models.DeliveryRecord{{
		RecipientID: "u1",
		Attempts: []models.DeliveryAttempt{{
			ID: "a1", Channel: models.ChannelInApp,
			Status: models.AttemptDelivered, AttemptedAt: deliveredAt, DeliveredAt: &deliveredAt,
		}},
		IsRead: true,
		ReadAt: &deliveredAt,
	}}

	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(n.ID, string(n.Status), sqlmock.AnyArg(), nil, nil, n.CreatedAt, n.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Save(context.Background(), n))

	stored, err := json.Marshal(n)
	require.NoError(t, err)
	mock.ExpectQuery("SELECT data FROM notifications").
		WithArgs("n-1").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow(stored))

	got, err := s.Get(context.Background(), "n-1")
	require.NoError(t, err)
	require.Len(t, got.Records, 1)
	assert.True(t, got.Records[0].IsRead)
	require.Len(t, got.Records[0].Attempts, 1)
	assert.Equal(t, models.AttemptDelivered, got.Records[0].Attempts[0].Status)
}
