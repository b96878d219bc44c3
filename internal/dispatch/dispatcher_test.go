// internal/dispatch/dispatcher_test.go
package dispatch

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"school-notify/internal/channels"
	"school-notify/internal/common/errors"
	"school-notify/internal/common/logger"
	"school-notify/internal/models"
	"school-notify/internal/notification"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

type fakeSender struct {
	ch   models.Channel
	send func(ctx context.Context, contact models.Contact, msg channels.Message) channels.Outcome
}

func (f *fakeSender) Channel() models.Channel { return f.ch }

func (f *fakeSender) Send(ctx context.Context, contact models.Contact, msg channels.Message) channels.Outcome {
	return f.send(ctx, contact, msg)
}

func deliverAlways(ch models.Channel) *fakeSender {
	return &fakeSender{
		ch: ch,
		send: func(context.Context, models.Contact, channels.Message) channels.Outcome {
			return channels.Outcome{Status: models.AttemptDelivered}
		},
	}
}

type fakeContacts struct {
	contacts map[string]models.Contact
	err      error
}

func (f *fakeContacts) LookupContacts(_ context.Context, userIDs []string) (map[string]models.Contact, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]models.Contact, len(userIDs))
	for _, id := range userIDs {
		if c, ok := f.contacts[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

func contactsFor(ids ...string) *fakeContacts {
	m := make(map[string]models.Contact, len(ids))
	for _, id := range ids {
		m[id] = models.Contact{
			UserID: id,
			Email:  id + "@school.test",
			Phone:  "+91000000000",
		}
	}
	return &fakeContacts{contacts: m}
}

func sendingNotification(chs []models.Channel, recipients ...string) *models.Notification {
	records := make([]models.DeliveryRecord, len(recipients))
	for i, id := range recipients {
		records[i] = models.DeliveryRecord{RecipientID: id}
	}
	n := &models.Notification{
		ID:       "n-1",
		Type:     "fee_overdue",
		Priority: models.PriorityHigh,
		Content: map[models.Channel]models.ChannelContent{
			models.ChannelInApp: {Title: "Fee overdue", Body: "Please pay the pending fee."},
		},
		Channels: chs,
		Records:  records,
		Status:   models.StatusSending,
	}
	n.Rollup = notification.Recompute(n.Records, n.Channels)
	return n
}

func testConfig(chs ...models.Channel) *Config {
	cfg := &Config{Channels: map[models.Channel]ChannelSettings{}}
	for _, ch := range chs {
		cfg.Channels[ch] = ChannelSettings{
			Workers:    2,
			Timeout:    time.Second,
			MaxRetries: 0,
			Backoff:    time.Millisecond,
		}
	}
	return cfg
}

// ==========================
// Dispatch Tests
// ==========================

func TestDispatcher_DeliversToAllRecipientsOnAllChannels(t *testing.T) {
	chs := []models.Channel{models.ChannelInApp, models.ChannelEmail}
	recipients := []string{"u1", "u2", "u3", "u4", "u5"}
	agg := notification.NewAggregate(sendingNotification(chs, recipients...))

	d := NewDispatcher(
		[]channels.Sender{deliverAlways(models.ChannelInApp), deliverAlways(models.ChannelEmail)},
		contactsFor(recipients...),
		nil,
		testConfig(chs...),
		logger.NewTestLogger(t),
	)

	require.NoError(t, d.Dispatch(context.Background(), agg))

	snap := agg.Snapshot()
	assert.Equal(t, models.StatusSent, snap.Status)
	assert.Equal(t, 5, snap.Rollup.Total)
	assert.Equal(t, 5, snap.Rollup.Delivered)
	assert.Equal(t, 0, snap.Rollup.Pending)

	// at least one attempt per (recipient, channel) pair
	for _, rec := range snap.Records {
		for _, ch := range chs {
			_, ok := rec.LastAttempt(ch)
			assert.True(t, ok, "recipient %s has no attempt on %s", rec.RecipientID, ch)
		}
	}
}

func TestDispatcher_RequiresSendingState(t *testing.T) {
	n := sendingNotification([]models.Channel{models.ChannelInApp}, "u1")
	n.Status = models.StatusApproved
	agg := notification.NewAggregate(n)

	d := NewDispatcher(
		[]channels.Sender{deliverAlways(models.ChannelInApp)},
		contactsFor("u1"),
		nil,
		testConfig(models.ChannelInApp),
		logger.NewTestLogger(t),
	)

	err := d.Dispatch(context.Background(), agg)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeStateInvalid, errors.CodeOf(err))
}

func TestDispatcher_ChannelTimeoutCoveredByOtherChannel(t *testing.T) {
	chs := []models.Channel{models.ChannelInApp, models.ChannelSMS}
	agg := notification.NewAggregate(sendingNotification(chs, "u1", "u2"))

	// sms never answers inside the per-send timeout
	smsSender := &fakeSender{
		ch: models.ChannelSMS,
		send: func(ctx context.Context, _ models.Contact, _ channels.Message) channels.Outcome {
			<-ctx.Done()
			return channels.Outcome{Status: models.AttemptFailed, Error: "gateway timeout"}
		},
	}

	cfg := testConfig(chs...)
	cfg.Channels[models.ChannelSMS] = ChannelSettings{
		Workers: 2, Timeout: 20 * time.Millisecond, MaxRetries: 0, Backoff: time.Millisecond,
	}

	d := NewDispatcher(
		[]channels.Sender{deliverAlways(models.ChannelInApp), smsSender},
		contactsFor("u1", "u2"),
		nil,
		cfg,
		logger.NewTestLogger(t),
	)

	require.NoError(t, d.Dispatch(context.Background(), agg))

	snap := agg.Snapshot()
	// in-app delivery carries both recipients despite the sms failures
	assert.Equal(t, models.StatusSent, snap.Status)
	assert.Equal(t, 2, snap.Rollup.Delivered)
	assert.Equal(t, 2, snap.Rollup.ByChannel[models.ChannelSMS].Failed)
	assert.Equal(t, 2, snap.Rollup.ByChannel[models.ChannelInApp].Delivered)
}

func TestDispatcher_AllChannelsFailed(t *testing.T) {
	chs := []models.Channel{models.ChannelEmail}
	agg := notification.NewAggregate(sendingNotification(chs, "u1", "u2"))

	bouncer := &fakeSender{
		ch: models.ChannelEmail,
		send: func(context.Context, models.Contact, channels.Message) channels.Outcome {
			return channels.Outcome{Status: models.AttemptBounced, Error: "address rejected"}
		},
	}

	d := NewDispatcher(
		[]channels.Sender{bouncer},
		contactsFor("u1", "u2"),
		nil,
		testConfig(chs...),
		logger.NewTestLogger(t),
	)

	require.NoError(t, d.Dispatch(context.Background(), agg))
	assert.Equal(t, models.StatusFailed, agg.Status())
}

func TestDispatcher_RetriesFailedAttempts(t *testing.T) {
	chs := []models.Channel{models.ChannelEmail}
	agg := notification.NewAggregate(sendingNotification(chs, "u1"))

	var mu sync.Mutex
	calls := 0
	flaky := &fakeSender{
		ch: models.ChannelEmail,
		send: func(context.Context, models.Contact, channels.Message) channels.Outcome {
			mu.Lock()
			defer mu.Unlock()
			calls++
			if calls == 1 {
				return channels.Outcome{Status: models.AttemptFailed, Error: "transient"}
			}
			return channels.Outcome{Status: models.AttemptDelivered}
		},
	}

	cfg := &Config{Channels: map[models.Channel]ChannelSettings{
		models.ChannelEmail: {Workers: 1, Timeout: time.Second, MaxRetries: 2, Backoff: time.Millisecond},
	}}

	d := NewDispatcher(
		[]channels.Sender{flaky},
		contactsFor("u1"),
		nil,
		cfg,
		logger.NewTestLogger(t),
	)

	require.NoError(t, d.Dispatch(context.Background(), agg))

	snap := agg.Snapshot()
	assert.Equal(t, models.StatusSent, snap.Status)
	assert.Equal(t, 2, calls)

	// both attempts are in the history
	rec := snap.Record("u1")
	require.NotNil(t, rec)
	require.Len(t, rec.Attempts, 2)
	assert.Equal(t, models.AttemptFailed, rec.Attempts[0].Status)
	assert.Equal(t, models.AttemptDelivered, rec.Attempts[1].Status)
}

func TestDispatcher_BouncedIsNeverRetried(t *testing.T) {
	chs := []models.Channel{models.ChannelEmail}
	agg := notification.NewAggregate(sendingNotification(chs, "u1"))

	var mu sync.Mutex
	calls := 0
	bouncer := &fakeSender{
		ch: models.ChannelEmail,
		send: func(context.Context, models.Contact, channels.Message) channels.Outcome {
			mu.Lock()
			defer mu.Unlock()
			calls++
			return channels.Outcome{Status: models.AttemptBounced, Error: "no such mailbox"}
		},
	}

	cfg := &Config{Channels: map[models.Channel]ChannelSettings{
		models.ChannelEmail: {Workers: 1, Timeout: time.Second, MaxRetries: 3, Backoff: time.Millisecond},
	}}

	d := NewDispatcher(
		[]channels.Sender{bouncer},
		contactsFor("u1"),
		nil,
		cfg,
		logger.NewTestLogger(t),
	)

	require.NoError(t, d.Dispatch(context.Background(), agg))
	assert.Equal(t, 1, calls)
}

func TestDispatcher_CancelMidDispatchStopsNewAttempts(t *testing.T) {
	chs := []models.Channel{models.ChannelInApp}
	recipients := []string{"u1", "u2", "u3", "u4", "u5", "u6", "u7", "u8", "u9", "u10"}
	agg := notification.NewAggregate(sendingNotification(chs, recipients...))

	var mu sync.Mutex
	sent := 0
	sender := &fakeSender{
		ch: models.ChannelInApp,
		send: func(context.Context, models.Contact, channels.Message) channels.Outcome {
			mu.Lock()
			sent++
			n := sent
			mu.Unlock()
			if n == 3 {
				// cancellation lands while this send is in flight; it still
				// completes and is recorded
				require.NoError(t, agg.Cancel(time.Now().UTC()))
			}
			return channels.Outcome{Status: models.AttemptDelivered}
		},
	}

	cfg := &Config{Channels: map[models.Channel]ChannelSettings{
		models.ChannelInApp: {Workers: 1, Timeout: time.Second, MaxRetries: 0, Backoff: time.Millisecond},
	}}

	d := NewDispatcher(
		[]channels.Sender{sender},
		contactsFor(recipients...),
		nil,
		cfg,
		logger.NewTestLogger(t),
	)

	require.NoError(t, d.Dispatch(context.Background(), agg))

	snap := agg.Snapshot()
	assert.Equal(t, models.StatusCancelled, snap.Status)
	assert.Equal(t, 3, snap.Rollup.Delivered)
	assert.Equal(t, 7, snap.Rollup.Pending)
}

func TestDispatcher_SkipsAlreadyDeliveredOnRedispatch(t *testing.T) {
	chs := []models.Channel{models.ChannelInApp}
	n := sendingNotification(chs, "u1", "u2")
	deliveredAt := time.Now().UTC()
	n.Records[0].Attempts = []models.DeliveryAttempt{{
		ID: "prev", Channel: models.ChannelInApp, Status: models.AttemptDelivered,
		AttemptedAt: deliveredAt, DeliveredAt: &deliveredAt,
	}}
	n.Rollup = notification.Recompute(n.Records, n.Channels)
	agg := notification.NewAggregate(n)

	var mu sync.Mutex
	var sentTo []string
	sender := &fakeSender{
		ch: models.ChannelInApp,
		send: func(_ context.Context, contact models.Contact, _ channels.Message) channels.Outcome {
			mu.Lock()
			sentTo = append(sentTo, contact.UserID)
			mu.Unlock()
			return channels.Outcome{Status: models.AttemptDelivered}
		},
	}

	d := NewDispatcher(
		[]channels.Sender{sender},
		contactsFor("u1", "u2"),
		nil,
		testConfig(chs...),
		logger.NewTestLogger(t),
	)

	require.NoError(t, d.Dispatch(context.Background(), agg))

	// u1 already delivered on this channel; only u2 is attempted again
	assert.Equal(t, []string{"u2"}, sentTo)
	snap := agg.Snapshot()
	assert.Equal(t, 2, snap.Rollup.Delivered)
	require.Len(t, snap.Record("u1").Attempts, 1)
}

func TestDispatcher_RespectsChannelPreferences(t *testing.T) {
	chs := []models.Channel{models.ChannelInApp, models.ChannelEmail}
	agg := notification.NewAggregate(sendingNotification(chs, "u1"))

	contacts := &fakeContacts{contacts: map[string]models.Contact{
		"u1": {
			UserID:      "u1",
			Email:       "u1@school.test",
			Preferences: []models.Channel{models.ChannelInApp}, // opted out of email
		},
	}}

	var mu sync.Mutex
	var attempted []models.Channel
	record := func(ch models.Channel) *fakeSender {
		return &fakeSender{
			ch: ch,
			send: func(context.Context, models.Contact, channels.Message) channels.Outcome {
				mu.Lock()
				attempted = append(attempted, ch)
				mu.Unlock()
				return channels.Outcome{Status: models.AttemptDelivered}
			},
		}
	}

	d := NewDispatcher(
		[]channels.Sender{record(models.ChannelInApp), record(models.ChannelEmail)},
		contacts,
		nil,
		testConfig(chs...),
		logger.NewTestLogger(t),
	)

	require.NoError(t, d.Dispatch(context.Background(), agg))
	assert.Equal(t, []models.Channel{models.ChannelInApp}, attempted)
}

func TestDispatcher_ContactLookupFailureDegrades(t *testing.T) {
	chs := []models.Channel{models.ChannelEmail}
	agg := notification.NewAggregate(sendingNotification(chs, "u1"))

	var gotContact models.Contact
	sender := &fakeSender{
		ch: models.ChannelEmail,
		send: func(_ context.Context, contact models.Contact, _ channels.Message) channels.Outcome {
			gotContact = contact
			// real senders bounce on the missing address
			return channels.Outcome{Status: models.AttemptBounced, Error: "no email address"}
		},
	}

	d := NewDispatcher(
		[]channels.Sender{sender},
		&fakeContacts{err: stderrors.New("directory down")},
		nil,
		testConfig(chs...),
		logger.NewTestLogger(t),
	)

	require.NoError(t, d.Dispatch(context.Background(), agg))

	// dispatch proceeded with an empty contact instead of aborting
	assert.Equal(t, "u1", gotContact.UserID)
	assert.Empty(t, gotContact.Email)
	assert.Equal(t, models.StatusFailed, agg.Status())
}

func TestDispatcher_EmptySenderOutcomeRecordedAsFailed(t *testing.T) {
	chs := []models.Channel{models.ChannelEmail}
	agg := notification.NewAggregate(sendingNotification(chs, "u1"))

	broken := &fakeSender{
		ch: models.ChannelEmail,
		send: func(context.Context, models.Contact, channels.Message) channels.Outcome {
			return channels.Outcome{}
		},
	}

	d := NewDispatcher(
		[]channels.Sender{broken},
		contactsFor("u1"),
		nil,
		testConfig(chs...),
		logger.NewTestLogger(t),
	)

	require.NoError(t, d.Dispatch(context.Background(), agg))

	snap := agg.Snapshot()
	rec := snap.Record("u1")
	require.NotNil(t, rec)
	require.NotEmpty(t, rec.Attempts)
	assert.Equal(t, models.AttemptFailed, rec.Attempts[0].Status)
	assert.NotEmpty(t, rec.Attempts[0].Error)
}
