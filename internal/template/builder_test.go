// internal/template/builder_test.go
package template

import (
	"testing"
	"time"

	"school-notify/internal/common/errors"
	"school-notify/internal/common/logger"
	"school-notify/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func createFeeReminderTemplate() *models.Template {
	return &models.Template{
		Name:     "fee-reminder",
		Type:     "fee",
		Category: "finance",
		Channels: map[models.Channel]models.ChannelContent{
			models.ChannelInApp: {
				Title: "Fee reminder",
				Body:  "Dear {{parent_name}}, {{amount}} is due for {{student_name}}.",
			},
			models.ChannelSMS: {
				Body: "{{amount}} due for {{student_name}} by {{due_date}}.",
			},
		},
		Variables: []models.TemplateVariable{
			{Name: "parent_name", Type: "string", Required: true},
			{Name: "student_name", Type: "string", Required: true},
			{Name: "amount", Type: "string", Required: true},
			{Name: "due_date", Type: "string", Default: "end of month"},
		},
		Recipients: models.RecipientSpec{
			Roles: []string{"parent"},
		},
		Settings: models.TemplateSettings{
			Priority:        models.PriorityHigh,
			EnabledChannels: []models.Channel{models.ChannelInApp, models.ChannelSMS},
		},
	}
}

func feeVars() map[string]string {
	return map[string]string{
		"parent_name":  "Mrs. Rao",
		"student_name": "Aarav",
		"amount":       "4500",
	}
}

// ==========================
// BuildNotification Tests
// ==========================

func TestBuildNotification_RendersAllChannels(t *testing.T) {
	log := logger.NewTestLogger(t)
	now := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	n, err := BuildNotification(createFeeReminderTemplate(), feeVars(), BuildOptions{
		SenderID:   "admin-1",
		SenderRole: "admin",
		Now:        now,
	}, log)
	require.NoError(t, err)

	assert.NotEmpty(t, n.ID)
	assert.Equal(t, "fee-reminder", n.Template)
	assert.Equal(t, models.StatusDraft, n.Status)
	assert.Equal(t, models.PriorityHigh, n.Priority)
	assert.Equal(t, models.ApprovalNotRequired, n.Approval.State)
	assert.Equal(t, now, n.CreatedAt)

	inApp := n.Content[models.ChannelInApp]
	assert.Equal(t, "Dear Mrs. Rao, 4500 is due for Aarav.", inApp.Body)

	// default kicked in for due_date
	sms := n.Content[models.ChannelSMS]
	assert.Equal(t, "4500 due for Aarav by end of month.", sms.Body)
}

func TestBuildNotification_MissingRequiredVariable(t *testing.T) {
	log := logger.NewTestLogger(t)
	vars := feeVars()
	delete(vars, "amount")

	n, err := BuildNotification(createFeeReminderTemplate(), vars, BuildOptions{}, log)
	assert.Nil(t, n)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeTemplateValidationFailed, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "amount")
}

func TestBuildNotification_UnresolvedOptionalPlaceholderDegrades(t *testing.T) {
	log := logger.NewTestLogger(t)
	tmpl := createFeeReminderTemplate()
	tmpl.Channels[models.ChannelInApp] = models.ChannelContent{
		Body: "Dear {{parent_name}}, see {{portal_link}}.",
	}

	n, err := BuildNotification(tmpl, feeVars(), BuildOptions{}, log)
	require.NoError(t, err)

	// notification still created with the marker left in place
	assert.Contains(t, n.Content[models.ChannelInApp].Body, "{{portal_link}}")
}

func TestBuildNotification_Overrides(t *testing.T) {
	log := logger.NewTestLogger(t)
	tmpl := createFeeReminderTemplate()
	explicit := models.RecipientSpec{UserIDs: []string{"user-7"}}

	n, err := BuildNotification(tmpl, feeVars(), BuildOptions{
		Recipients: &explicit,
		Channels:   []models.Channel{models.ChannelInApp},
		Priority:   models.PriorityUrgent,
	}, log)
	require.NoError(t, err)

	assert.Equal(t, []string{"user-7"}, n.Recipients.UserIDs)
	assert.Empty(t, n.Recipients.Roles)
	assert.Equal(t, []models.Channel{models.ChannelInApp}, n.Channels)
	assert.Equal(t, models.PriorityUrgent, n.Priority)
}

func TestBuildNotification_InvalidInputs(t *testing.T) {
	log := logger.NewTestLogger(t)

	tests := []struct {
		name     string
		mutate   func(*models.Template, *BuildOptions)
		wantCode errors.ErrorCode
	}{
		{
			name: "unknown channel",
			mutate: func(_ *models.Template, opts *BuildOptions) {
				opts.Channels = []models.Channel{"telegram"}
			},
			wantCode: errors.ErrCodeChannelUnknown,
		},
		{
			name: "no channels enabled",
			mutate: func(tmpl *models.Template, _ *BuildOptions) {
				tmpl.Settings.EnabledChannels = nil
			},
			wantCode: errors.ErrCodeTemplateValidationFailed,
		},
		{
			name: "empty recipient spec",
			mutate: func(tmpl *models.Template, _ *BuildOptions) {
				tmpl.Recipients = models.RecipientSpec{}
			},
			wantCode: errors.ErrCodeRecipientSpecInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl := createFeeReminderTemplate()
			opts := BuildOptions{}
			tt.mutate(tmpl, &opts)

			n, err := BuildNotification(tmpl, feeVars(), opts, log)
			assert.Nil(t, n)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, errors.CodeOf(err))
		})
	}
}

func TestBuildNotification_ApprovalAndExpiry(t *testing.T) {
	log := logger.NewTestLogger(t)
	now := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	tmpl := createFeeReminderTemplate()
	tmpl.Settings.RequireApproval = true
	tmpl.Settings.Expiry = 48 * time.Hour

	n, err := BuildNotification(tmpl, feeVars(), BuildOptions{Now: now}, log)
	require.NoError(t, err)

	assert.Equal(t, models.ApprovalPending, n.Approval.State)
	require.NotNil(t, n.ExpiresAt)
	assert.Equal(t, now.Add(48*time.Hour), *n.ExpiresAt)
}
