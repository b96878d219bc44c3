// internal/template/builder.go
package template

import (
	"fmt"
	"strings"
	"time"

	"school-notify/internal/common/errors"
	"school-notify/internal/common/logger"
	"school-notify/internal/models"

	"github.com/google/uuid"
)

// BuildOptions carry the sender identity and the per-notification overrides
// of the template defaults.
type BuildOptions struct {
	SenderID    string
	SenderRole  string
	Recipients  *models.RecipientSpec // nil means the template default
	Channels    []models.Channel      // nil means the template default
	Priority    models.Priority       // empty means the template default
	ScheduledAt *time.Time
	Now         time.Time // zero means time.Now
}

// BuildNotification renders a draft notification from a template and a set of
// variable values. Missing required variables are a configuration error; the
// notification is never created. Unresolved optional placeholders are logged
// and rendering proceeds with degraded content.
func BuildNotification(t *models.Template, vars map[string]string, opts BuildOptions, log logger.Logger) (*models.Notification, error) {
	if err := checkRequired(t, vars); err != nil {
		return nil, err
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	channels := opts.Channels
	if channels == nil {
		channels = t.Settings.EnabledChannels
	}
	if len(channels) == 0 {
		return nil, errors.NewTemplateValidationFailedError(
			fmt.Sprintf("template %s enables no channels", t.Name))
	}
	for _, ch := range channels {
		if !ch.Valid() {
			return nil, errors.NewChannelUnknownError(string(ch))
		}
	}

	recipients := t.Recipients
	if opts.Recipients != nil {
		recipients = *opts.Recipients
	}
	if recipients.Empty() {
		return nil, errors.NewRecipientSpecInvalidError("recipient spec selects nobody")
	}

	priority := opts.Priority
	if priority == "" {
		priority = t.Settings.Priority
	}
	if priority == "" {
		priority = models.PriorityNormal
	}

	content := make(map[models.Channel]models.ChannelContent, len(channels))
	for _, ch := range channels {
		src, ok := t.Channels[ch]
		if !ok {
			// channel enabled without content falls back to in-app rendering
			continue
		}
		rendered, missing := RenderContent(src, vars, t.Variables)
		if len(missing) > 0 {
			log.Warn("unresolved template placeholders", map[string]interface{}{
				"template":     t.Name,
				"channel":      string(ch),
				"placeholders": strings.Join(missing, ","),
			})
		}
		content[ch] = rendered
	}

	primary := content[models.ChannelInApp]
	if primary.Body == "" {
		// any rendered channel can stand in as the primary content
		for _, ch := range channels {
			if c, ok := content[ch]; ok && c.Body != "" {
				primary = c
				break
			}
		}
	}

	n := &models.Notification{
		ID:          uuid.New().String(),
		Template:    t.Name,
		Type:        t.Type,
		Priority:    priority,
		Title:       primary.Title,
		Message:     primary.Body,
		Content:     content,
		SenderID:    opts.SenderID,
		SenderRole:  opts.SenderRole,
		Recipients:  recipients,
		Channels:    channels,
		Status:      models.StatusDraft,
		ScheduledAt: opts.ScheduledAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	n.Approval.State = models.ApprovalNotRequired
	if t.Settings.RequireApproval {
		n.Approval.State = models.ApprovalPending
	}

	if t.Settings.Expiry > 0 {
		exp := now.Add(t.Settings.Expiry)
		n.ExpiresAt = &exp
	}

	return n, nil
}

func checkRequired(t *models.Template, vars map[string]string) error {
	var missing []string
	for _, v := range t.Variables {
		if !v.Required || v.Default != "" {
			continue
		}
		if _, ok := vars[v.Name]; !ok {
			missing = append(missing, v.Name)
		}
	}
	if len(missing) > 0 {
		return errors.NewTemplateValidationFailedError(
			fmt.Sprintf("missing required variables: %s", strings.Join(missing, ", ")))
	}
	return nil
}
