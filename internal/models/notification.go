// internal/models/notification.go
package models

import "time"

// Notification is the central aggregate: rendered content, the recipient
// spec, per-recipient delivery records, approval state and rollup stats.
type Notification struct {
	ID       string   `json:"id"`
	Template string   `json:"template,omitempty"` // origin template name, empty for ad hoc
	Type     string   `json:"type"`
	Priority Priority `json:"priority"`

	// Rendered content: Title/Message for the primary in-app channel,
	// Content for the other channels.
	Title   string                     `json:"title"`
	Message string                     `json:"message"`
	Content map[Channel]ChannelContent `json:"content,omitempty"`

	SenderID   string `json:"senderId"`
	SenderRole string `json:"senderRole"`

	Recipients RecipientSpec `json:"recipients"`
	Channels   []Channel     `json:"channels"`

	Records   []DeliveryRecord `json:"records,omitempty"`
	Rollup    DeliveryStatus   `json:"rollup"`
	Approval  ApprovalStatus   `json:"approval"`
	Analytics Analytics        `json:"analytics"`

	Status      NotificationStatus `json:"status"`
	ScheduledAt *time.Time         `json:"scheduledAt,omitempty"`
	ExpiresAt   *time.Time         `json:"expiresAt,omitempty"`
	SentAt      *time.Time         `json:"sentAt,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// ApprovalStatus records the sign-off gate for dispatch.
type ApprovalStatus struct {
	State      ApprovalState `json:"state"`
	ApproverID string        `json:"approverId,omitempty"`
	DecidedAt  *time.Time    `json:"decidedAt,omitempty"`
	Comment    string        `json:"comment,omitempty"`
}

// Analytics holds engagement counters. UniqueViews is derived from the
// delivery records; TotalViews counts every read-mark call.
type Analytics struct {
	TotalViews    int     `json:"totalViews"`
	UniqueViews   int     `json:"uniqueViews"`
	ClickThroughs int     `json:"clickThroughs"`
	ViewsByHour   [24]int `json:"viewsByHour"`
}

// ContentFor returns the rendered content for a channel, falling back to the
// in-app title/message when no channel-specific rendering exists.
func (n *Notification) ContentFor(ch Channel) ChannelContent {
	if c, ok := n.Content[ch]; ok {
		return c
	}
	return ChannelContent{Title: n.Title, Body: n.Message}
}

// Expired reports whether the notification is past its expiry timestamp.
func (n *Notification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && now.After(*n.ExpiresAt)
}

// Record returns the delivery record for a recipient, if dispatch has been
// frozen with one.
func (n *Notification) Record(recipientID string) *DeliveryRecord {
	for i := range n.Records {
		if n.Records[i].RecipientID == recipientID {
			return &n.Records[i]
		}
	}
	return nil
}
