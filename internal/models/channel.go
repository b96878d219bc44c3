// internal/models/channel.go
package models

// Channel is the fixed set of delivery channels the engine knows about.
// New channels are added by implementing the sender capability, not by
// branching on strings inside the engine.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

// AllChannels lists every channel the engine can dispatch on.
var AllChannels = []Channel{ChannelInApp, ChannelEmail, ChannelSMS, ChannelPush}

// Valid reports whether c is one of the known channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelInApp, ChannelEmail, ChannelSMS, ChannelPush:
		return true
	}
	return false
}

// AttemptStatus is the outcome of a single delivery attempt.
type AttemptStatus string

const (
	AttemptPending   AttemptStatus = "pending"
	AttemptDelivered AttemptStatus = "delivered" // terminal success for that channel
	AttemptFailed    AttemptStatus = "failed"    // non-terminal, retryable
	AttemptBounced   AttemptStatus = "bounced"   // terminal, never retried
)

// Terminal reports whether the attempt outcome ends retries for its channel.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptDelivered || s == AttemptBounced
}

// NotificationStatus is the lifecycle state of a notification.
type NotificationStatus string

const (
	StatusDraft           NotificationStatus = "draft"
	StatusPendingApproval NotificationStatus = "pending_approval"
	StatusApproved        NotificationStatus = "approved"
	StatusScheduled       NotificationStatus = "scheduled"
	StatusSending         NotificationStatus = "sending"
	StatusSent            NotificationStatus = "sent"
	StatusFailed          NotificationStatus = "failed"
	StatusCancelled       NotificationStatus = "cancelled"
	StatusExpired         NotificationStatus = "expired"
)

// ApprovalState is the sub-state gating the sending transition.
type ApprovalState string

const (
	ApprovalNotRequired ApprovalState = "not_required"
	ApprovalPending     ApprovalState = "pending"
	ApprovalApproved    ApprovalState = "approved"
	ApprovalRejected    ApprovalState = "rejected"
)

// Priority of a notification, carried through to senders.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)
