// internal/models/delivery.go
package models

import "time"

// DeliveryAttempt is a single try to deliver rendered content to one
// recipient over one channel.
type DeliveryAttempt struct {
	ID          string        `json:"id"`
	Channel     Channel       `json:"channel"`
	Status      AttemptStatus `json:"status"`
	AttemptedAt time.Time     `json:"attemptedAt"`
	DeliveredAt *time.Time    `json:"deliveredAt,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// DeliveryRecord tracks one recipient's delivery attempts and read/action
// state. Records are owned exclusively by the notification aggregate: only
// the dispatcher appends attempts and only the receipt tracker sets the
// read/action fields.
type DeliveryRecord struct {
	RecipientID string            `json:"recipientId"`
	Attempts    []DeliveryAttempt `json:"attempts,omitempty"`
	IsRead      bool              `json:"isRead"`
	ReadAt      *time.Time        `json:"readAt,omitempty"`
	IsActioned  bool              `json:"isActioned"`
	ActionedAt  *time.Time        `json:"actionedAt,omitempty"`
	Action      string            `json:"action,omitempty"`
	Device      string            `json:"device,omitempty"`
	Platform    string            `json:"platform,omitempty"`
}

// Delivered reports whether any attempt on any channel succeeded.
func (r *DeliveryRecord) Delivered() bool {
	for _, a := range r.Attempts {
		if a.Status == AttemptDelivered {
			return true
		}
	}
	return false
}

// LastAttempt returns the most recent attempt on the given channel, if any.
func (r *DeliveryRecord) LastAttempt(ch Channel) (DeliveryAttempt, bool) {
	for i := len(r.Attempts) - 1; i >= 0; i-- {
		if r.Attempts[i].Channel == ch {
			return r.Attempts[i], true
		}
	}
	return DeliveryAttempt{}, false
}

// DeliveryStatus is the rollup derived from delivery records. It is always
// recomputed from the attempt histories, never incremented in place.
type DeliveryStatus struct {
	Total      int                      `json:"total"`
	Delivered  int                      `json:"delivered"`
	Failed     int                      `json:"failed"`
	Pending    int                      `json:"pending"`
	ByChannel  map[Channel]ChannelStats `json:"byChannel,omitempty"`
	ComputedAt time.Time                `json:"computedAt"`
}

// ChannelStats is the per-channel slice of the rollup.
type ChannelStats struct {
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
}
