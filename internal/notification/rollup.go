// internal/notification/rollup.go
package notification

import (
	"time"

	"school-notify/internal/models"
)

// Recompute derives the delivery rollup from the attempt histories alone.
// Counters are never incremented in place, so the rollup cannot drift from
// the records it summarizes and repeated dispatch invocations cannot
// double-count.
//
// A recipient counts as delivered when any attempt on any channel succeeded,
// as failed when it has attempts, none succeeded, and the most recent attempt
// on every attempted channel is terminal for retry purposes (failed after the
// retry budget, or bounced), and as pending otherwise.
func Recompute(records []models.DeliveryRecord, channels []models.Channel) models.DeliveryStatus {
	status := models.DeliveryStatus{
		Total:      len(records),
		ByChannel:  make(map[models.Channel]models.ChannelStats, len(channels)),
		ComputedAt: time.Now().UTC(),
	}
	for _, ch := range channels {
		status.ByChannel[ch] = models.ChannelStats{}
	}

	for i := range records {
		r := &records[i]

		switch {
		case r.Delivered():
			status.Delivered++
		case recipientFailed(r):
			status.Failed++
		default:
			status.Pending++
		}

		for _, ch := range channels {
			stats := status.ByChannel[ch]
			last, ok := r.LastAttempt(ch)
			switch {
			case !ok:
				stats.Pending++
			case last.Status == models.AttemptDelivered:
				stats.Delivered++
			case last.Status == models.AttemptFailed || last.Status == models.AttemptBounced:
				stats.Failed++
			default:
				stats.Pending++
			}
			status.ByChannel[ch] = stats
		}
	}

	return status
}

// recipientFailed reports whether every attempted channel ended in a failed
// or bounced attempt with nothing still pending. Records with no attempts at
// all are pending, not failed.
func recipientFailed(r *models.DeliveryRecord) bool {
	if len(r.Attempts) == 0 {
		return false
	}
	seen := map[models.Channel]bool{}
	for _, a := range r.Attempts {
		seen[a.Channel] = true
	}
	for ch := range seen {
		last, _ := r.LastAttempt(ch)
		if last.Status != models.AttemptFailed && last.Status != models.AttemptBounced {
			return false
		}
	}
	return true
}
