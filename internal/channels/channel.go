// internal/channels/channel.go
package channels

import (
	"context"

	"school-notify/internal/models"
)

// Message is the rendered payload handed to a sender for one recipient.
type Message struct {
	NotificationID string
	Type           string
	Priority       models.Priority
	Content        models.ChannelContent
}

// Outcome is a sender's verdict for one attempt. Failed outcomes are
// retryable; bounced outcomes are terminal (invalid address, rejected
// payload) and must never be retried.
type Outcome struct {
	Status models.AttemptStatus
	Error  string
}

// Sender is the single capability every delivery channel exposes. The
// dispatcher is agnostic to which channels exist beyond this contract; a new
// channel is added by implementing it, not by branching on a tag.
type Sender interface {
	Channel() models.Channel
	Send(ctx context.Context, contact models.Contact, msg Message) Outcome
}

func delivered() Outcome {
	return Outcome{Status: models.AttemptDelivered}
}

func failed(err error) Outcome {
	return Outcome{Status: models.AttemptFailed, Error: err.Error()}
}

func bounced(reason string) Outcome {
	return Outcome{Status: models.AttemptBounced, Error: reason}
}
