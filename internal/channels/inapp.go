// internal/channels/inapp.go
package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"school-notify/internal/common/logger"
	"school-notify/internal/models"
)

// Publisher is the realtime fan-out the in-app channel publishes through,
// satisfied by the Redis client wrapper.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload interface{}) error
}

// InAppSender delivers to the in-app realtime channel: a JSON payload
// published on the recipient's personal Redis channel.
type InAppSender struct {
	pub           Publisher
	channelPrefix string
	logger        logger.Logger
}

func NewInAppSender(pub Publisher, channelPrefix string, log logger.Logger) *InAppSender {
	if channelPrefix == "" {
		channelPrefix = "notify:user"
	}
	return &InAppSender{
		pub:           pub,
		channelPrefix: channelPrefix,
		logger:        log.WithFields(map[string]interface{}{"channel": "in_app"}),
	}
}

func (s *InAppSender) Channel() models.Channel {
	return models.ChannelInApp
}

func (s *InAppSender) Send(ctx context.Context, contact models.Contact, msg Message) Outcome {
	payload, err := json.Marshal(map[string]interface{}{
		"notificationId": msg.NotificationID,
		"type":           msg.Type,
		"priority":       string(msg.Priority),
		"title":          msg.Content.Title,
		"message":        msg.Content.Body,
		"sentAt":         time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return bounced(err.Error())
	}

	target := fmt.Sprintf("%s:%s", s.channelPrefix, contact.UserID)
	if err := s.pub.Publish(ctx, target, payload); err != nil {
		s.logger.Warn("in-app publish failed", map[string]interface{}{
			"recipient": contact.UserID,
			"error":     err.Error(),
		})
		return failed(err)
	}

	return delivered()
}
