// internal/channels/push.go
package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	httpclient "school-notify/internal/common/http"
	"school-notify/internal/common/logger"
	"school-notify/internal/models"
)

// PushSender delivers through an external push gateway over HTTP (an
// FCM-style JSON endpoint).
type PushSender struct {
	client     *httpclient.Client
	gatewayURL string
	apiKey     string
	logger     logger.Logger
}

func NewPushSender(client *httpclient.Client, gatewayURL, apiKey string, log logger.Logger) *PushSender {
	return &PushSender{
		client:     client,
		gatewayURL: gatewayURL,
		apiKey:     apiKey,
		logger:     log.WithFields(map[string]interface{}{"channel": "push"}),
	}
}

func (s *PushSender) Channel() models.Channel {
	return models.ChannelPush
}

func (s *PushSender) Send(ctx context.Context, contact models.Contact, msg Message) Outcome {
	if contact.DeviceToken == "" {
		return bounced("recipient has no device token")
	}

	body, err := json.Marshal(map[string]interface{}{
		"token":    contact.DeviceToken,
		"platform": contact.Platform,
		"title":    msg.Content.Title,
		"body":     msg.Content.Body,
		"priority": string(msg.Priority),
		"data": map[string]string{
			"notificationId": msg.NotificationID,
			"type":           msg.Type,
		},
	})
	if err != nil {
		return bounced(err.Error())
	}

	req, err := http.NewRequest(http.MethodPost, s.gatewayURL, bytes.NewReader(body))
	if err != nil {
		return failed(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.DoWithContext(ctx, req)
	if err != nil {
		s.logger.Warn("push send failed", map[string]interface{}{
			"recipient": contact.UserID,
			"error":     err.Error(),
		})
		return failed(err)
	}
	defer resp.Body.Close()
	// drain so the connection can be reused
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return delivered()
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// invalid or expired token, never retried
		return bounced(fmt.Sprintf("push gateway rejected: %s", resp.Status))
	default:
		return failed(fmt.Errorf("push gateway error: %s", resp.Status))
	}
}
