// internal/channels/email.go
package channels

import (
	"context"
	stderrors "errors"

	"school-notify/internal/common/logger"
	"school-notify/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESService is the slice of the SES client the email sender uses, narrowed
// for mocking.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// EmailSender delivers over AWS SES.
type EmailSender struct {
	client    SESService
	fromEmail string
	logger    logger.Logger
}

func NewEmailSender(client SESService, fromEmail string, log logger.Logger) *EmailSender {
	return &EmailSender{
		client:    client,
		fromEmail: fromEmail,
		logger:    log.WithFields(map[string]interface{}{"channel": "email"}),
	}
}

func (s *EmailSender) Channel() models.Channel {
	return models.ChannelEmail
}

func (s *EmailSender) Send(ctx context.Context, contact models.Contact, msg Message) Outcome {
	if contact.Email == "" {
		return bounced("recipient has no email address")
	}

	subject := msg.Content.Subject
	if subject == "" {
		subject = msg.Content.Title
	}

	_, err := s.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{contact.Email},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(msg.Content.Body)},
				Html: &types.Content{Data: aws.String(msg.Content.Body)},
			},
		},
		Source: aws.String(s.fromEmail),
	})
	if err != nil {
		var rejected *types.MessageRejected
		var notVerified *types.MailFromDomainNotVerifiedException
		if stderrors.As(err, &rejected) || stderrors.As(err, &notVerified) {
			return bounced(err.Error())
		}
		s.logger.Warn("email send failed", map[string]interface{}{
			"recipient": contact.UserID,
			"error":     err.Error(),
		})
		return failed(err)
	}

	return delivered()
}
