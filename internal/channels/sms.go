// internal/channels/sms.go
package channels

import (
	"context"
	stderrors "errors"

	"school-notify/internal/common/logger"
	"school-notify/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSService is the slice of the SNS client the SMS sender uses, narrowed
// for mocking.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SMSSender delivers over AWS SNS.
type SMSSender struct {
	client   SNSService
	senderID string
	logger   logger.Logger
}

func NewSMSSender(client SNSService, senderID string, log logger.Logger) *SMSSender {
	return &SMSSender{
		client:   client,
		senderID: senderID,
		logger:   log.WithFields(map[string]interface{}{"channel": "sms"}),
	}
}

func (s *SMSSender) Channel() models.Channel {
	return models.ChannelSMS
}

func (s *SMSSender) Send(ctx context.Context, contact models.Contact, msg Message) Outcome {
	if contact.Phone == "" {
		return bounced("recipient has no phone number")
	}

	input := &sns.PublishInput{
		PhoneNumber: aws.String(contact.Phone),
		Message:     aws.String(msg.Content.Body),
	}
	if s.senderID != "" {
		input.MessageAttributes = map[string]types.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(s.senderID),
			},
		}
	}

	if _, err := s.client.Publish(ctx, input); err != nil {
		var invalid *types.InvalidParameterException
		if stderrors.As(err, &invalid) {
			return bounced(err.Error())
		}
		s.logger.Warn("SMS send failed", map[string]interface{}{
			"recipient": contact.UserID,
			"error":     err.Error(),
		})
		return failed(err)
	}

	return delivered()
}
