// Package notify delivers outbound messages to requester and provider channels.
package notify

import (
	"context"
	"strings"

	"service-dispatch/internal/common/logger"
	"service-dispatch/internal/common/metrics"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// Gateway sends a message to a channel. False means the message was not
// delivered; callers log it and move on, they never retry.
type Gateway interface {
	Send(ctx context.Context, channelID, message string) bool
}

// SNSService is the subset of the SNS client the gateway needs.
type SNSService interface {
	Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error)
}

// SNSGateway sends SMS through Amazon SNS. Channel ids are E.164 numbers,
// optionally prefixed with "sms:" or "whatsapp:".
type SNSGateway struct {
	sns      SNSService
	senderID string
	logger   logger.Logger
}

func NewSNSGateway(svc SNSService, senderID string, log logger.Logger) *SNSGateway {
	return &SNSGateway{
		sns:      svc,
		senderID: senderID,
		logger:   log.WithFields(map[string]interface{}{"component": "sns_gateway"}),
	}
}

func (g *SNSGateway) Send(ctx context.Context, channelID, message string) bool {
	phone := PhoneFromChannel(channelID)
	if phone == "" {
		g.logger.Warn("channel has no phone number", map[string]interface{}{"channelId": channelID})
		metrics.RecordNotification("invalid_channel")
		return false
	}

	input := &sns.PublishInput{
		PhoneNumber: aws.String(phone),
		Message:     aws.String(message),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"AWS.SNS.SMS.SMSType": {DataType: aws.String("String"), StringValue: aws.String("Transactional")},
		},
	}
	if g.senderID != "" {
		input.MessageAttributes["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(g.senderID),
		}
	}

	out, err := g.sns.Publish(ctx, input)
	if err != nil {
		g.logger.Warn("sms publish failed", map[string]interface{}{"channelId": channelID, "error": err})
		metrics.RecordNotification("failed")
		return false
	}

	fields := map[string]interface{}{"channelId": channelID}
	if out != nil && out.MessageId != nil {
		fields["messageId"] = *out.MessageId
	}
	g.logger.Debug("sms published", fields)
	metrics.RecordNotification("delivered")
	return true
}

// PhoneFromChannel strips a transport prefix from a channel id.
func PhoneFromChannel(channelID string) string {
	id := strings.TrimSpace(channelID)
	if i := strings.Index(id, ":"); i >= 0 {
		id = id[i+1:]
	}
	if !strings.HasPrefix(id, "+") || len(id) < 8 {
		return ""
	}
	return id
}

// LogGateway only logs; used in development when no SMS transport is configured.
type LogGateway struct {
	logger logger.Logger
}

func NewLogGateway(log logger.Logger) *LogGateway {
	return &LogGateway{logger: log.WithFields(map[string]interface{}{"component": "log_gateway"})}
}

func (g *LogGateway) Send(_ context.Context, channelID, message string) bool {
	g.logger.Info("outbound message", map[string]interface{}{"channelId": channelID, "message": message})
	metrics.RecordNotification("logged")
	return true
}
