package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// DefaultSMSType is the AWS.SNS.SMS.SMSType attribute sent with every message.
const DefaultSMSType = "Transactional"

// snsPublisher is the subset of the SNS client used for SMS.
type snsPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSSender sends SMS directly to phone numbers through Amazon SNS.
type SNSSender struct {
	client snsPublisher
}

// NewSNSSender loads the default AWS config for region (AWS_REGION when empty).
func NewSNSSender(ctx context.Context, region string) (*SNSSender, error) {
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	slog.Debug("SNS sender config loaded", "region", region)
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &SNSSender{client: sns.NewFromConfig(cfg)}, nil
}

// SendSMS publishes body to the phone number to.
func (s *SNSSender) SendSMS(ctx context.Context, to string, body string) error {
	out, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(to),
		Message:     aws.String(body),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"AWS.SNS.SMS.SMSType": {
				DataType:    aws.String("String"),
				StringValue: aws.String(DefaultSMSType),
			},
		},
	})
	if err != nil {
		slog.Error("SNSSender.SendSMS: publish failed", "to", to, "error", err)
		return fmt.Errorf("sns publish to %s failed: %w", to, err)
	}
	slog.Debug("SNSSender.SendSMS: message published", "to", to, "messageID", aws.ToString(out.MessageId))
	return nil
}
