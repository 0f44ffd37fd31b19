// Package delivery contains the message transports behind
// notification.Gateway.
package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/promo-notifier/internal/domain"
	"github.com/ignite/promo-notifier/internal/pkg/logger"
)

// SESAPI is the subset of the SES v2 client the gateway uses.
type SESAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, opts ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESGateway sends through AWS SES. The provider message id becomes the
// ledger's external id.
type SESGateway struct {
	client  SESAPI
	timeout time.Duration
	log     *logger.Logger
}

// NewSESGateway wraps an existing client.
func NewSESGateway(client SESAPI) *SESGateway {
	return &SESGateway{client: client, log: logger.With("component", "ses")}
}

// NewSESGatewayFromCredentials builds the client. Static keys are used when
// both are set; otherwise the default credential chain applies.
func NewSESGatewayFromCredentials(ctx context.Context, accessKey, secretKey, region string) (*SESGateway, error) {
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading SES config: %w", err)
	}
	return NewSESGateway(sesv2.NewFromConfig(cfg)), nil
}

// WithTimeout bounds each SendEmail call.
func (g *SESGateway) WithTimeout(d time.Duration) *SESGateway {
	g.timeout = d
	return g
}

func (g *SESGateway) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	from := msg.FromEmail
	if msg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", msg.FromName, msg.FromEmail)
	}
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTMLContent), Charset: aws.String("UTF-8")},
				},
			},
		},
	}
	if msg.TextContent != "" {
		input.Content.Simple.Body.Text = &types.Content{Data: aws.String(msg.TextContent), Charset: aws.String("UTF-8")}
	}
	if msg.PromotionID != "" {
		input.EmailTags = append(input.EmailTags, types.MessageTag{Name: aws.String("promotion_id"), Value: aws.String(msg.PromotionID)})
	}
	if msg.UserID != "" {
		input.EmailTags = append(input.EmailTags, types.MessageTag{Name: aws.String("user_id"), Value: aws.String(msg.UserID)})
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	out, err := g.client.SendEmail(ctx, input)
	if err != nil {
		g.log.Warn("send failed", "recipient", msg.To, "error", err)
		return &domain.SendResult{Success: false, Provider: "ses", Error: err.Error()}, nil
	}

	return &domain.SendResult{
		Success:   true,
		MessageID: aws.ToString(out.MessageId),
		Provider:  "ses",
		SentAt:    time.Now(),
	}, nil
}
