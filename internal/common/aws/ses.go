// internal/common/aws/ses.go
package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"commitment-reaper/internal/common/errors"
	"commitment-reaper/internal/models"
)

// SESAPI is the part of the SES client the notifier uses.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

func NewSESClient(ctx context.Context, region string) (*ses.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return ses.NewFromConfig(cfg), nil
}

// SESNotifier emails a plain-text run summary.
type SESNotifier struct {
	client SESAPI
	from   string
	to     []string
}

func NewSESNotifier(client SESAPI, from string, to []string) *SESNotifier {
	return &SESNotifier{client: client, from: from, to: to}
}

func (n *SESNotifier) Notify(ctx context.Context, report *models.RunReport) error {
	_, err := n.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      awssdk.String(n.from),
		Destination: &types.Destination{ToAddresses: n.to},
		Message: &types.Message{
			Subject: &types.Content{Data: awssdk.String(subject(report)), Charset: awssdk.String("UTF-8")},
			Body: &types.Body{
				Text: &types.Content{Data: awssdk.String(summary(report)), Charset: awssdk.String("UTF-8")},
			},
		},
	})
	if err != nil {
		return errors.NewNotificationSendFailedError("ses", err)
	}
	return nil
}
