// internal/common/aws/sns.go
package aws

import (
	"context"
	"encoding/json"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"commitment-reaper/internal/common/errors"
	"commitment-reaper/internal/models"
)

// SNS subjects are capped at 100 characters.
const maxSubjectLength = 100

type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

func NewSNSClient(ctx context.Context, region string) (*sns.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return sns.NewFromConfig(cfg), nil
}

// SNSNotifier publishes the run report as JSON to a topic.
type SNSNotifier struct {
	client   SNSAPI
	topicARN string
}

func NewSNSNotifier(client SNSAPI, topicARN string) *SNSNotifier {
	return &SNSNotifier{client: client, topicARN: topicARN}
}

func (n *SNSNotifier) Notify(ctx context.Context, report *models.RunReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return errors.NewNotificationSendFailedError("sns", err)
	}

	subj := truncateSubject(subject(report), maxSubjectLength)

	_, err = n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: awssdk.String(n.topicARN),
		Subject:  awssdk.String(subj),
		Message:  awssdk.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"outcome": {DataType: awssdk.String("String"), StringValue: awssdk.String(string(report.Outcome))},
			"dryRun":  {DataType: awssdk.String("String"), StringValue: awssdk.String(fmt.Sprintf("%t", report.DryRun))},
		},
	})
	if err != nil {
		return errors.NewNotificationSendFailedError("sns", err)
	}
	return nil
}
