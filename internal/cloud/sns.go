package cloud

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/FairForge/warmstandby/internal/ha"
)

// SNS subjects are limited to 100 characters
const maxSubjectLen = 100

// SNSAPI is the subset of the SNS client used here
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSSink implements ha.NotificationSink on an SNS topic
type SNSSink struct {
	client   SNSAPI
	topicARN string
}

func NewSNSSink(client SNSAPI, topicARN string) *SNSSink {
	return &SNSSink{client: client, topicARN: topicARN}
}

// Publish sends msg with its severity and metadata as message attributes
func (s *SNSSink) Publish(ctx context.Context, msg ha.NotificationMessage) error {
	subject := msg.Subject
	if len(subject) > maxSubjectLen {
		subject = subject[:maxSubjectLen]
	}

	attrs := map[string]types.MessageAttributeValue{
		"severity": {
			DataType:    aws.String("String"),
			StringValue: aws.String(string(msg.Severity)),
		},
	}
	keys := make([]string, 0, len(msg.Metadata))
	for k := range msg.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := msg.Metadata[k]; v != "" {
			attrs[k] = types.MessageAttributeValue{
				DataType:    aws.String("String"),
				StringValue: aws.String(v),
			}
		}
	}

	_, err := s.client.Publish(ctx, &sns.PublishInput{
		TopicArn:          aws.String(s.topicARN),
		Subject:           aws.String(subject),
		Message:           aws.String(msg.Body),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", s.topicARN, err)
	}
	return nil
}
