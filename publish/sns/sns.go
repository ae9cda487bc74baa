// Package sns delivers notifications to AWS SNS topics.
//
// Routes that should reach SNS use destinations of the form
// "sns:arn:aws:sns:region:account:topic". FIFO topics additionally need
// a message group ID, set once for the publisher with WithMessageGroupID.
package sns

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/AshkanYarmoradi/go-behave"
)

// SNSClient is the slice of the SNS API the publisher calls.
type SNSClient interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Publisher sends notifications to SNS topics. The zero value has no
// client and rejects every publish; construct with New and WithSNSClient.
type Publisher struct {
	client  SNSClient
	groupID string
}

// Option customizes a Publisher.
type Option func(*Publisher)

// WithSNSClient sets the SNS API client.
func WithSNSClient(client SNSClient) Option {
	return func(sp *Publisher) {
		sp.client = client
	}
}

// WithMessageGroupID sets the group ID attached to every publish.
// FIFO topics require one.
func WithMessageGroupID(groupID string) Option {
	return func(sp *Publisher) {
		sp.groupID = groupID
	}
}

// New builds an SNS publisher.
func New(opts ...Option) *Publisher {
	sp := &Publisher{}
	for _, opt := range opts {
		opt(sp)
	}
	return sp
}

// Destination names the prefix this publisher claims in routes.
func (sp *Publisher) Destination() string {
	return "sns"
}

// Publish sends each notification to the topic ARN named in its
// destination. Every notification is attempted even when earlier ones
// fail; the failures come back joined into a single error.
func (sp *Publisher) Publish(ctx context.Context, notes []*behave.Notification) error {
	if sp.client == nil {
		return fmt.Errorf("sns: client not configured")
	}

	var errs []error
	for _, note := range notes {
		if err := sp.send(ctx, note); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (sp *Publisher) send(ctx context.Context, note *behave.Notification) error {
	arn := arnOf(note.Destination)
	if arn == "" {
		return fmt.Errorf("sns: invalid destination %q: missing topic ARN", note.Destination)
	}

	input := &sns.PublishInput{
		TopicArn: aws.String(arn),
		Message:  aws.String(string(note.Payload)),
	}
	if len(note.Headers) > 0 {
		input.MessageAttributes = make(map[string]types.MessageAttributeValue, len(note.Headers))
		for name, val := range note.Headers {
			input.MessageAttributes[name] = types.MessageAttributeValue{
				DataType:    aws.String("String"),
				StringValue: aws.String(val),
			}
		}
	}
	if sp.groupID != "" {
		input.MessageGroupId = aws.String(sp.groupID)
	}

	if _, err := sp.client.Publish(ctx, input); err != nil {
		return fmt.Errorf("sns: publish to %s: %w", arn, err)
	}
	return nil
}

// arnOf strips the "sns:" route prefix, leaving the bare topic ARN.
func arnOf(destination string) string {
	arn, ok := strings.CutPrefix(destination, "sns:")
	if !ok {
		return ""
	}
	return arn
}

var _ behave.Publisher = (*Publisher)(nil)
