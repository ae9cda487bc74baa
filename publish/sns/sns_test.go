package sns

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AshkanYarmoradi/go-behave"
)

// fakeSNS records every publish input and can fail on demand.
type fakeSNS struct {
	inputs []*sns.PublishInput
	err    error
}

func (f *fakeSNS) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: aws.String("m-1")}, nil
}

func TestPublisher_Destination(t *testing.T) {
	assert.Equal(t, "sns", New().Destination())
}

func TestPublisher_Publish(t *testing.T) {
	const topic = "arn:aws:sns:eu-west-1:410352005202:invoice-events"

	t.Run("delivers payload and headers to the topic", func(t *testing.T) {
		fake := &fakeSNS{}
		pub := New(WithSNSClient(fake))

		err := pub.Publish(context.Background(), []*behave.Notification{{
			AggregateID: "inv-204",
			Destination: "sns:" + topic,
			Payload:     []byte(`{"invoice":"204","status":"paid"}`),
			Headers:     map[string]string{"event-type": "InvoicePaid"},
		}})
		require.NoError(t, err)
		require.Len(t, fake.inputs, 1)

		in := fake.inputs[0]
		assert.Equal(t, topic, *in.TopicArn)
		assert.Equal(t, `{"invoice":"204","status":"paid"}`, *in.Message)
		require.Contains(t, in.MessageAttributes, "event-type")
		assert.Equal(t, "InvoicePaid", *in.MessageAttributes["event-type"].StringValue)
		assert.Nil(t, in.MessageGroupId)
	})

	t.Run("attaches the group ID for FIFO topics", func(t *testing.T) {
		fake := &fakeSNS{}
		pub := New(WithSNSClient(fake), WithMessageGroupID("billing"))

		err := pub.Publish(context.Background(), []*behave.Notification{{
			AggregateID: "inv-204",
			Destination: "sns:" + topic + ".fifo",
			Payload:     []byte(`{}`),
		}})
		require.NoError(t, err)
		require.Len(t, fake.inputs, 1)
		require.NotNil(t, fake.inputs[0].MessageGroupId)
		assert.Equal(t, "billing", *fake.inputs[0].MessageGroupId)
	})

	t.Run("fails without a client", func(t *testing.T) {
		err := New().Publish(context.Background(), []*behave.Notification{{
			AggregateID: "inv-204",
			Destination: "sns:" + topic,
			Payload:     []byte(`{}`),
		}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "client not configured")
	})

	t.Run("rejects destinations without a topic ARN", func(t *testing.T) {
		fake := &fakeSNS{}
		pub := New(WithSNSClient(fake))

		err := pub.Publish(context.Background(), []*behave.Notification{{
			AggregateID: "inv-204",
			Destination: "kafka:invoice-events",
			Payload:     []byte(`{}`),
		}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing topic ARN")
		assert.Empty(t, fake.inputs)
	})

	t.Run("keeps going after a bad destination", func(t *testing.T) {
		fake := &fakeSNS{}
		pub := New(WithSNSClient(fake))

		err := pub.Publish(context.Background(), []*behave.Notification{
			{AggregateID: "inv-204", Destination: "bare", Payload: []byte(`{}`)},
			{AggregateID: "inv-311", Destination: "sns:" + topic, Payload: []byte(`{}`)},
		})
		require.Error(t, err)
		require.Len(t, fake.inputs, 1)
		assert.Equal(t, topic, *fake.inputs[0].TopicArn)
	})

	t.Run("wraps client errors with the topic ARN", func(t *testing.T) {
		fake := &fakeSNS{err: errors.New("throttled")}
		pub := New(WithSNSClient(fake))

		err := pub.Publish(context.Background(), []*behave.Notification{{
			AggregateID: "inv-204",
			Destination: "sns:" + topic,
			Payload:     []byte(`{}`),
		}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), topic)
		assert.Contains(t, err.Error(), "throttled")
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		fake := &fakeSNS{}
		pub := New(WithSNSClient(fake))

		require.NoError(t, pub.Publish(context.Background(), nil))
		assert.Empty(t, fake.inputs)
	})
}

func TestArnOf(t *testing.T) {
	cases := []struct {
		destination string
		want        string
	}{
		{"sns:arn:aws:sns:eu-west-1:410352005202:invoice-events", "arn:aws:sns:eu-west-1:410352005202:invoice-events"},
		{"sns:", ""},
		{"kafka:invoice-events", ""},
		{"arn:aws:sns:eu-west-1:410352005202:invoice-events", ""},
	}
	for _, tc := range cases {
		t.Run(tc.destination, func(t *testing.T) {
			assert.Equal(t, tc.want, arnOf(tc.destination))
		})
	}
}
