package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

const defaultSQSRegion = "us-east-1"

type sqsSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSClient publishes pipeline stages to an SQS queue. FIFO queues get one
// message group per document, so stages of a document never run
// concurrently.
type SQSClient struct {
	api      *sqs.Client
	sender   sqsSender
	queueURL string
	fifo     bool
}

// NewSQSClient loads AWS credentials from the default chain and targets
// queueURL.
func NewSQSClient(ctx context.Context, queueURL, region string) (*SQSClient, error) {
	queueURL = strings.TrimSpace(queueURL)
	if queueURL == "" {
		return nil, fmt.Errorf("SQS_QUEUE_URL is required")
	}
	region = strings.TrimSpace(region)
	if region == "" {
		region = defaultSQSRegion
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	api := sqs.NewFromConfig(cfg)
	return &SQSClient{
		api:      api,
		sender:   api,
		queueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
	}, nil
}

// API exposes the underlying SQS client to consumers.
func (s *SQSClient) API() *sqs.Client { return s.api }

// QueueURL returns the configured queue.
func (s *SQSClient) QueueURL() string { return s.queueURL }

// Send publishes msg. Stage and request id travel as message attributes so
// queue tooling can filter without decoding bodies.
func (s *SQSClient) Send(ctx context.Context, msg Message) error {
	payload, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode sqs message: %w", err)
	}

	attrs := map[string]types.MessageAttributeValue{
		"stage": stringAttr(msg.Stage),
	}
	if msg.RequestID != "" {
		attrs["request_id"] = stringAttr(msg.RequestID)
	}
	input := &sqs.SendMessageInput{
		QueueUrl:          aws.String(s.queueURL),
		MessageBody:       aws.String(string(payload)),
		MessageAttributes: attrs,
	}
	if s.fifo {
		input.MessageGroupId = aws.String(msg.DocumentID)
		input.MessageDeduplicationId = aws.String(msg.DocumentID + ":" + msg.Stage + ":" + msg.EnqueuedAt)
	}

	if _, err := s.sender.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("sqs send %s for document %s: %w", msg.Stage, msg.DocumentID, err)
	}
	return nil
}

func stringAttr(v string) types.MessageAttributeValue {
	return types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
}

var _ Client = (*SQSClient)(nil)
