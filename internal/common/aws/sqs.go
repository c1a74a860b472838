// internal/common/aws/sqs.go
package aws

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"lending-pipeline/internal/common/logger"
)

// SQSAPI is the subset of the SQS client the consumer uses, extracted for
// mocking in tests.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// NewSQSClient builds a client for the given region. A non-empty endpoint
// overrides the AWS endpoint (localstack).
func NewSQSClient(ctx context.Context, region, endpoint string) (SQSAPI, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// Message is one delivered queue message.
type Message struct {
	MessageID     string
	Body          string
	ReceiptHandle string
}

// BatchHandler processes one received batch and returns the messages to
// acknowledge. Messages not returned stay on the queue and are redelivered
// after the visibility timeout; the queue's redrive policy moves them to the
// dead-letter queue once the redelivery budget is exhausted.
type BatchHandler interface {
	HandleBatch(ctx context.Context, msgs []Message) []Message
}

// ConsumerOptions tune the long-poll receive loop.
type ConsumerOptions struct {
	WaitTimeSeconds   int
	MaxMessages       int
	VisibilityTimeout int
}

// Consumer long-polls one queue and feeds batches to a handler. Stateless
// between receives; multiple consumer instances per queue are fine.
type Consumer struct {
	client   SQSAPI
	queueURL string
	opts     ConsumerOptions
	handler  BatchHandler
	logger   logger.Logger
}

func NewConsumer(client SQSAPI, queueURL string, opts ConsumerOptions, handler BatchHandler, log logger.Logger) *Consumer {
	if opts.WaitTimeSeconds == 0 {
		opts.WaitTimeSeconds = 20
	}
	if opts.MaxMessages == 0 {
		opts.MaxMessages = 10
	}
	if opts.VisibilityTimeout == 0 {
		opts.VisibilityTimeout = 30
	}
	return &Consumer{
		client:   client,
		queueURL: queueURL,
		opts:     opts,
		handler:  handler,
		logger:   log.WithFields(map[string]interface{}{"queueUrl": queueURL}),
	}
}

// Start runs the receive loop until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) {
	c.logger.Info("consumer started", nil)
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopped", nil)
			return
		default:
		}

		out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.queueURL),
			MaxNumberOfMessages: int32(c.opts.MaxMessages),
			WaitTimeSeconds:     int32(c.opts.WaitTimeSeconds),
			VisibilityTimeout:   int32(c.opts.VisibilityTimeout),
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("receive failed", map[string]interface{}{"error": err})
			time.Sleep(2 * time.Second)
			continue
		}
		if len(out.Messages) == 0 {
			continue
		}

		msgs := make([]Message, 0, len(out.Messages))
		for _, m := range out.Messages {
			msgs = append(msgs, Message{
				MessageID:     aws.ToString(m.MessageId),
				Body:          aws.ToString(m.Body),
				ReceiptHandle: aws.ToString(m.ReceiptHandle),
			})
		}

		for _, ack := range c.handler.HandleBatch(ctx, msgs) {
			if _, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
				QueueUrl:      aws.String(c.queueURL),
				ReceiptHandle: aws.String(ack.ReceiptHandle),
			}); err != nil {
				// Delete failure means a duplicate delivery later; the
				// handlers are idempotent so this is safe to ignore.
				c.logger.Warn("delete failed", map[string]interface{}{
					"error":     err,
					"messageId": ack.MessageID,
				})
			}
		}
	}
}

// PerMessage adapts a per-message handler to the batch interface: messages
// whose Handle call returns nil are acknowledged.
type PerMessage struct {
	Handle func(ctx context.Context, msg Message) error
	Logger logger.Logger
}

func (p PerMessage) HandleBatch(ctx context.Context, msgs []Message) []Message {
	acks := make([]Message, 0, len(msgs))
	for _, msg := range msgs {
		if err := p.Handle(ctx, msg); err != nil {
			p.Logger.Warn("message left for redelivery", map[string]interface{}{
				"error":     err,
				"messageId": msg.MessageID,
			})
			continue
		}
		acks = append(acks, msg)
	}
	return acks
}
