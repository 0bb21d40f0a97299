// Package queue consumes meal jobs from SQS and maps pipeline
// outcomes back onto queue actions. Delivery is at-least-once; the
// pipeline's dedup guard provides the exactly-once semantics, so this
// layer only decides delete / leave / dead-letter per message.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/go-playground/validator/v10"

	"github.com/platewise/platewise/log"
	"github.com/platewise/platewise/metrics"
	"github.com/platewise/platewise/types"
)

const (
	// DefaultWaitTime is the long-poll duration per receive call.
	DefaultWaitTime = 20 * time.Second
	// DefaultMaxMessages is the receive batch size.
	DefaultMaxMessages = 10
)

// API is the slice of the SQS client the consumer uses.
type API interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Processor runs one job to a terminal outcome.
type Processor interface {
	Process(ctx context.Context, job types.MealJob, logger *log.Logger) *types.JobOutcome
}

// Config wires a Consumer.
type Config struct {
	// Client is the SQS client (required).
	Client API
	// QueueURL is the main job queue (required).
	QueueURL string
	// DeadLetterURL receives malformed and rejected messages. Optional;
	// when empty, terminal failures are deleted without forwarding.
	DeadLetterURL string
	// Processor handles claimed jobs (required).
	Processor Processor
	// WaitTime is the long-poll duration (default 20s).
	WaitTime time.Duration
	// MaxMessages is the receive batch size (default 10).
	MaxMessages int32
	// Collector records consumer metrics. Optional.
	Collector *metrics.Collector
	// Logger is the consumer-scoped process logger. Optional.
	Logger *log.Logger
}

// Consumer is the long-poll receive loop.
type Consumer struct {
	config   Config
	validate *validator.Validate
}

// NewConsumer validates the wiring and creates a Consumer.
func NewConsumer(cfg Config) (*Consumer, error) {
	if cfg.Client == nil {
		return nil, errors.New("consumer requires an sqs client")
	}
	if cfg.QueueURL == "" {
		return nil, errors.New("consumer requires a queue url")
	}
	if cfg.Processor == nil {
		return nil, errors.New("consumer requires a processor")
	}
	if cfg.WaitTime <= 0 {
		cfg.WaitTime = DefaultWaitTime
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = DefaultMaxMessages
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewProcessLogger("queue")
	}
	return &Consumer{config: cfg, validate: validator.New()}, nil
}

// Run long-polls until the context is cancelled. Messages within a
// batch are handled concurrently; the batch is drained before the next
// receive. Returns nil on clean shutdown.
func (c *Consumer) Run(ctx context.Context) error {
	c.config.Logger.Info("consumer started", map[string]any{
		"queue":     c.config.QueueURL,
		"wait_time": c.config.WaitTime.String(),
	})

	for {
		if ctx.Err() != nil {
			c.config.Logger.Info("consumer stopping", nil)
			return nil
		}

		out, err := c.config.Client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.config.QueueURL),
			MaxNumberOfMessages: c.config.MaxMessages,
			WaitTimeSeconds:     int32(c.config.WaitTime / time.Second),
			MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{
				sqstypes.MessageSystemAttributeNameApproximateReceiveCount,
			},
		})
		if err != nil {
			if ctx.Err() != nil {
				c.config.Logger.Info("consumer stopping", nil)
				return nil
			}
			c.config.Logger.Error("receive failed", map[string]any{"error": err.Error()})
			// Back off one poll interval so a broken queue does not
			// turn the loop into a hot spin.
			select {
			case <-time.After(c.config.WaitTime):
			case <-ctx.Done():
			}
			continue
		}

		var wg sync.WaitGroup
		for _, msg := range out.Messages {
			wg.Add(1)
			go func(msg sqstypes.Message) {
				defer wg.Done()
				c.handle(ctx, msg)
			}(msg)
		}
		wg.Wait()
	}
}

// handle processes one delivery and applies its queue action.
func (c *Consumer) handle(ctx context.Context, msg sqstypes.Message) {
	job, err := c.parse(msg)
	if err != nil {
		// Malformed payloads can never succeed; forward straight to
		// the dead-letter queue without spending the retry budget.
		c.config.Logger.Warn("malformed message", map[string]any{
			"message_id": aws.ToString(msg.MessageId),
			"error":      err.Error(),
		})
		c.deadLetter(ctx, msg, err.Error())
		c.delete(ctx, msg)
		return
	}

	logger := log.NewLogger(job.IdempotencyKey, job.ChatIdentity, receiveCount(msg))
	outcome := c.config.Processor.Process(ctx, job, logger)

	switch {
	case outcome.Ack():
		c.delete(ctx, msg)
	case outcome.Status == types.JobRejected:
		reason := "rejected"
		if outcome.Err != nil {
			reason = outcome.Err.Error()
		}
		c.deadLetter(ctx, msg, reason)
		c.delete(ctx, msg)
	default:
		// InProgress or Retryable: leave the message. The visibility
		// timeout re-delivers it and the redrive policy dead-letters
		// past the maximum receive count.
		logger.Info("leaving message for redelivery", map[string]any{
			"status":        string(outcome.Status),
			"receive_count": receiveCount(msg),
		})
	}
}

// parse decodes and validates a message body into a job. Unknown
// fields fail decoding: a body with extra keys comes from a producer
// this consumer does not understand, and retrying cannot fix it.
func (c *Consumer) parse(msg sqstypes.Message) (types.MealJob, error) {
	var job types.MealJob
	dec := json.NewDecoder(strings.NewReader(aws.ToString(msg.Body)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&job); err != nil {
		return types.MealJob{}, types.NewStageError(types.ErrValidation, "parse",
			fmt.Errorf("decode body: %w", err))
	}
	if err := c.validate.Struct(&job); err != nil {
		return types.MealJob{}, types.NewStageError(types.ErrValidation, "parse", err)
	}
	return job, nil
}

func (c *Consumer) delete(ctx context.Context, msg sqstypes.Message) {
	_, err := c.config.Client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.config.QueueURL),
		ReceiptHandle: msg.ReceiptHandle,
	})
	if err != nil {
		// The message comes back after the visibility timeout; the
		// dedup guard absorbs the replay.
		c.config.Logger.Warn("delete failed", map[string]any{
			"message_id": aws.ToString(msg.MessageId),
			"error":      err.Error(),
		})
	}
}

// deadLetter forwards the original body to the dead-letter queue with
// the failure reason attached as a message attribute.
func (c *Consumer) deadLetter(ctx context.Context, msg sqstypes.Message, reason string) {
	if c.config.DeadLetterURL == "" {
		return
	}
	_, err := c.config.Client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(c.config.DeadLetterURL),
		MessageBody: msg.Body,
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"failure_reason": {
				DataType:    aws.String("String"),
				StringValue: aws.String(reason),
			},
		},
	})
	if err != nil {
		c.config.Logger.Error("dead-letter forward failed", map[string]any{
			"message_id": aws.ToString(msg.MessageId),
			"error":      err.Error(),
		})
		return
	}
	c.config.Collector.IncJobDeadLettered()
}

// receiveCount reads the delivery attempt number, defaulting to 1.
func receiveCount(msg sqstypes.Message) int {
	raw, ok := msg.Attributes[string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)]
	if !ok {
		return 1
	}
	var n int
	if _, err := fmt.Sscanf(raw, "%d", &n); err != nil || n < 1 {
		return 1
	}
	return n
}
