package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// SQS is a Queue backed by an Amazon SQS queue. Unacknowledged messages
// become visible again after the queue's visibility timeout.
type SQS struct {
	client   *sqs.Client
	queueURL string
	log      zerolog.Logger
}

func NewSQSClient(cfg aws.Config) *sqs.Client {
	return sqs.New(sqs.Options{
		Region:       cfg.Region,
		Credentials:  cfg.Credentials,
		HTTPClient:   cfg.HTTPClient,
		BaseEndpoint: cfg.BaseEndpoint,
	})
}

// NewSQS resolves the queue URL by name.
func NewSQS(ctx context.Context, client *sqs.Client, name string, log zerolog.Logger) (*SQS, error) {
	resp, err := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(name)})
	if err != nil {
		return nil, fmt.Errorf("get SQS queue URL for %s: %w", name, err)
	}
	return &SQS{client: client, queueURL: aws.ToString(resp.QueueUrl), log: log}, nil
}

func (q *SQS) Enqueue(ctx context.Context, task Task) error {
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now().UTC()
	}
	body, err := json.Marshal(task)
	if err != nil {
		return err
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("send SQS message: %w", err)
	}
	return nil
}

func (q *SQS) Receive(ctx context.Context) ([]Delivery, error) {
	resp, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     10,
	})
	if err != nil {
		return nil, fmt.Errorf("receive SQS messages: %w", err)
	}

	return lo.FilterMap(resp.Messages, func(msg types.Message, _ int) (Delivery, bool) {
		var task Task
		if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &task); err != nil || task.ReportID == "" {
			q.log.Warn().Str("message_id", aws.ToString(msg.MessageId)).Msg("dropping malformed report task")
			_ = q.delete(ctx, aws.ToString(msg.ReceiptHandle))
			return Delivery{}, false
		}
		return Delivery{Task: task, receipt: aws.ToString(msg.ReceiptHandle)}, true
	}), nil
}

func (q *SQS) Ack(ctx context.Context, d Delivery) error {
	return q.delete(ctx, d.receipt)
}

func (q *SQS) delete(ctx context.Context, receipt string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(receipt),
	})
	if err != nil {
		return fmt.Errorf("delete SQS message: %w", err)
	}
	return nil
}
