package events

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/absentify/allowance-engine/logger"
)

// publishChannel is the subset of *amqp.Channel publishing needs.
type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// retryHeader counts redeliveries made by Consumer.
const retryHeader = "x-retry-count"

// Publisher dispatches jobs to the topic exchange.
type Publisher struct {
	channel  publishChannel
	exchange string
	logger   *logger.Logger
}

// NewPublisher declares the topology and returns a Dispatcher.
func NewPublisher(rmq *RabbitMQ, log *logger.Logger) (*Publisher, error) {
	if err := rmq.DeclareTopology(); err != nil {
		return nil, err
	}
	return newPublisher(rmq.Channel(), rmq.config.Exchange, log), nil
}

func newPublisher(ch publishChannel, exchange string, log *logger.Logger) *Publisher {
	return &Publisher{channel: ch, exchange: exchange, logger: log.WithComponent("job_publisher")}
}

// Dispatch publishes job as a persistent JSON message.
func (p *Publisher) Dispatch(ctx context.Context, job Job) error {
	return p.publish(ctx, job, 0)
}

func (p *Publisher) publish(ctx context.Context, job Job, retries int) error {
	if !job.Kind.Valid() {
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	err = p.channel.PublishWithContext(ctx,
		p.exchange,            // exchange
		job.Kind.RoutingKey(), // routing key
		false,                 // mandatory
		false,                 // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			MessageId:     job.ID,
			CorrelationId: job.PartitionKey(),
			Headers:       amqp.Table{retryHeader: int64(retries)},
			Body:          body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish job: %w", err)
	}

	p.logger.Debug().
		Str("job_id", job.ID).
		Str("routing_key", job.Kind.RoutingKey()).
		Int("retries", retries).
		Msg("job published")
	return nil
}
