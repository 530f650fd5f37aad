package events

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/absentify/allowance-engine/logger"
)

// Consumer feeds queued jobs to a Handler.
//
// A failed job is republished with its retry header incremented and the
// original acked, so the retry count survives redelivery. Once MaxRetries is
// reached the message is rejected without requeue and lands in the
// dead-letter exchange. Malformed bodies go there directly.
//
// Deliveries are handled sequentially on one goroutine. Ledger passes are
// serialized per member only inside a process, so run a single consuming
// process per database.
type Consumer struct {
	rmq        *RabbitMQ
	queue      string
	handler    Handler
	retry      *Publisher
	maxRetries int
	logger     *logger.Logger
}

// NewConsumer declares the topology and wires handler to the queue.
func NewConsumer(rmq *RabbitMQ, handler Handler, log *logger.Logger) (*Consumer, error) {
	if err := rmq.DeclareTopology(); err != nil {
		return nil, err
	}
	log = log.WithComponent("job_consumer")
	return &Consumer{
		rmq:        rmq,
		queue:      rmq.config.Queue,
		handler:    handler,
		retry:      newPublisher(rmq.Channel(), rmq.config.Exchange, log),
		maxRetries: rmq.config.MaxRetries,
		logger:     log,
	}, nil
}

// Start starts consuming until ctx is done.
func (c *Consumer) Start(ctx context.Context) error {
	msgs, err := c.rmq.Channel().Consume(
		c.queue, // queue
		"",      // consumer tag (auto-generated)
		false,   // auto-ack
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info().Str("queue", c.queue).Msg("consumer started")

	go c.serve(ctx, msgs)
	return nil
}

// serve handles deliveries one at a time until ctx is done or msgs closes.
func (c *Consumer) serve(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Str("queue", c.queue).Msg("consumer stopped")
			return
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Warn().Msg("message channel closed")
				return
			}
			c.handleDelivery(ctx, msg)
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, msg amqp.Delivery) {
	var job Job
	if err := json.Unmarshal(msg.Body, &job); err != nil || !job.Kind.Valid() {
		c.logger.Error().Err(err).Str("message_id", msg.MessageId).Msg("malformed job, dead-lettering")
		_ = msg.Reject(false)
		return
	}

	log := c.logger.With().
		Str("job_id", job.ID).
		Str("kind", string(job.Kind)).
		Str("workspace_id", string(job.WorkspaceID)).
		Str("member_id", string(job.MemberID)).
		Logger()

	err := c.handler.HandleJob(ctx, job)
	if err == nil {
		_ = msg.Ack(false)
		return
	}

	retries := retryCount(msg)
	if retries >= c.maxRetries {
		log.Error().Err(err).Int("retry_count", retries).Msg("max retries exceeded, sending to DLQ")
		_ = msg.Reject(false)
		return
	}

	log.Warn().Err(err).Int("retry_count", retries).Msg("job failed, retrying")
	if perr := c.retry.publish(ctx, job, retries+1); perr != nil {
		log.Error().Err(perr).Msg("failed to republish job, requeueing")
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}

func retryCount(msg amqp.Delivery) int {
	if msg.Headers == nil {
		return 0
	}
	switch n := msg.Headers[retryHeader].(type) {
	case int64:
		return int(n)
	case int32:
		return int(n)
	case int:
		return n
	}
	return 0
}
