// Package queue carries avatar render tasks between the API server and the
// render worker over RabbitMQ.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/hszk-dev/avatarrelay/internal/domain/repository"
	"github.com/hszk-dev/avatarrelay/internal/infrastructure/metrics"
)

const (
	// DefaultQueueName is the queue carrying avatar render tasks.
	DefaultQueueName = "avatar_render_tasks"

	// DefaultConsumerTag identifies render workers in the management UI.
	DefaultConsumerTag = "avatarrelay-worker"

	retryHeader    = "x-retry-count"
	publishTimeout = 5 * time.Second
)

var (
	errDeliveriesClosed = errors.New("delivery channel closed")
	errEmptyTaskText    = errors.New("render task has no text")
)

// ClientConfig holds configuration for the RabbitMQ client.
type ClientConfig struct {
	URL       string
	QueueName string
	// DeadLetterQueue receives tasks that cannot be decoded. Empty disables it.
	DeadLetterQueue string
	// TaskTTL drops tasks that wait longer than this in the queue. The cached
	// answer they belong to has expired by then. Zero keeps tasks forever.
	TaskTTL     time.Duration
	Prefetch    int
	ConsumerTag string
}

// DefaultClientConfig returns the configuration for queue name DefaultQueueName.
// A render task holds a worker for up to the full poll budget, so Prefetch is 1.
func DefaultClientConfig(url string) ClientConfig {
	return ClientConfig{
		URL:             url,
		QueueName:       DefaultQueueName,
		DeadLetterQueue: DefaultQueueName + ".dead",
		TaskTTL:         24 * time.Hour,
		Prefetch:        1,
		ConsumerTag:     DefaultConsumerTag,
	}
}

// amqpChannel is the subset of *amqp.Channel the client uses.
type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Close() error
}

// Client implements repository.RenderQueue on the default exchange.
type Client struct {
	conn    io.Closer
	channel amqpChannel
	config  ClientConfig
}

var _ repository.RenderQueue = (*Client)(nil)

// NewClient dials the broker and declares the render queues.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	return setup(conn, ch, cfg)
}

// setup applies QoS and declares the queues on an open channel. Both conn and
// ch are closed when it fails.
func setup(conn io.Closer, ch amqpChannel, cfg ClientConfig) (*Client, error) {
	c := &Client{conn: conn, channel: ch, config: cfg}

	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}
	if err := c.declare(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) declare() error {
	args := amqp.Table{}
	if c.config.TaskTTL > 0 {
		args["x-message-ttl"] = c.config.TaskTTL.Milliseconds()
	}

	if dlq := c.config.DeadLetterQueue; dlq != "" {
		if _, err := c.channel.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare dead-letter queue: %w", err)
		}
		args["x-dead-letter-exchange"] = ""
		args["x-dead-letter-routing-key"] = dlq
	}

	if _, err := c.channel.QueueDeclare(c.config.QueueName, true, false, false, false, args); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	return nil
}

// PublishRenderTask sends a persistent task. A task without an ID gets one.
func (c *Client) PublishRenderTask(ctx context.Context, task repository.RenderTask) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}

	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	msg := amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    task.ID.String(),
		Timestamp:    time.Now().UTC(),
		Headers:      amqp.Table{retryHeader: int32(task.RetryCount)},
		Body:         body,
	}
	if err := c.channel.PublishWithContext(ctx, "", c.config.QueueName, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish task: %w", err)
	}
	return nil
}

// ConsumeRenderTasks hands each task to handler until ctx is cancelled or
// the broker closes the delivery channel.
//
// A task the handler fails is republished with RetryCount+1 and the original
// is acked, so the count survives redelivery. An interrupted render is
// republished with its count unchanged and the provider job it was waiting for. Undecodable tasks and tasks
// that cannot be republished are rejected without requeue, which moves them
// to the dead-letter queue when one is configured.
func (c *Client) ConsumeRenderTasks(ctx context.Context, handler func(task repository.RenderTask) error) error {
	tag := c.config.ConsumerTag
	if tag == "" {
		tag = DefaultConsumerTag
	}
	deliveries, err := c.channel.Consume(c.config.QueueName, tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errDeliveriesClosed
			}
			if ctx.Err() != nil {
				// Shutting down; hand the delivery back untouched.
				settle(d.Nack(false, true), d.MessageId)
				return ctx.Err()
			}
			c.handle(ctx, d, handler)
		}
	}
}

func (c *Client) handle(ctx context.Context, d amqp.Delivery, handler func(task repository.RenderTask) error) {
	task, err := decodeTask(d.Body)
	if err != nil {
		slog.Warn("rejecting undecodable render task", "message_id", d.MessageId, "error", err)
		metrics.RenderTasksTotal.WithLabelValues(metrics.RenderDeadLettered).Inc()
		settle(d.Nack(false, false), d.MessageId)
		return
	}

	err = handler(task)
	if err == nil {
		settle(d.Ack(false), d.MessageId)
		return
	}

	// The worker may be shutting down; the retry must still reach the broker.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	var interrupted *repository.InterruptedError
	if errors.As(err, &interrupted) {
		if interrupted.TalkID != "" {
			task.TalkID = interrupted.TalkID
		}
		metrics.RenderTasksTotal.WithLabelValues(metrics.RenderInterrupted).Inc()
	} else {
		task.RetryCount++
	}
	if err := c.PublishRenderTask(pubCtx, task); err != nil {
		slog.Error("failed to republish render task",
			"task_id", task.ID,
			"retry_count", task.RetryCount,
			"error", err,
		)
		settle(d.Nack(false, false), d.MessageId)
		return
	}
	settle(d.Ack(false), d.MessageId)
}

func decodeTask(body []byte) (repository.RenderTask, error) {
	var task repository.RenderTask
	if err := json.Unmarshal(body, &task); err != nil {
		return task, err
	}
	if task.Text == "" {
		return task, errEmptyTaskText
	}
	return task, nil
}

func settle(err error, messageID string) {
	if err != nil {
		slog.Warn("failed to settle render task", "message_id", messageID, "error", err)
	}
}

// Close closes the channel and then the connection.
func (c *Client) Close() error {
	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close channel: %w", err))
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
		}
	}
	return errors.Join(errs...)
}
