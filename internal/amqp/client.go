package amqp

import (
	"context"
	"errors"
	"fmt"
	"time"

	applog "budgetapp/internal/log"
	"budgetapp/internal/sheets"

	"github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

var ErrChannelClosed = errors.New("message channel closed")

// channel is the part of *amqp091.Channel the client uses after setup.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp091.Table) (<-chan amqp091.Delivery, error)
	Close() error
}

// Client publishes and consumes export jobs on a durable direct exchange.
type Client struct {
	conn         *amqp091.Connection
	channel      channel
	exchangeName string
	queueName    string
	logger       *applog.Logger
}

// Client doubles as an exporter: exporting means queueing.
var _ sheets.TransactionExporter = (*Client)(nil)

func NewClient(url, exchangeName, queueName string, logger *applog.Logger) (*Client, error) {
	if logger == nil {
		logger = applog.Discard()
	}
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := setup(ch, exchangeName, queueName); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}

	return &Client{
		conn:         conn,
		channel:      ch,
		exchangeName: exchangeName,
		queueName:    queueName,
		logger:       logger.WithComponent(applog.ComponentAMQP),
	}, nil
}

func setup(ch *amqp091.Channel, exchangeName, queueName string) error {
	err := ch.ExchangeDeclare(
		exchangeName, // name
		"direct",     // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// routing key is the queue name
	if err := ch.QueueBind(queueName, queueName, exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	// one export in flight per consumer
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	return nil
}

// PublishExport queues an export job.
func (c *Client) PublishExport(ctx context.Context, req sheets.ExportRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	body, err := NewExportJob(req).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.queueName,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    req.ID.String(),
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	c.logger.InfoContext(ctx, "Published export job",
		applog.FieldJobID, req.ID.String(),
		applog.FieldUser, req.User,
		applog.FieldCount, len(req.Rows),
		"exchange", c.exchangeName,
		"queue", c.queueName)
	return nil
}

// Export queues req and returns a reference to the job.
func (c *Client) Export(ctx context.Context, req sheets.ExportRequest) (string, error) {
	if err := c.PublishExport(ctx, req); err != nil {
		return "", err
	}
	return "queued:" + req.ID.String(), nil
}

// ConsumeExports runs handler for each job until ctx ends or the broker
// closes the channel. Undecodable messages are dropped; handler failures
// are requeued.
func (c *Client) ConsumeExports(ctx context.Context, handler func(context.Context, *ExportJob) error) error {
	msgs, err := c.channel.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	c.logger.InfoContext(ctx, "Started consuming export jobs", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return ErrChannelClosed
			}
			c.handleDelivery(ctx, delivery, handler)
		}
	}
}

func (c *Client) handleDelivery(ctx context.Context, d amqp091.Delivery, handler func(context.Context, *ExportJob) error) {
	job, err := ExportJobFromJSON(d.Body)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to decode export job", applog.FieldError, err, "message_id", d.MessageId)
		_ = d.Nack(false, false)
		return
	}

	jobID := job.Request.ID.String()
	c.logger.InfoContext(ctx, "Processing export job", applog.FieldJobID, jobID, "redelivered", d.Redelivered)

	if err := handler(ctx, job); err != nil {
		c.logger.ErrorContext(ctx, "Failed to handle export job", applog.FieldError, err, applog.FieldJobID, jobID)
		_ = d.Nack(false, true)
		return
	}

	_ = d.Ack(false)
	c.logger.InfoContext(ctx, "Processed export job", applog.FieldJobID, jobID)
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
