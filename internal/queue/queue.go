package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ReportRoutingKey routes report generation jobs.
const ReportRoutingKey = "report.generate"

// ReportJob asks a worker to compute a report snapshot.
type ReportJob struct {
	ReportID string `json:"reportId"`
}

func declareExchange(ch *amqp091.Channel, exchange string) error {
	return ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
}

// =============================================
// PUBLISHER
// =============================================

// Publisher sends report jobs to the broker.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	logger   *zap.Logger
}

// NewPublisher connects to url and declares the exchange.
func NewPublisher(url, exchange string, logger *zap.Logger) (*Publisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declareExchange(ch, exchange); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		logger:   logger,
	}, nil
}

// PublishReportJob enqueues a report for generation.
func (p *Publisher) PublishReportJob(ctx context.Context, reportID string) error {
	body, err := json.Marshal(ReportJob{ReportID: reportID})
	if err != nil {
		return err
	}

	// amqp091 channels are not safe for concurrent publishing.
	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx,
		p.exchange,
		ReportRoutingKey,
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp091.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish report job: %w", err)
	}
	p.logger.Debug("report job published", zap.String("report_id", reportID))
	return nil
}

func (p *Publisher) Close() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// =============================================
// CONSUMER
// =============================================

// ReportHandler processes one report job.
type ReportHandler func(ctx context.Context, job ReportJob) error

// Consumer reads report jobs from a durable queue with manual acks.
type Consumer struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	queue   amqp091.Queue
	logger  *zap.Logger
}

// NewConsumer connects to url and binds queue to the report routing key.
func NewConsumer(url, exchange, queue string, logger *zap.Logger) (*Consumer, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	c := &Consumer{conn: conn, channel: ch, logger: logger}

	if err := declareExchange(ch, exchange); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, ReportRoutingKey, exchange, false, nil); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	if err := ch.Qos(1, 0, false); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}

	c.queue = q
	return c, nil
}

// Run consumes jobs until ctx is cancelled or the channel closes.
func (c *Consumer) Run(ctx context.Context, h ReportHandler) error {
	if h == nil {
		return errors.New("consumer handler not set")
	}

	msgs, err := c.channel.Consume(
		c.queue.Name,
		"partner-portal-worker",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("report consumer started", zap.String("queue", c.queue.Name))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			handleDelivery(ctx, msg, h, c.logger)
		}
	}
}

// handleDelivery acks processed jobs, drops undecodable ones and requeues
// jobs whose handler failed.
func handleDelivery(ctx context.Context, msg amqp091.Delivery, h ReportHandler, logger *zap.Logger) {
	var job ReportJob
	if err := json.Unmarshal(msg.Body, &job); err != nil || job.ReportID == "" {
		logger.Error("dropping malformed report job", zap.ByteString("body", msg.Body), zap.Error(err))
		_ = msg.Nack(false, false)
		return
	}

	if err := h(ctx, job); err != nil {
		logger.Error("report job failed, requeueing",
			zap.String("report_id", job.ReportID),
			zap.Bool("redelivered", msg.Redelivered),
			zap.Error(err),
		)
		_ = msg.Nack(false, !msg.Redelivered)
		return
	}

	if err := msg.Ack(false); err != nil {
		logger.Warn("failed to ack report job", zap.String("report_id", job.ReportID), zap.Error(err))
	}
}

func (c *Consumer) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}
