package publisher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	d "github.com/fjod/food-commerce/domain"
	"github.com/fjod/food-commerce/internal/metrics"
	r "github.com/fjod/food-commerce/internal/repository"
	"github.com/segmentio/kafka-go"
)

const (
	DefaultTopic      = "checkout-orders"
	DefaultStaleAfter = 5 * time.Minute
	batchSize         = 100
)

// Repository is what the poller reads and writes.
type Repository interface {
	r.OutboxRepository
	r.RecoveryRepository
}

// MessageWriter is the subset of *kafka.Writer the poller uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
}

// OutboxPoller publishes order outcome events written by the repository and
// cancels orders whose checkout never recorded an outcome.
// Delivery is at-least-once: an event published but not marked is sent again.
// A nil writer disables publishing; events then stay in the outbox.
type OutboxPoller struct {
	timeout      time.Duration
	eventTick    time.Duration
	recoveryTick time.Duration
	staleAfter   time.Duration
	repo         Repository
	writer       MessageWriter
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// NewOutboxPoller builds a poller. Orders still PENDING staleAfter past creation
// are canceled; staleAfter must exceed the checkout request timeout.
func NewOutboxPoller(repo Repository, writer MessageWriter, staleAfter time.Duration, logger *slog.Logger, m *metrics.Metrics) *OutboxPoller {
	if logger == nil {
		logger = slog.Default()
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &OutboxPoller{
		timeout:      5 * time.Second,
		eventTick:    time.Second,
		recoveryTick: 30 * time.Second,
		staleAfter:   staleAfter,
		repo:         repo,
		writer:       writer,
		logger:       logger,
		metrics:      m,
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	recoveryTicker := time.NewTicker(p.recoveryTick)
	defer eventTicker.Stop()
	defer recoveryTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			if p.writer != nil {
				p.processUnpublishedEvents(ctx)
			}
		case <-recoveryTicker.C:
			p.recoverStuckOrders(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Close releases the underlying writer.
func (p *OutboxPoller) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// recoverStuckOrders cancels orders left PENDING after their checkout ended
// without recording an outcome. If the gateway did charge such an order, the
// checkout logged its transaction id when the write failed.
func (p *OutboxPoller) recoverStuckOrders(ctx context.Context) {
	ids, err := p.repo.FindStalePendingOrders(ctx, p.staleAfter, batchSize)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to fetch stale pending orders", slog.Any("error", err))
		return
	}

	for _, id := range ids {
		p.logger.WarnContext(ctx, "canceling stuck order", slog.String("order_id", id.String()))

		err := p.repo.SetOrderPayment(ctx, id, d.OrderStatusCanceled, "")
		switch {
		case err == nil:
			p.countRecovery("canceled")
		case errors.Is(err, r.ErrIllegalTransition):
			// the checkout recorded its outcome in the meantime
			p.countRecovery("skipped")
		default:
			p.countRecovery("error")
			p.logger.ErrorContext(ctx, "failed to cancel stuck order",
				slog.String("order_id", id.String()),
				slog.Any("error", err))
		}
	}
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	events, err := p.repo.GetUnprocessedEvents(ctx, batchSize)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to fetch outbox events", slog.Any("error", err))
		return
	}

	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			p.count("error")
			p.logger.ErrorContext(ctx, "failed to publish outbox event",
				slog.Int64("event_id", event.ID),
				slog.String("event_type", event.EventType),
				slog.Any("error", err))
			continue
		}
		p.count("published")

		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.logger.ErrorContext(ctx, "failed to mark outbox event as processed",
				slog.Int64("event_id", event.ID),
				slog.Any("error", err))
			continue
		}
	}
}

func (p *OutboxPoller) publish(ctx context.Context, event *r.OutboxEvent) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.AggregateId), // order id keeps one order on one partition
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *OutboxPoller) count(result string) {
	if p.metrics != nil {
		p.metrics.OutboxPublished.WithLabelValues(result).Inc()
	}
}

func (p *OutboxPoller) countRecovery(result string) {
	if p.metrics != nil {
		p.metrics.OrdersRecovered.WithLabelValues(result).Inc()
	}
}
