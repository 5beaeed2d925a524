package event

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"eegility/internal/domain"
	"eegility/internal/logger"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	DefaultExchange       = "eegility.events"
	AnalysisRequestedType = "analysis.requested"
)

// Publisher отправляет события шаринга и задания на анализ в topic exchange.
// Ключ маршрутизации совпадает с типом события (share.created, ...).
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	enabled  bool
	log      *zap.Logger
}

// NewPublisher подключается к RabbitMQ. Пустой URI не ошибка: публикация
// просто отключается.
func NewPublisher(rabbitURI, exchange string, log *zap.Logger) (*Publisher, error) {
	log = logger.Named(log, "events")
	if exchange == "" {
		exchange = DefaultExchange
	}

	if rabbitURI == "" {
		log.Warn("RabbitMQ URI is empty, event publishing is disabled")
		return &Publisher{exchange: exchange, log: log}, nil
	}

	conn, err := amqp091.Dial(rabbitURI)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	log.Info("event publisher initialized", zap.String("exchange", exchange))

	return &Publisher{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		enabled:  true,
		log:      log,
	}, nil
}

func (p *Publisher) Enabled() bool {
	return p.enabled
}

func (p *Publisher) NotifyShare(ctx context.Context, e domain.ShareEvent) error {
	return p.publish(ctx, string(e.Type), e, amqp091.Table{
		"event_type":    string(e.Type),
		"request_id":    e.RequestID.String(),
		"eeg_record_id": e.EegRecordID.String(),
		"recipient_id":  e.SharedWithUserID,
	})
}

func (p *Publisher) EnqueueAnalysis(ctx context.Context, job domain.AnalysisJob) error {
	return p.publish(ctx, AnalysisRequestedType, job, amqp091.Table{
		"event_type":    AnalysisRequestedType,
		"eeg_record_id": job.EegRecordID.String(),
	})
}

func (p *Publisher) publish(ctx context.Context, routingKey string, payload any, headers amqp091.Table) error {
	if !p.enabled {
		p.log.Debug("event publishing disabled, skipping event", zap.String("routing_key", routingKey))
		return nil
	}

	msg, err := newPublishing(payload, headers, time.Now().UTC())
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange, // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		msg,
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", routingKey, err)
	}

	p.log.Debug("published event", zap.String("routing_key", routingKey))
	return nil
}

func newPublishing(payload any, headers amqp091.Table, now time.Time) (amqp091.Publishing, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return amqp091.Publishing{}, fmt.Errorf("failed to marshal event: %w", err)
	}
	return amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    now,
		Body:         body,
		Headers:      headers,
	}, nil
}

func (p *Publisher) Close() error {
	if !p.enabled {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.log.Warn("error closing RabbitMQ channel", zap.Error(err))
		}
	}

	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			return fmt.Errorf("error closing RabbitMQ connection: %w", err)
		}
	}
	p.enabled = false
	return nil
}
