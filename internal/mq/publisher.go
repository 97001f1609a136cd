package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/lintgate/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeRunPending   MessageType = "run.pending"
	MessageTypeRunCancelled MessageType = "run.cancelled"
)

// Publisher публикует сообщения в RabbitMQ.
//
// Реализует supervisor.Notifier (run.pending) и supervisor.Canceller
// (run.cancelled).
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// RunPendingPayload — payload для сообщения о новом run.
type RunPendingPayload struct {
	RunID    uuid.UUID `json:"run_id"`
	GroupKey string    `json:"group_key"`
	Workflow string    `json:"workflow"`
}

// RunCancelledPayload — payload для сообщения об отмене run.
type RunCancelledPayload struct {
	RunID        uuid.UUID  `json:"run_id"`
	GroupKey     string     `json:"group_key"`
	SupersededBy *uuid.UUID `json:"superseded_by,omitempty"`
}

// NewMessage создаёт сообщение с новым ID.
func NewMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Type:         string(msg.Type),
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// RunPending публикует событие о новом run, ожидающем выполнения.
// Потребитель: один из worker'ов.
func (p *Publisher) RunPending(ctx context.Context, run *domain.Run) error {
	msg := NewMessage(MessageTypeRunPending, RunPendingPayload{
		RunID:    run.ID,
		GroupKey: run.GroupKey,
		Workflow: run.Workflow,
	})
	return p.Publish(ctx, ExchangeRuns, RoutingKeyPending, msg)
}

// Cancel рассылает отмену run всем worker'ам.
func (p *Publisher) Cancel(ctx context.Context, run *domain.Run) error {
	msg := NewMessage(MessageTypeRunCancelled, RunCancelledPayload{
		RunID:        run.ID,
		GroupKey:     run.GroupKey,
		SupersededBy: run.SupersededBy,
	})
	return p.Publish(ctx, ExchangeCancel, "", msg)
}
