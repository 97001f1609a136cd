package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeRuns   Exchange = "lintgate.runs"
	ExchangeCancel Exchange = "lintgate.cancel"
	ExchangeDLQ    Exchange = "lintgate.dlq"
)

// Queues — имена очередей.
// Очереди для lintgate.cancel объявляет каждый worker сам (exclusive).
const (
	QueueRunsPending Queue = "lintgate.runs.pending"
	QueueDLQRuns     Queue = "lintgate.dlq.runs"
)

// Routing keys.
const (
	RoutingKeyPending RoutingKey = "pending"
	RoutingKeyDLQRuns RoutingKey = "runs"
)

// SetupTopology объявляет exchanges, durable queues и bindings.
// Идемпотентна: вызывается при старте каждого сервиса.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		return bindQueues(ch)
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeRuns, amqp.ExchangeDirect},
		// Отмена нужна всем worker'ам: run мог взять любой из них
		{ExchangeCancel, amqp.ExchangeFanout},
		{ExchangeDLQ, amqp.ExchangeDirect},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	return nil
}

// declareQueues создаёт очереди.
func declareQueues(ch *amqp.Channel) error {
	queues := []struct {
		name Queue
		args amqp.Table
	}{
		// Нераспарсенные сообщения уходят в DLQ
		{QueueRunsPending, amqp.Table{
			"x-dead-letter-exchange":    string(ExchangeDLQ),
			"x-dead-letter-routing-key": string(RoutingKeyDLQRuns),
		}},
		{QueueDLQRuns, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueRunsPending, RoutingKeyPending, ExchangeRuns},
		{QueueDLQRuns, RoutingKeyDLQRuns, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}

// declareBroadcastQueue создаёт временную очередь процесса,
// привязанную к fanout exchange. Имя генерирует сервер.
func declareBroadcastQueue(ch *amqp.Channel, exchange Exchange) (string, error) {
	q, err := ch.QueueDeclare(
		"",    // name (server-generated)
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return "", fmt.Errorf("declare broadcast queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, "", string(exchange), false, nil); err != nil {
		return "", fmt.Errorf("bind broadcast queue to %s: %w", exchange, err)
	}
	return q.Name, nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  lintgate RabbitMQ topology:

    lintgate.runs (direct)
    └── lintgate.runs.pending [routing: pending]
            Consumer: worker (competing)
            DLQ: lintgate.dlq.runs

    lintgate.cancel (fanout)
    └── <exclusive queue per worker>
            Consumer: every worker

    lintgate.dlq (direct)
    └── lintgate.dlq.runs [routing: runs]
            Manual processing
  `
}
