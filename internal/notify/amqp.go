package notify

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AMQP publishes events to a fanout exchange so out-of-process consumers
// (push notification workers, announcement bots) can react to offer changes.
type AMQP struct {
	ch       *amqp.Channel
	conn     *amqp.Connection
	exchange string
	logger   *zap.Logger
}

// NewAMQP connects to the broker and declares the fanout exchange.
func NewAMQP(url, exchange string, logger *zap.Logger) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &AMQP{ch: ch, conn: conn, exchange: exchange, logger: logger}, nil
}

// Emit publishes the event; failures are logged, never propagated.
func (a *AMQP) Emit(ctx context.Context, ev Event) {
	b, err := ev.Marshal()
	if err != nil {
		a.logger.Error("marshal event", zap.String("kind", string(ev.Kind)), zap.Error(err))
		return
	}
	err = a.ch.PublishWithContext(ctx, a.exchange, string(ev.Kind), false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   ev.ID,
		Body:        b,
	})
	if err != nil {
		a.logger.Warn("publish event", zap.String("kind", string(ev.Kind)), zap.Error(err))
	}
}

// Close tears down the channel and connection.
func (a *AMQP) Close() {
	if a.ch != nil {
		_ = a.ch.Close()
	}
	if a.conn != nil {
		_ = a.conn.Close()
	}
}
