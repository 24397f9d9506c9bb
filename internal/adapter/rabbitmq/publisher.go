package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/couchcryptid/climate-stats-etl/internal/domain"
)

// Publisher sends summary records to a topic exchange, routed by location label.
// It implements pipeline.RunLoader.
type Publisher struct {
	conn     *amqp.Connection
	state    connState
	channel  *amqp.Channel
	exchange string
	logger   *slog.Logger
}

// connState reports whether the broker connection has been closed.
type connState interface {
	IsClosed() bool
}

// Dial connects to the broker and declares a durable topic exchange.
func Dial(url, exchange string, logger *slog.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &Publisher{conn: conn, state: conn, channel: ch, exchange: exchange, logger: logger}, nil
}

// LoadRun publishes one persistent message per record.
func (p *Publisher) LoadRun(ctx context.Context, run domain.Run) error {
	for _, rec := range run.Records {
		msg, err := buildPublishing(run, rec)
		if err != nil {
			return err
		}
		if err := p.channel.PublishWithContext(ctx, p.exchange, routingKey(rec), false, false, msg); err != nil {
			return fmt.Errorf("publish %s: %w", rec.Key(), err)
		}
	}
	p.logger.Debug("published records", "exchange", p.exchange, "count", len(run.Records))
	return nil
}

// CheckReadiness reports whether the broker connection is still open.
func (p *Publisher) CheckReadiness(_ context.Context) error {
	if p.state.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	return nil
}

func (p *Publisher) Close() error {
	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}

// routingKey is the record's location label. Aggregate labels such as
// "US,FR" are valid topic words since they contain no dots.
func routingKey(rec domain.SummaryRecord) string {
	return rec.Country
}

func buildPublishing(run domain.Run, rec domain.SummaryRecord) (amqp.Publishing, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("serialize summary record: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    fmt.Sprintf("%s/%s", run.ID, rec.Key()),
		Timestamp:    run.GeneratedAt,
		Headers: amqp.Table{
			"run_id":       run.ID,
			"unit":         run.Unit,
			"generated_at": run.GeneratedAt.Format(time.RFC3339),
		},
		Body: body,
	}, nil
}
