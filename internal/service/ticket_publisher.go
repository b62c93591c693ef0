package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	q "github.com/iliyamo/campus-ticket-claim/internal/queue"
)

// TicketPublisher publishes ticket events to RabbitMQ over one long-lived
// connection.  The connection is opened lazily and re-dialled after any
// failure, so a broker outage never affects the claim path beyond a
// logged error.
type TicketPublisher struct {
	url string
	log zerolog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewTicketPublisher returns a publisher for the broker at url.  No
// connection is made until the first publish.
func NewTicketPublisher(url string, log zerolog.Logger) *TicketPublisher {
	return &TicketPublisher{url: url, log: log.With().Str("component", "ticket-publisher").Logger()}
}

// PublishTicketIssued sends ev to the ticket.issued queue as a persistent
// message.  Errors are logged and returned so the caller can choose to
// ignore them.
func (p *TicketPublisher) PublishTicketIssued(ctx context.Context, ev q.TicketIssuedEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		p.log.Error().Err(err).Str("ticket_id", ev.TicketID).Msg("rabbitmq unavailable")
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		MessageId:    ev.TicketID,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", q.TicketIssuedQueue, false, false, pub); err != nil {
		p.log.Error().Err(err).Str("ticket_id", ev.TicketID).Msg("publish failed")
		p.reset()
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// channel returns an open channel with the queue declared, dialling when
// needed.  Callers hold p.mu.
func (p *TicketPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() && p.conn != nil && !p.conn.IsClosed() {
		return p.ch, nil
	}
	p.reset()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(q.TicketIssuedQueue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *TicketPublisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}

// Close releases the broker connection.
func (p *TicketPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}
