package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
)

// Campaign event types
const (
	EventCampaignCompleted = "campaign.completed"
	EventCampaignFailed    = "campaign.failed"
)

// CampaignEvent is published when a campaign run reaches a final state
type CampaignEvent struct {
	Type         string    `json:"type"`
	CampaignUUID uuid.UUID `json:"campaign_uuid"`
	UserID       uuid.UUID `json:"user_id"`
	Status       string    `json:"status"`
	Recipients   int       `json:"recipients"`
	Sent         int       `json:"sent"`
	Delivered    int       `json:"delivered"`
	Failed       int       `json:"failed"`
	Reason       string    `json:"reason,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// EventPublisher delivers campaign events to interested consumers
type EventPublisher interface {
	Publish(ctx context.Context, event CampaignEvent) error
	Close() error
}

// AMQPEventPublisher publishes persistent JSON messages to a topic exchange
type AMQPEventPublisher struct {
	url        string
	exchange   string
	routingKey string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPEventPublisher dials the broker and declares the exchange
func NewAMQPEventPublisher(url, exchange, routingKey string) (*AMQPEventPublisher, error) {
	p := &AMQPEventPublisher{url: url, exchange: exchange, routingKey: routingKey}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

// connect must be called with mu held or before the publisher is shared
func (p *AMQPEventPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open broker channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange %s: %w", p.exchange, err)
	}
	p.conn, p.ch = conn, ch
	return nil
}

func (p *AMQPEventPublisher) Publish(ctx context.Context, event CampaignEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode campaign event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil || p.conn.IsClosed() {
		if err := p.connect(); err != nil {
			return err
		}
	}

	err = p.ch.Publish(p.exchange, p.routingKey+"."+event.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    event.OccurredAt,
		Type:         event.Type,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish campaign event: %w", err)
	}
	return nil
}

func (p *AMQPEventPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn.Close()
	}
	return nil
}

// NoopEventPublisher drops events when messaging is disabled
type NoopEventPublisher struct{}

func (NoopEventPublisher) Publish(context.Context, CampaignEvent) error { return nil }
func (NoopEventPublisher) Close() error                                 { return nil }
