package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/transport-reservation/internal/queue"
)

// amqpChannel is the part of *amqp.Channel the publisher uses.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitPublisher publishes ReservationEvent messages to a durable queue
// through the default exchange.  The connection is opened lazily and
// reopened after a failed publish.
type RabbitPublisher struct {
	url   string
	queue string
	dial  func(url, queue string) (amqpChannel, func() error, error)

	mu        sync.Mutex
	ch        amqpChannel
	closeConn func() error
}

func NewRabbitPublisher(url, queueName string) *RabbitPublisher {
	return &RabbitPublisher{url: url, queue: queueName, dial: dialRabbit}
}

func dialRabbit(url, queueName string) (amqpChannel, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("channel open: %w", err)
	}
	// durable so messages survive broker restarts
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("queue declare: %w", err)
	}
	return ch, conn.Close, nil
}

// PublishReservationEvent sends ev as a persistent JSON message.
func (p *RabbitPublisher) PublishReservationEvent(ctx context.Context, ev queue.ReservationEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		log.Printf("rabbitmq: marshal event failed: %v", err)
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		ch, closeConn, err := p.dial(p.url, p.queue)
		if err != nil {
			log.Printf("rabbitmq: %v", err)
			return err
		}
		p.ch, p.closeConn = ch, closeConn
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         ev.Type,
		MessageId:    fmt.Sprintf("%s:%s", ev.Reference, ev.State),
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		log.Printf("rabbitmq: publish failed: %v", err)
		p.resetLocked()
		return err
	}
	return nil
}

func (p *RabbitPublisher) resetLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.closeConn != nil {
		_ = p.closeConn()
	}
	p.ch, p.closeConn = nil, nil
}

// Close releases the broker connection.
func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	return nil
}
