// Package service holds the outbound adapters of the reservation engine:
// the publishers that deliver reservation events to a message broker.
// Publish errors are logged and returned so the caller can ignore them
// without interrupting the request flow.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/iliyamo/transport-reservation/internal/config"
	"github.com/iliyamo/transport-reservation/internal/queue"
)

// Publisher delivers reservation events and owns its broker connection.
type Publisher interface {
	PublishReservationEvent(ctx context.Context, ev queue.ReservationEvent) error
	Close() error
}

// NewPublisher returns the publisher selected by cfg.Broker.
func NewPublisher(cfg config.EventsConfig) (Publisher, error) {
	switch cfg.Broker {
	case config.BrokerRabbitMQ:
		return NewRabbitPublisher(cfg.RabbitURL, queue.ReservationsQueue), nil
	case config.BrokerKafka:
		return NewKafkaPublisher(KafkaPublisherConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})
	case config.BrokerNone:
		return LogPublisher{}, nil
	}
	return nil, fmt.Errorf("unknown event broker %q", cfg.Broker)
}

// LogPublisher writes events to the process log.  It is used when no
// broker is configured.
type LogPublisher struct{}

func (LogPublisher) PublishReservationEvent(_ context.Context, ev queue.ReservationEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	log.Printf("events: %s", body)
	return nil
}

func (LogPublisher) Close() error { return nil }
