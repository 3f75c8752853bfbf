// Package queue defines message payloads exchanged over the message broker.
package queue

import (
	"time"

	"github.com/iliyamo/transport-reservation/internal/model"
)

// Event types, one per reservation state a reservation can enter.
const (
	EventPending   = "reservation.pending"
	EventConfirmed = "reservation.confirmed"
	EventCancelled = "reservation.cancelled"
	EventExpired   = "reservation.expired"
)

// ReservationsQueue is the durable RabbitMQ queue (and the default Kafka
// topic) that carries ReservationEvent messages.
const ReservationsQueue = "reservations.events"

// ReservationEvent is published every time a reservation is created or
// changes state.  It carries enough for downstream consumers to log,
// notify or print tickets without querying the primary database.
type ReservationEvent struct {
	Type          string `json:"type"`
	ReservationID uint64 `json:"reservation_id"`
	Reference     string `json:"reference"`
	ClientID      uint64 `json:"cliente_id"`
	Kind          string `json:"kind"`
	TripID        uint64 `json:"trip_id,omitempty"`
	BatchID       uint64 `json:"batch_id,omitempty"`
	UnitNumber    uint32 `json:"unit_number"`
	WeightGrams   int64  `json:"weight_grams,omitempty"`
	State         string `json:"estado"`
	CostCents     uint32 `json:"cost_cents"`
	PaymentMethod string `json:"metodo_pago,omitempty"`
	OccurredAt    string `json:"occurred_at"`
}

// NewReservationEvent builds the event describing res having just entered
// its current state.
func NewReservationEvent(res model.Reservation) ReservationEvent {
	ev := ReservationEvent{
		Type:          "reservation." + string(res.State),
		ReservationID: res.ID,
		Reference:     res.Reference,
		ClientID:      res.ClientID,
		Kind:          string(res.Kind),
		UnitNumber:    res.UnitNumber,
		WeightGrams:   res.WeightGrams,
		State:         string(res.State),
		CostCents:     res.CostCents,
		OccurredAt:    res.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if res.TripID != nil {
		ev.TripID = *res.TripID
	}
	if res.BatchID != nil {
		ev.BatchID = *res.BatchID
	}
	if res.PaymentMethod != nil {
		ev.PaymentMethod = *res.PaymentMethod
	}
	return ev
}
