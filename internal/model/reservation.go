package model

import "time"

// ReservationKind is the business kind of a reservation.
type ReservationKind string

const (
	KindViaje      ReservationKind = "viaje"      // passenger seat
	KindEncomienda ReservationKind = "encomienda" // parcel shipment
)

// Valid reports whether k is a known kind.
func (k ReservationKind) Valid() bool { return k == KindViaje || k == KindEncomienda }

// State is the lifecycle state of a reservation.
type State string

const (
	StatePending   State = "pending"
	StateConfirmed State = "confirmed"
	StateCancelled State = "cancelled"
	StateExpired   State = "expired"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == StateCancelled || s == StateExpired }

// CanTransition reports whether from→to is an allowed edge of the
// reservation state machine.
func (s State) CanTransition(to State) bool {
	switch s {
	case StatePending:
		return to == StateConfirmed || to == StateCancelled || to == StateExpired
	case StateConfirmed:
		return to == StateCancelled
	}
	return false
}

// Reservation is a client's claim on a seat or on cargo weight.  Rows
// are created pending by the allocator, mutated only through state
// transitions and never deleted.
//
// Fields:
//  ID            – primary key identifier.
//  Reference     – public booking code printed on tickets.
//  ClientID      – client owning the reservation.
//  Kind          – viaje or encomienda.
//  TripID        – trip of a passenger reservation (nil for cargo).
//  BatchID       – shipment batch of a cargo reservation (nil for seats).
//  UnitID        – capacity unit consumed (seat or the batch's cargo slot).
//  UnitNumber    – seat number, or 1 for the cargo slot.
//  WeightGrams   – cargo weight; zero for seats.
//  State         – lifecycle state.
//  CostCents     – price charged.
//  HoldExpiresAt – end of the hold; set only while pending.
//  PaymentMethod – payment method; set on confirmation.
//  CreatedAt     – creation timestamp.
//  UpdatedAt     – last transition timestamp.
type Reservation struct {
	ID            uint64          `json:"id"`
	Reference     string          `json:"reference"`
	ClientID      uint64          `json:"clienteId"`
	Kind          ReservationKind `json:"kind"`
	TripID        *uint64         `json:"tripId,omitempty"`
	BatchID       *uint64         `json:"batchId,omitempty"`
	UnitID        uint64          `json:"capacityUnitId"`
	UnitNumber    uint32          `json:"unitId"`
	WeightGrams   int64           `json:"pesoGramos,omitempty"`
	State         State           `json:"estado"`
	CostCents     uint32          `json:"costo"`
	HoldExpiresAt *time.Time      `json:"holdExpiresAt,omitempty"`
	PaymentMethod *string         `json:"metodoPago,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Active reports whether r still blocks its unit at instant now.  A
// pending hold whose expiry has passed no longer blocks, even before the
// sweeper has marked it expired.
func (r Reservation) Active(now time.Time) bool {
	switch r.State {
	case StateConfirmed:
		return true
	case StatePending:
		return r.HoldExpiresAt != nil && r.HoldExpiresAt.After(now)
	}
	return false
}

// HoldLapsed reports whether r is pending with an expiry at or before now.
func (r Reservation) HoldLapsed(now time.Time) bool {
	return r.State == StatePending && r.HoldExpiresAt != nil && !r.HoldExpiresAt.After(now)
}
