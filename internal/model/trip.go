package model

import "time"

// Trip statuses.  Only SCHEDULED trips accept new reservations.
const (
	TripScheduled = "SCHEDULED"
	TripDeparted  = "DEPARTED"
	TripCancelled = "CANCELLED"
)

// Trip represents one scheduled movement of a bus along a route.  Trips
// are published by the scheduling side and are read-only to the
// reservation core.  Every trip owns SeatCount seat units numbered
// 1..SeatCount.
//
// Fields:
//  ID          – primary key identifier.
//  Origin      – departure terminal.
//  Destination – arrival terminal.
//  DepartsAt   – scheduled departure (UTC).
//  BusPlate    – plate of the bus operating the trip.
//  SeatCount   – number of seats; fixed once published.
//  PriceCents  – published price of one seat in cents.
//  Status      – SCHEDULED, DEPARTED or CANCELLED.
//  CreatedAt   – creation timestamp.
type Trip struct {
	ID          uint64    // trips.id
	Origin      string    // trips.origin
	Destination string    // trips.destination
	DepartsAt   time.Time // trips.departs_at
	BusPlate    string    // trips.bus_plate
	SeatCount   uint32    // trips.seat_count
	PriceCents  uint32    // trips.price_cents
	Status      string    // trips.status
	CreatedAt   time.Time // trips.created_at
}

// Bookable reports whether the trip still accepts reservations.
func (t Trip) Bookable() bool { return t.Status == TripScheduled }
