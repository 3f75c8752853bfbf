package model

import (
	"math"
	"math/bits"
	"time"
)

// ShipmentBatch is the cargo capacity carried by a trip.  A trip has at
// most one batch.  The batch is allocated by weight: reservations draw
// from a single pool rather than from discrete slots.
//
// Fields:
//  ID              – primary key identifier.
//  TripID          – trip carrying the cargo.
//  CapacityGrams   – declared weight capacity in grams.
//  MaxVolumeCm3    – declared volume capacity (informational).
//  PricePerKgCents – published price per kilogram in cents.
//  CreatedAt       – creation timestamp.
type ShipmentBatch struct {
	ID              uint64    // shipment_batches.id
	TripID          uint64    // shipment_batches.trip_id
	CapacityGrams   int64     // shipment_batches.capacity_grams
	MaxVolumeCm3    int64     // shipment_batches.max_volume_cm3
	PricePerKgCents uint32    // shipment_batches.price_per_kg_cents
	CreatedAt       time.Time // shipment_batches.created_at
}

// CostFor returns the price of shipping weightGrams, rounding partial
// cents up.  ok is false when the price does not fit in uint32 cents.
func (b ShipmentBatch) CostFor(weightGrams int64) (cents uint32, ok bool) {
	if weightGrams <= 0 {
		return 0, true
	}
	hi, lo := bits.Mul64(uint64(weightGrams), uint64(b.PricePerKgCents))
	if hi != 0 || lo > math.MaxUint64-999 {
		return 0, false
	}
	c := (lo + 999) / 1000
	if c > math.MaxUint32 {
		return 0, false
	}
	return uint32(c), true
}
