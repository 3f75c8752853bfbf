package model

// UnitKind distinguishes passenger seats from cargo capacity.
type UnitKind string

const (
	UnitSeat      UnitKind = "seat"
	UnitCargoSlot UnitKind = "cargo-slot"
)

// TargetKind names the owner of a capacity unit.
type TargetKind string

const (
	TargetTrip  TargetKind = "trip"
	TargetBatch TargetKind = "batch"
)

// TargetRef points at a trip or at a shipment batch.
type TargetRef struct {
	Kind TargetKind
	ID   uint64
}

// TripRef and BatchRef build target references.
func TripRef(id uint64) TargetRef  { return TargetRef{Kind: TargetTrip, ID: id} }
func BatchRef(id uint64) TargetRef { return TargetRef{Kind: TargetBatch, ID: id} }

// CapacityUnit is the indivisible allocatable thing: a seat on a trip or
// the cargo slot of a shipment batch.  Units are created when the trip
// is published and never change afterwards; occupancy lives in the
// reservations table, not here.
type CapacityUnit struct {
	ID             uint64     `json:"id"`                         // capacity_units.id
	TargetKind     TargetKind `json:"target_kind"`                // capacity_units.target_kind
	TargetID       uint64     `json:"target_id"`                  // capacity_units.target_id
	Number         uint32     `json:"number"`                     // capacity_units.unit_number
	Kind           UnitKind   `json:"kind"`                       // capacity_units.kind
	MaxWeightGrams int64      `json:"max_weight_grams,omitempty"` // capacity_units.max_weight_grams
	MaxVolumeCm3   int64      `json:"max_volume_cm3,omitempty"`   // capacity_units.max_volume_cm3
}
