package reservation

import (
	"context"
	"time"

	"github.com/iliyamo/transport-reservation/internal/model"
)

// SeatStatus is one seat of a trip with its occupancy at query time.
type SeatStatus struct {
	UnitID   uint64 `json:"capacityUnitId"`
	Number   uint32 `json:"unitId"`
	Occupied bool   `json:"occupied"`
}

// TripAvailability is the seat map of a trip.
type TripAvailability struct {
	TripID    uint64       `json:"tripId"`
	Status    string       `json:"status"`
	Seats     []SeatStatus `json:"seats"`
	FreeSeats int          `json:"freeSeats"`
}

// BatchAvailability is the weight still available on a shipment batch.
type BatchAvailability struct {
	BatchID        uint64 `json:"batchId"`
	TripID         uint64 `json:"tripId"`
	CapacityGrams  int64  `json:"capacityGrams"`
	ReservedGrams  int64  `json:"reservedGrams"`
	RemainingGrams int64  `json:"remainingGrams"`
}

// Inventory answers read-only capacity questions.  Its answers are
// snapshots; only the Ledger's claim operations are authoritative.
type Inventory struct {
	catalog Catalog
	ledger  Ledger
	now     func() time.Time
}

func NewInventory(catalog Catalog, ledger Ledger, now func() time.Time) *Inventory {
	if now == nil {
		now = time.Now
	}
	return &Inventory{catalog: catalog, ledger: ledger, now: now}
}

// Units lists the capacity units of a trip or batch.
func (i *Inventory) Units(ctx context.Context, ref model.TargetRef) ([]model.CapacityUnit, error) {
	return i.catalog.ListUnits(ctx, ref)
}

// Trip returns the seat map of a trip.
func (i *Inventory) Trip(ctx context.Context, tripID uint64) (TripAvailability, error) {
	trip, err := i.catalog.GetTrip(ctx, tripID)
	if err != nil {
		return TripAvailability{}, err
	}
	units, err := i.catalog.ListUnits(ctx, model.TripRef(tripID))
	if err != nil {
		return TripAvailability{}, err
	}
	occupied, err := i.ledger.OccupiedUnits(ctx, tripID, i.now().UTC())
	if err != nil {
		return TripAvailability{}, err
	}
	out := TripAvailability{TripID: trip.ID, Status: trip.Status, Seats: make([]SeatStatus, 0, len(units))}
	for _, u := range units {
		if u.Kind != model.UnitSeat {
			continue
		}
		s := SeatStatus{UnitID: u.ID, Number: u.Number, Occupied: occupied[u.ID]}
		if !s.Occupied {
			out.FreeSeats++
		}
		out.Seats = append(out.Seats, s)
	}
	return out, nil
}

// Batch returns the reserved and remaining weight of a batch.
func (i *Inventory) Batch(ctx context.Context, batchID uint64) (BatchAvailability, error) {
	batch, err := i.catalog.GetBatch(ctx, batchID)
	if err != nil {
		return BatchAvailability{}, err
	}
	reserved, err := i.ledger.ActiveWeight(ctx, batchID, i.now().UTC())
	if err != nil {
		return BatchAvailability{}, err
	}
	remaining := batch.CapacityGrams - reserved
	if remaining < 0 {
		remaining = 0
	}
	return BatchAvailability{
		BatchID:        batch.ID,
		TripID:         batch.TripID,
		CapacityGrams:  batch.CapacityGrams,
		ReservedGrams:  reserved,
		RemainingGrams: remaining,
	}, nil
}
