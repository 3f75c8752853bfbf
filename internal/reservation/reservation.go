// Package reservation is the allocation engine: it picks the capacity
// unit a reservation consumes and moves reservations through
// pending → confirmed → cancelled/expired.  All mutual exclusion lives
// in the Ledger; this package only sequences calls to it.
package reservation

import (
	"context"
	"log"
	"time"

	"github.com/iliyamo/transport-reservation/internal/model"
	"github.com/iliyamo/transport-reservation/internal/queue"
	"github.com/iliyamo/transport-reservation/internal/repository"
)

// DefaultHoldTTL is how long a pending reservation blocks its unit.
const DefaultHoldTTL = 15 * time.Minute

// Catalog is the read side of trips, batches and their units.
type Catalog interface {
	GetTrip(ctx context.Context, id uint64) (model.Trip, error)
	GetBatch(ctx context.Context, id uint64) (model.ShipmentBatch, error)
	BatchForTrip(ctx context.Context, tripID uint64) (model.ShipmentBatch, error)
	ListUnits(ctx context.Context, ref model.TargetRef) ([]model.CapacityUnit, error)
	GetUnit(ctx context.Context, id uint64) (model.CapacityUnit, error)
}

// Ledger is the authoritative reservation store.  TryClaim and
// TryReserveWeight are the only operations that need cross-request
// mutual exclusion; implementations must make them atomic.  Both report
// the lapsed holds they expired so the caller can announce them.
type Ledger interface {
	TryClaim(ctx context.Context, unitID uint64, draft model.Reservation) (repository.Claim, error)
	TryReserveWeight(ctx context.Context, batchID uint64, capacityGrams int64, draft model.Reservation) (repository.Claim, error)
	Get(ctx context.Context, id uint64) (model.Reservation, error)
	Transition(ctx context.Context, id uint64, from, to model.State, opts repository.TransitionOptions) (model.Reservation, error)
	ListActiveByUnit(ctx context.Context, unitID uint64, now time.Time) ([]model.Reservation, error)
	ListOverduePending(ctx context.Context, now time.Time, limit int) ([]model.Reservation, error)
	ListByClient(ctx context.Context, clientID uint64) ([]model.Reservation, error)
	ActiveWeight(ctx context.Context, batchID uint64, now time.Time) (int64, error)
	OccupiedUnits(ctx context.Context, tripID uint64, now time.Time) (map[uint64]bool, error)
}

// Publisher delivers reservation events to a broker.
type Publisher interface {
	PublishReservationEvent(ctx context.Context, ev queue.ReservationEvent) error
}

// Options tune the allocator and lifecycle manager.  Zero values pick
// the defaults.
type Options struct {
	HoldTTL time.Duration
	Now     func() time.Time
	Events  Publisher
}

func (o Options) withDefaults() Options {
	if o.HoldTTL <= 0 {
		o.HoldTTL = DefaultHoldTTL
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// emit publishes the event for res.  Broker failures never fail the
// operation that produced the event.
func emit(ctx context.Context, p Publisher, res model.Reservation) {
	if p == nil {
		return
	}
	if err := p.PublishReservationEvent(ctx, queue.NewReservationEvent(res)); err != nil {
		log.Printf("events: publish reservation.%s for %d failed: %v", res.State, res.ID, err)
	}
}
