package reservation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/iliyamo/transport-reservation/internal/model"
	"github.com/iliyamo/transport-reservation/internal/repository"
)

// Target is what a reservation asks for: a SeatTarget or a CargoTarget.
type Target interface {
	kind() model.ReservationKind
}

// SeatTarget requests a passenger seat on a trip.  A nil SeatNumber lets
// the allocator pick the lowest free seat.
type SeatTarget struct {
	TripID     uint64
	SeatNumber *uint32
}

// CargoTarget requests cargo weight on a shipment batch.  When BatchID
// is zero the batch carried by TripID is used.
type CargoTarget struct {
	BatchID     uint64
	TripID      uint64
	WeightGrams int64
}

func (SeatTarget) kind() model.ReservationKind  { return model.KindViaje }
func (CargoTarget) kind() model.ReservationKind { return model.KindEncomienda }

// Request is a booking request from a client.
type Request struct {
	ClientID uint64
	Target   Target
}

// Allocator creates pending reservations.
type Allocator struct {
	catalog Catalog
	ledger  Ledger
	opts    Options
}

func NewAllocator(catalog Catalog, ledger Ledger, opts Options) *Allocator {
	return &Allocator{catalog: catalog, ledger: ledger, opts: opts.withDefaults()}
}

// Allocate picks a unit for req and stores a pending hold on it.  On
// success exactly one reservation row exists for the call; on failure
// none does.  Errors wrap repository.ErrInvalid, ErrNotFound or
// ErrNoCapacity.
func (a *Allocator) Allocate(ctx context.Context, req Request) (model.Reservation, error) {
	if req.ClientID == 0 {
		return model.Reservation{}, fmt.Errorf("clienteId is required: %w", repository.ErrInvalid)
	}
	var (
		claim repository.Claim
		err   error
	)
	switch t := req.Target.(type) {
	case SeatTarget:
		claim, err = a.allocateSeat(ctx, req.ClientID, t)
	case CargoTarget:
		claim, err = a.allocateCargo(ctx, req.ClientID, t)
	default:
		return model.Reservation{}, fmt.Errorf("unknown reservation target %T: %w", req.Target, repository.ErrInvalid)
	}
	if err != nil {
		return model.Reservation{}, err
	}
	for _, old := range claim.Expired {
		emit(ctx, a.opts.Events, old)
	}
	emit(ctx, a.opts.Events, claim.Reservation)
	return claim.Reservation, nil
}

func (a *Allocator) draft(clientID uint64, kind model.ReservationKind) model.Reservation {
	now := a.opts.Now().UTC()
	expires := now.Add(a.opts.HoldTTL)
	return model.Reservation{
		Reference:     uuid.NewString(),
		ClientID:      clientID,
		Kind:          kind,
		CreatedAt:     now,
		HoldExpiresAt: &expires,
	}
}

func (a *Allocator) bookableTrip(ctx context.Context, tripID uint64) (model.Trip, error) {
	trip, err := a.catalog.GetTrip(ctx, tripID)
	if err != nil {
		return model.Trip{}, err
	}
	if !trip.Bookable() {
		return model.Trip{}, fmt.Errorf("trip %d is %s: %w", trip.ID, trip.Status, repository.ErrInvalid)
	}
	return trip, nil
}

func (a *Allocator) allocateSeat(ctx context.Context, clientID uint64, t SeatTarget) (repository.Claim, error) {
	trip, err := a.bookableTrip(ctx, t.TripID)
	if err != nil {
		return repository.Claim{}, err
	}
	units, err := a.catalog.ListUnits(ctx, model.TripRef(trip.ID))
	if err != nil {
		return repository.Claim{}, err
	}
	draft := a.draft(clientID, t.kind())
	draft.TripID = &trip.ID
	draft.CostCents = trip.PriceCents

	if t.SeatNumber != nil {
		for _, u := range units {
			if u.Kind != model.UnitSeat || u.Number != *t.SeatNumber {
				continue
			}
			draft.UnitNumber = u.Number
			claim, err := a.ledger.TryClaim(ctx, u.ID, draft)
			if errors.Is(err, repository.ErrConflict) {
				return repository.Claim{}, fmt.Errorf("seat %d on trip %d is taken: %w", u.Number, trip.ID, repository.ErrNoCapacity)
			}
			return claim, err
		}
		return repository.Claim{}, fmt.Errorf("trip %d has no seat %d: %w", trip.ID, *t.SeatNumber, repository.ErrInvalid)
	}

	// Every caller probes in ascending seat order, so losers of a race
	// move on to the next seat instead of colliding again.
	for _, u := range units {
		if u.Kind != model.UnitSeat {
			continue
		}
		draft.UnitNumber = u.Number
		claim, err := a.ledger.TryClaim(ctx, u.ID, draft)
		if err == nil {
			return claim, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return repository.Claim{}, err
		}
	}
	return repository.Claim{}, fmt.Errorf("trip %d is sold out: %w", trip.ID, repository.ErrNoCapacity)
}

func (a *Allocator) allocateCargo(ctx context.Context, clientID uint64, t CargoTarget) (repository.Claim, error) {
	if t.WeightGrams <= 0 {
		return repository.Claim{}, fmt.Errorf("peso must be positive: %w", repository.ErrInvalid)
	}
	var (
		batch model.ShipmentBatch
		err   error
	)
	switch {
	case t.BatchID != 0:
		batch, err = a.catalog.GetBatch(ctx, t.BatchID)
	case t.TripID != 0:
		if _, err = a.catalog.GetTrip(ctx, t.TripID); err != nil {
			return repository.Claim{}, err
		}
		batch, err = a.catalog.BatchForTrip(ctx, t.TripID)
		if errors.Is(err, repository.ErrNotFound) {
			return repository.Claim{}, fmt.Errorf("trip %d carries no cargo: %w", t.TripID, repository.ErrInvalid)
		}
	default:
		return repository.Claim{}, fmt.Errorf("tripId or batchId is required: %w", repository.ErrInvalid)
	}
	if err != nil {
		return repository.Claim{}, err
	}
	if t.TripID != 0 && t.TripID != batch.TripID {
		return repository.Claim{}, fmt.Errorf("batch %d does not belong to trip %d: %w", batch.ID, t.TripID, repository.ErrInvalid)
	}
	if _, err := a.bookableTrip(ctx, batch.TripID); err != nil {
		return repository.Claim{}, err
	}
	units, err := a.catalog.ListUnits(ctx, model.BatchRef(batch.ID))
	if err != nil {
		return repository.Claim{}, err
	}
	var slot *model.CapacityUnit
	for i := range units {
		if units[i].Kind == model.UnitCargoSlot {
			slot = &units[i]
			break
		}
	}
	if slot == nil {
		return repository.Claim{}, fmt.Errorf("batch %d has no cargo slot: %w", batch.ID, repository.ErrInvalid)
	}

	if t.WeightGrams > batch.CapacityGrams {
		return repository.Claim{}, fmt.Errorf("batch %d holds at most %d g, %d g requested: %w",
			batch.ID, batch.CapacityGrams, t.WeightGrams, repository.ErrNoCapacity)
	}
	cost, ok := batch.CostFor(t.WeightGrams)
	if !ok {
		return repository.Claim{}, fmt.Errorf("cost of %d g on batch %d is out of range: %w", t.WeightGrams, batch.ID, repository.ErrInvalid)
	}

	draft := a.draft(clientID, t.kind())
	draft.UnitID = slot.ID
	draft.UnitNumber = slot.Number
	draft.WeightGrams = t.WeightGrams
	draft.CostCents = cost
	return a.ledger.TryReserveWeight(ctx, batch.ID, batch.CapacityGrams, draft)
}
