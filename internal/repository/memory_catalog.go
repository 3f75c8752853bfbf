package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/transport-reservation/internal/model"
)

// MemoryCatalog is an in-process catalog with the same contract as
// CatalogRepo.  It backs tests and single-node demos.
type MemoryCatalog struct {
	mu       sync.RWMutex
	trips    map[uint64]model.Trip
	batches  map[uint64]model.ShipmentBatch
	units    map[uint64]model.CapacityUnit
	byTarget map[model.TargetRef][]uint64
	nextID   uint64
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		trips:    map[uint64]model.Trip{},
		batches:  map[uint64]model.ShipmentBatch{},
		units:    map[uint64]model.CapacityUnit{},
		byTarget: map[model.TargetRef][]uint64{},
	}
}

func (m *MemoryCatalog) id() uint64 {
	m.nextID++
	return m.nextID
}

func (m *MemoryCatalog) addUnitLocked(u model.CapacityUnit) {
	u.ID = m.id()
	m.units[u.ID] = u
	ref := model.TargetRef{Kind: u.TargetKind, ID: u.TargetID}
	m.byTarget[ref] = append(m.byTarget[ref], u.ID)
}

func (m *MemoryCatalog) PublishTrip(ctx context.Context, trip *model.Trip, batch *model.ShipmentBatch) error {
	if trip == nil || trip.SeatCount == 0 {
		return fmt.Errorf("trip needs at least one seat: %w", ErrInvalid)
	}
	if batch != nil && batch.CapacityGrams <= 0 {
		return fmt.Errorf("batch capacity must be positive: %w", ErrInvalid)
	}
	if trip.Status == "" {
		trip.Status = model.TripScheduled
	}
	if trip.CreatedAt.IsZero() {
		trip.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	trip.ID = m.id()
	m.trips[trip.ID] = *trip
	for n := uint32(1); n <= trip.SeatCount; n++ {
		m.addUnitLocked(model.CapacityUnit{TargetKind: model.TargetTrip, TargetID: trip.ID, Number: n, Kind: model.UnitSeat})
	}
	if batch != nil {
		batch.ID = m.id()
		batch.TripID = trip.ID
		batch.CreatedAt = trip.CreatedAt
		m.batches[batch.ID] = *batch
		m.addUnitLocked(model.CapacityUnit{
			TargetKind:     model.TargetBatch,
			TargetID:       batch.ID,
			Number:         1,
			Kind:           model.UnitCargoSlot,
			MaxWeightGrams: batch.CapacityGrams,
			MaxVolumeCm3:   batch.MaxVolumeCm3,
		})
	}
	return nil
}

// SetTripStatus changes the status of a published trip.
func (m *MemoryCatalog) SetTripStatus(id uint64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[id]
	if !ok {
		return fmt.Errorf("trip %d: %w", id, ErrNotFound)
	}
	t.Status = status
	m.trips[id] = t
	return nil
}

func (m *MemoryCatalog) GetTrip(ctx context.Context, id uint64) (model.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trips[id]
	if !ok {
		return model.Trip{}, fmt.Errorf("trip %d: %w", id, ErrNotFound)
	}
	return t, nil
}

func (m *MemoryCatalog) GetBatch(ctx context.Context, id uint64) (model.ShipmentBatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.batches[id]
	if !ok {
		return model.ShipmentBatch{}, fmt.Errorf("batch %d: %w", id, ErrNotFound)
	}
	return b, nil
}

func (m *MemoryCatalog) BatchForTrip(ctx context.Context, tripID uint64) (model.ShipmentBatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.batches {
		if b.TripID == tripID {
			return b, nil
		}
	}
	return model.ShipmentBatch{}, fmt.Errorf("batch for trip %d: %w", tripID, ErrNotFound)
}

func (m *MemoryCatalog) ListUnits(ctx context.Context, ref model.TargetRef) ([]model.CapacityUnit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch ref.Kind {
	case model.TargetTrip:
		if _, ok := m.trips[ref.ID]; !ok {
			return nil, fmt.Errorf("trip %d: %w", ref.ID, ErrNotFound)
		}
	case model.TargetBatch:
		if _, ok := m.batches[ref.ID]; !ok {
			return nil, fmt.Errorf("batch %d: %w", ref.ID, ErrNotFound)
		}
	default:
		return nil, fmt.Errorf("target kind %q: %w", ref.Kind, ErrInvalid)
	}
	units := make([]model.CapacityUnit, 0, len(m.byTarget[ref]))
	for _, id := range m.byTarget[ref] {
		units = append(units, m.units[id])
	}
	sort.Slice(units, func(i, j int) bool { return units[i].Number < units[j].Number })
	return units, nil
}

func (m *MemoryCatalog) GetUnit(ctx context.Context, id uint64) (model.CapacityUnit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.units[id]
	if !ok {
		return model.CapacityUnit{}, fmt.Errorf("unit %d: %w", id, ErrNotFound)
	}
	return u, nil
}
