package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/transport-reservation/internal/model"
)

// MemoryLedger is an in-process ledger with the same guarantees as
// LedgerRepo.  Claims on one unit (or one batch) are serialised by a
// per-target mutex, standing in for the row lock the MySQL ledger takes.
// m.mu only guards the row maps and is never held while a claim decides,
// so claims on different targets run in parallel.
type MemoryLedger struct {
	catalog *MemoryCatalog

	mu      sync.RWMutex
	rows    map[uint64]model.Reservation
	byUnit  map[uint64][]uint64
	byBatch map[uint64][]uint64
	nextID  uint64

	stripes sync.Map // "unit:<id>" | "batch:<id>" -> *sync.Mutex
}

// NewMemoryLedger returns a ledger whose units and batches are resolved
// against catalog.
func NewMemoryLedger(catalog *MemoryCatalog) *MemoryLedger {
	return &MemoryLedger{
		catalog: catalog,
		rows:    map[uint64]model.Reservation{},
		byUnit:  map[uint64][]uint64{},
		byBatch: map[uint64][]uint64{},
	}
}

func (m *MemoryLedger) stripe(key string) *sync.Mutex {
	v, _ := m.stripes.LoadOrStore(key, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// snapshot copies the rows indexed under key.
func (m *MemoryLedger) snapshot(index map[uint64][]uint64, key uint64) []model.Reservation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := index[key]
	out := make([]model.Reservation, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.rows[id])
	}
	return out
}

// commitClaim marks the lapsed holds expired and inserts draft.  A lapsed
// hold that changed state since the snapshot is left alone.
func (m *MemoryLedger) commitClaim(lapsed []model.Reservation, draft model.Reservation) Claim {
	now := draft.CreatedAt
	m.mu.Lock()
	defer m.mu.Unlock()
	var claim Claim
	for _, old := range lapsed {
		r := m.rows[old.ID]
		if !r.HoldLapsed(now) {
			continue
		}
		r.State = model.StateExpired
		r.HoldExpiresAt = nil
		r.UpdatedAt = now
		m.rows[r.ID] = r
		claim.Expired = append(claim.Expired, r)
	}

	m.nextID++
	draft.ID = m.nextID
	draft.State = model.StatePending
	draft.UpdatedAt = draft.CreatedAt
	m.rows[draft.ID] = draft
	m.byUnit[draft.UnitID] = append(m.byUnit[draft.UnitID], draft.ID)
	if draft.BatchID != nil {
		m.byBatch[*draft.BatchID] = append(m.byBatch[*draft.BatchID], draft.ID)
	}
	claim.Reservation = draft
	return claim
}

func (m *MemoryLedger) TryClaim(ctx context.Context, unitID uint64, draft model.Reservation) (Claim, error) {
	if _, err := m.catalog.GetUnit(ctx, unitID); err != nil {
		return Claim{}, err
	}
	lock := m.stripe(fmt.Sprintf("unit:%d", unitID))
	lock.Lock()
	defer lock.Unlock()

	now := draft.CreatedAt
	draft.UnitID = unitID
	var lapsed []model.Reservation
	for _, r := range m.snapshot(m.byUnit, unitID) {
		switch {
		case r.HoldLapsed(now):
			lapsed = append(lapsed, r)
		case !r.State.Terminal():
			return Claim{}, fmt.Errorf("unit %d: %w", unitID, ErrConflict)
		}
	}
	return m.commitClaim(lapsed, draft), nil
}

func (m *MemoryLedger) TryReserveWeight(ctx context.Context, batchID uint64, capacityGrams int64, draft model.Reservation) (Claim, error) {
	if draft.WeightGrams <= 0 {
		return Claim{}, fmt.Errorf("weight must be positive: %w", ErrInvalid)
	}
	if _, err := m.catalog.GetBatch(ctx, batchID); err != nil {
		return Claim{}, err
	}
	lock := m.stripe(fmt.Sprintf("batch:%d", batchID))
	lock.Lock()
	defer lock.Unlock()

	now := draft.CreatedAt
	draft.BatchID = &batchID
	var (
		lapsed   []model.Reservation
		reserved int64
	)
	for _, r := range m.snapshot(m.byBatch, batchID) {
		switch {
		case r.HoldLapsed(now):
			lapsed = append(lapsed, r)
		case !r.State.Terminal():
			reserved += r.WeightGrams
		}
	}
	if draft.WeightGrams > capacityGrams-reserved {
		return Claim{}, fmt.Errorf("batch %d has %d g left, %d g requested: %w",
			batchID, capacityGrams-reserved, draft.WeightGrams, ErrNoCapacity)
	}
	return m.commitClaim(lapsed, draft), nil
}

func (m *MemoryLedger) Get(ctx context.Context, id uint64) (model.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rows[id]
	if !ok {
		return model.Reservation{}, fmt.Errorf("reservation %d: %w", id, ErrNotFound)
	}
	return r, nil
}

func (m *MemoryLedger) Transition(ctx context.Context, id uint64, from, to model.State, opts TransitionOptions) (model.Reservation, error) {
	if !from.CanTransition(to) {
		return model.Reservation{}, fmt.Errorf("transition %s -> %s: %w", from, to, ErrInvalid)
	}
	at := opts.At
	if at.IsZero() {
		at = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return model.Reservation{}, fmt.Errorf("reservation %d: %w", id, ErrNotFound)
	}
	stale := r.State != from
	if !opts.HoldValidAt.IsZero() && (r.HoldExpiresAt == nil || !r.HoldExpiresAt.After(opts.HoldValidAt)) {
		stale = true
	}
	if !opts.HoldLapsedBy.IsZero() && (r.HoldExpiresAt == nil || r.HoldExpiresAt.After(opts.HoldLapsedBy)) {
		stale = true
	}
	if stale {
		return r, fmt.Errorf("reservation %d is %s, wanted %s: %w", id, r.State, from, ErrConflict)
	}
	r.State = to
	r.UpdatedAt = at.UTC()
	r.HoldExpiresAt = nil
	if opts.PaymentMethod != "" {
		pm := opts.PaymentMethod
		r.PaymentMethod = &pm
	}
	m.rows[id] = r
	return r, nil
}

func (m *MemoryLedger) ListActiveByUnit(ctx context.Context, unitID uint64, now time.Time) ([]model.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Reservation, 0)
	for _, id := range m.byUnit[unitID] {
		if r := m.rows[id]; r.Active(now) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryLedger) ListOverduePending(ctx context.Context, now time.Time, limit int) ([]model.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Reservation, 0)
	for _, r := range m.rows {
		if r.HoldLapsed(now) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].HoldExpiresAt.Equal(*out[j].HoldExpiresAt) {
			return out[i].HoldExpiresAt.Before(*out[j].HoldExpiresAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryLedger) ListByClient(ctx context.Context, clientID uint64) ([]model.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Reservation, 0)
	for _, r := range m.rows {
		if r.ClientID == clientID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *MemoryLedger) ActiveWeight(ctx context.Context, batchID uint64, now time.Time) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var grams int64
	for _, id := range m.byBatch[batchID] {
		if r := m.rows[id]; r.Active(now) {
			grams += r.WeightGrams
		}
	}
	return grams, nil
}

func (m *MemoryLedger) OccupiedUnits(ctx context.Context, tripID uint64, now time.Time) (map[uint64]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	occupied := make(map[uint64]bool)
	for _, r := range m.rows {
		if r.TripID != nil && *r.TripID == tripID && r.Active(now) {
			occupied[r.UnitID] = true
		}
	}
	return occupied, nil
}
