package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/transport-reservation/internal/model"
	"github.com/iliyamo/transport-reservation/internal/repository"
)

// Payment methods accepted on confirmation.
var paymentMethods = map[string]bool{
	"efectivo":      true,
	"tarjeta":       true,
	"transferencia": true,
	"billetera":     true,
}

// ValidPaymentMethod reports whether m is an accepted payment method.
func ValidPaymentMethod(m string) bool { return paymentMethods[m] }

// DefaultSweepBatch bounds how many overdue holds one ledger query returns.
const DefaultSweepBatch = 200

// Manager advances reservations through their lifecycle.  Every change
// goes through Ledger.Transition, so a stale caller gets ErrConflict
// instead of overwriting a newer state.  Nothing is retried.
type Manager struct {
	ledger     Ledger
	opts       Options
	sweepBatch int
}

func NewManager(ledger Ledger, opts Options) *Manager {
	return &Manager{ledger: ledger, opts: opts.withDefaults(), sweepBatch: DefaultSweepBatch}
}

// SetSweepBatch changes the page size used by SweepExpired.
func (m *Manager) SetSweepBatch(n int) {
	if n > 0 {
		m.sweepBatch = n
	}
}

// Get returns a reservation by id.
func (m *Manager) Get(ctx context.Context, id uint64) (model.Reservation, error) {
	return m.ledger.Get(ctx, id)
}

// Confirm moves a pending reservation to confirmed while its hold is
// still valid.  A lapsed hold yields ErrExpired and the reservation is
// marked expired; it is never extended.  Confirming anything that is not
// pending yields ErrConflict.
func (m *Manager) Confirm(ctx context.Context, id uint64, paymentMethod string) (model.Reservation, error) {
	if !ValidPaymentMethod(paymentMethod) {
		return model.Reservation{}, fmt.Errorf("metodoPago %q: %w", paymentMethod, repository.ErrInvalid)
	}
	now := m.opts.Now().UTC()
	res, err := m.ledger.Transition(ctx, id, model.StatePending, model.StateConfirmed, repository.TransitionOptions{
		At:            now,
		PaymentMethod: paymentMethod,
		HoldValidAt:   now,
	})
	if err == nil {
		emit(ctx, m.opts.Events, res)
		return res, nil
	}
	if !errors.Is(err, repository.ErrConflict) {
		return model.Reservation{}, err
	}
	switch {
	case res.State == model.StateExpired:
		return res, fmt.Errorf("reservation %d: %w", id, repository.ErrExpired)
	case res.HoldLapsed(now):
		if expired, err := m.expire(ctx, res.ID, now); err == nil {
			res = expired
		}
		return res, fmt.Errorf("reservation %d: %w", id, repository.ErrExpired)
	}
	return res, err
}

// Cancel moves a pending or confirmed reservation to cancelled,
// regardless of its hold expiry.  Cancelling a terminal reservation
// yields ErrConflict.
func (m *Manager) Cancel(ctx context.Context, id uint64) (model.Reservation, error) {
	cur, err := m.ledger.Get(ctx, id)
	if err != nil {
		return model.Reservation{}, err
	}
	if cur.State.Terminal() {
		return cur, fmt.Errorf("reservation %d is already %s: %w", id, cur.State, repository.ErrConflict)
	}
	res, err := m.ledger.Transition(ctx, id, cur.State, model.StateCancelled, repository.TransitionOptions{
		At: m.opts.Now().UTC(),
	})
	if err != nil {
		return res, err
	}
	emit(ctx, m.opts.Events, res)
	return res, nil
}

func (m *Manager) expire(ctx context.Context, id uint64, now time.Time) (model.Reservation, error) {
	res, err := m.ledger.Transition(ctx, id, model.StatePending, model.StateExpired, repository.TransitionOptions{
		At:           now,
		HoldLapsedBy: now,
	})
	if err != nil {
		return res, err
	}
	emit(ctx, m.opts.Events, res)
	return res, nil
}

// SweepExpired marks every pending reservation whose hold expired at or
// before now as expired and returns how many it moved.  Reservations
// that changed state concurrently are skipped, so running it twice (or
// on two instances) is harmless.
func (m *Manager) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	now = now.UTC()
	swept := 0
	for {
		overdue, err := m.ledger.ListOverduePending(ctx, now, m.sweepBatch)
		if err != nil {
			return swept, err
		}
		moved := 0
		for _, res := range overdue {
			if _, err := m.expire(ctx, res.ID, now); err != nil {
				if errors.Is(err, repository.ErrConflict) {
					continue
				}
				return swept, err
			}
			moved++
		}
		swept += moved
		if len(overdue) < m.sweepBatch || moved == 0 {
			return swept, nil
		}
	}
}

// ListByClient returns the reservations of a client, newest first.
func (m *Manager) ListByClient(ctx context.Context, clientID uint64) ([]model.Reservation, error) {
	return m.ledger.ListByClient(ctx, clientID)
}

// ListActiveByUnit returns the reservations blocking a unit right now.
func (m *Manager) ListActiveByUnit(ctx context.Context, unitID uint64) ([]model.Reservation, error) {
	return m.ledger.ListActiveByUnit(ctx, unitID, m.opts.Now().UTC())
}
