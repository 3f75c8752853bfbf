package reservation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/transport-reservation/internal/model"
	"github.com/iliyamo/transport-reservation/internal/reservation"
)

type stubLocker struct {
	granted bool
	err     error
	keys    []string
}

func (l *stubLocker) TryLock(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.keys = append(l.keys, key)
	return l.granted, l.err
}

func TestSweeperRunOnce(t *testing.T) {
	cases := []struct {
		name   string
		locker *stubLocker
		want   int
	}{
		{"no locker", nil, 2},
		{"lease granted", &stubLocker{granted: true}, 2},
		{"lease held elsewhere", &stubLocker{granted: false}, 0},
		{"lock backend down", &stubLocker{err: errors.New("redis: connection refused")}, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t, time.Minute)
			trip := e.trip(t, 2, 50)
			ctx := context.Background()
			for i := 0; i < 2; i++ {
				_, err := e.allocator.Allocate(ctx, reservation.Request{ClientID: 1, Target: reservation.SeatTarget{TripID: trip.ID}})
				require.NoError(t, err)
			}
			e.clock.Advance(5 * time.Minute)

			var locker reservation.Locker
			if tc.locker != nil {
				locker = tc.locker
			}
			s := reservation.NewSweeper(e.manager, 30*time.Second, locker, 20*time.Second)
			n, err := s.RunOnce(ctx)
			require.NoError(t, err)
			assert.Equal(t, tc.want, n)
			if tc.locker != nil {
				assert.Len(t, tc.locker.keys, 1)
			}
		})
	}
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	e := newEnv(t, time.Minute)
	s := reservation.NewSweeper(e.manager, 10*time.Millisecond, nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}

func TestInventoryTripAndBatch(t *testing.T) {
	e := newEnv(t, time.Minute)
	trip := e.trip(t, 3, 50)
	b := e.batch(t, 20, 100)
	inv := reservation.NewInventory(e.catalog, e.ledger, e.clock.Now)
	ctx := context.Background()

	_, err := e.allocator.Allocate(ctx, reservation.Request{ClientID: 1, Target: reservation.SeatTarget{TripID: trip.ID, SeatNumber: seat(2)}})
	require.NoError(t, err)
	_, err = e.allocator.Allocate(ctx, reservation.Request{ClientID: 1, Target: reservation.CargoTarget{BatchID: b.ID, WeightGrams: 7_500}})
	require.NoError(t, err)

	seats, err := inv.Trip(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TripScheduled, seats.Status)
	assert.Equal(t, 2, seats.FreeSeats)
	require.Len(t, seats.Seats, 3)
	assert.False(t, seats.Seats[0].Occupied)
	assert.True(t, seats.Seats[1].Occupied)
	assert.False(t, seats.Seats[2].Occupied)

	cargo, err := inv.Batch(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20_000), cargo.CapacityGrams)
	assert.Equal(t, int64(7_500), cargo.ReservedGrams)
	assert.Equal(t, int64(12_500), cargo.RemainingGrams)

	// lapsed holds stop counting immediately
	e.clock.Advance(time.Hour)
	seats, err = inv.Trip(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, seats.FreeSeats)
	cargo, err = inv.Batch(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), cargo.ReservedGrams)

	units, err := inv.Units(ctx, model.BatchRef(b.ID))
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, model.UnitCargoSlot, units[0].Kind)
}
