package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/transport-reservation/internal/model"
)

// CatalogRepo reads trips, shipment batches and their capacity units.
// From the reservation core's point of view the catalog is read-only;
// PublishTrip is the single write path, used by the scheduling side to
// create a trip together with its seats and optional cargo batch.
type CatalogRepo struct {
	db *sql.DB
}

// NewCatalogRepo constructs a CatalogRepo with the given DB handle.
func NewCatalogRepo(db *sql.DB) *CatalogRepo {
	return &CatalogRepo{db: db}
}

const tripColumns = `id, origin, destination, departs_at, bus_plate, seat_count, price_cents, status, created_at`

// GetTrip retrieves a trip by its ID.  It returns ErrNotFound if there
// is no matching row.
func (r *CatalogRepo) GetTrip(ctx context.Context, id uint64) (model.Trip, error) {
	var t model.Trip
	err := r.db.QueryRowContext(ctx, `SELECT `+tripColumns+` FROM trips WHERE id = ?`, id).Scan(
		&t.ID, &t.Origin, &t.Destination, &t.DepartsAt, &t.BusPlate,
		&t.SeatCount, &t.PriceCents, &t.Status, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Trip{}, fmt.Errorf("trip %d: %w", id, ErrNotFound)
		}
		return model.Trip{}, err
	}
	return t, nil
}

const batchColumns = `id, trip_id, capacity_grams, max_volume_cm3, price_per_kg_cents, created_at`

func scanBatch(row rowScanner) (model.ShipmentBatch, error) {
	var b model.ShipmentBatch
	err := row.Scan(&b.ID, &b.TripID, &b.CapacityGrams, &b.MaxVolumeCm3, &b.PricePerKgCents, &b.CreatedAt)
	return b, err
}

// GetBatch retrieves a shipment batch by its ID.
func (r *CatalogRepo) GetBatch(ctx context.Context, id uint64) (model.ShipmentBatch, error) {
	b, err := scanBatch(r.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM shipment_batches WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ShipmentBatch{}, fmt.Errorf("batch %d: %w", id, ErrNotFound)
		}
		return model.ShipmentBatch{}, err
	}
	return b, nil
}

// BatchForTrip returns the shipment batch carried by a trip.  Trips
// without cargo capacity yield ErrNotFound.
func (r *CatalogRepo) BatchForTrip(ctx context.Context, tripID uint64) (model.ShipmentBatch, error) {
	b, err := scanBatch(r.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM shipment_batches WHERE trip_id = ?`, tripID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ShipmentBatch{}, fmt.Errorf("batch for trip %d: %w", tripID, ErrNotFound)
		}
		return model.ShipmentBatch{}, err
	}
	return b, nil
}

const unitColumns = `id, target_kind, target_id, unit_number, kind, max_weight_grams, max_volume_cm3`

func scanUnit(row rowScanner) (model.CapacityUnit, error) {
	var u model.CapacityUnit
	var targetKind, kind string
	if err := row.Scan(&u.ID, &targetKind, &u.TargetID, &u.Number, &kind, &u.MaxWeightGrams, &u.MaxVolumeCm3); err != nil {
		return model.CapacityUnit{}, err
	}
	u.TargetKind = model.TargetKind(targetKind)
	u.Kind = model.UnitKind(kind)
	return u, nil
}

// ListUnits returns the units of a trip or batch ordered by ascending
// unit number.  The order is what the allocator probes in, so it must
// be stable.  ErrNotFound is returned when the target itself does not
// exist.
func (r *CatalogRepo) ListUnits(ctx context.Context, ref model.TargetRef) ([]model.CapacityUnit, error) {
	switch ref.Kind {
	case model.TargetTrip:
		if _, err := r.GetTrip(ctx, ref.ID); err != nil {
			return nil, err
		}
	case model.TargetBatch:
		if _, err := r.GetBatch(ctx, ref.ID); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("target kind %q: %w", ref.Kind, ErrInvalid)
	}
	const q = `SELECT ` + unitColumns + `
	           FROM capacity_units
	           WHERE target_kind = ? AND target_id = ?
	           ORDER BY unit_number`
	rows, err := r.db.QueryContext(ctx, q, string(ref.Kind), ref.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	units := make([]model.CapacityUnit, 0)
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return units, nil
}

// GetUnit retrieves a capacity unit by its id.
func (r *CatalogRepo) GetUnit(ctx context.Context, id uint64) (model.CapacityUnit, error) {
	u, err := scanUnit(r.db.QueryRowContext(ctx, `SELECT `+unitColumns+` FROM capacity_units WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.CapacityUnit{}, fmt.Errorf("unit %d: %w", id, ErrNotFound)
		}
		return model.CapacityUnit{}, err
	}
	return u, nil
}

// PublishTrip inserts a trip, one seat unit per seat and, when batch is
// non-nil, the shipment batch with its single cargo slot.  Everything
// happens in one transaction so a trip is never visible with a partial
// seat map.  Generated IDs are written back into trip and batch.
func (r *CatalogRepo) PublishTrip(ctx context.Context, trip *model.Trip, batch *model.ShipmentBatch) error {
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
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	const insTrip = `INSERT INTO trips (origin, destination, departs_at, bus_plate, seat_count, price_cents, status, created_at)
	                 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, insTrip, trip.Origin, trip.Destination, trip.DepartsAt.UTC(), trip.BusPlate,
		trip.SeatCount, trip.PriceCents, trip.Status, trip.CreatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	trip.ID = uint64(id)

	seats := make([]model.CapacityUnit, 0, trip.SeatCount)
	for n := uint32(1); n <= trip.SeatCount; n++ {
		seats = append(seats, model.CapacityUnit{
			TargetKind: model.TargetTrip,
			TargetID:   trip.ID,
			Number:     n,
			Kind:       model.UnitSeat,
		})
	}
	if err := createUnitsBulkTx(ctx, tx, seats); err != nil {
		return err
	}

	if batch != nil {
		batch.TripID = trip.ID
		batch.CreatedAt = trip.CreatedAt
		const insBatch = `INSERT INTO shipment_batches (trip_id, capacity_grams, max_volume_cm3, price_per_kg_cents, created_at)
		                  VALUES (?, ?, ?, ?, ?)`
		res, err := tx.ExecContext(ctx, insBatch, batch.TripID, batch.CapacityGrams, batch.MaxVolumeCm3, batch.PricePerKgCents, batch.CreatedAt)
		if err != nil {
			return err
		}
		bid, err := res.LastInsertId()
		if err != nil {
			return err
		}
		batch.ID = uint64(bid)
		slot := []model.CapacityUnit{{
			TargetKind:     model.TargetBatch,
			TargetID:       batch.ID,
			Number:         1,
			Kind:           model.UnitCargoSlot,
			MaxWeightGrams: batch.CapacityGrams,
			MaxVolumeCm3:   batch.MaxVolumeCm3,
		}}
		if err := createUnitsBulkTx(ctx, tx, slot); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// createUnitsBulkTx inserts multiple capacity units in a single statement.
func createUnitsBulkTx(ctx context.Context, tx *sql.Tx, units []model.CapacityUnit) error {
	if len(units) == 0 {
		return nil
	}
	query := `INSERT INTO capacity_units (target_kind, target_id, unit_number, kind, max_weight_grams, max_volume_cm3) VALUES `
	args := make([]interface{}, 0, len(units)*6)
	for i, u := range units {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?, ?)"
		args = append(args, string(u.TargetKind), u.TargetID, u.Number, string(u.Kind), u.MaxWeightGrams, u.MaxVolumeCm3)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}
