package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/transport-reservation/internal/model"
)

// LedgerRepo is the authoritative store of reservations.  It is the only
// place that decides whether a unit is taken: TryClaim and
// TryReserveWeight lock the unit (or batch) row with SELECT ... FOR
// UPDATE and check occupancy inside the same transaction, so two callers
// can never both see a unit as free.  All timestamp fields are stored
// in UTC.
type LedgerRepo struct {
	db *sql.DB
}

// NewLedgerRepo returns a new LedgerRepo bound to the given database.
func NewLedgerRepo(db *sql.DB) *LedgerRepo { return &LedgerRepo{db: db} }

// TransitionOptions carries the guards and side fields of a state
// transition.  Zero values disable the corresponding guard.
type TransitionOptions struct {
	At            time.Time // updated_at; defaults to now
	PaymentMethod string    // stored in metodo_pago when non-empty
	HoldValidAt   time.Time // hold must expire strictly after this instant
	HoldLapsedBy  time.Time // hold must have expired at or before this instant
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

const reservationColumns = `id, reference, cliente_id, kind, trip_id, batch_id, unit_id, unit_number,
	weight_grams, estado, cost_cents, hold_expires_at, metodo_pago, created_at, updated_at`

func scanReservation(row rowScanner) (model.Reservation, error) {
	var (
		res             model.Reservation
		kind, state     string
		tripID, batchID sql.NullInt64
		holdExpiresAt   sql.NullTime
		paymentMethod   sql.NullString
	)
	if err := row.Scan(
		&res.ID, &res.Reference, &res.ClientID, &kind, &tripID, &batchID, &res.UnitID, &res.UnitNumber,
		&res.WeightGrams, &state, &res.CostCents, &holdExpiresAt, &paymentMethod, &res.CreatedAt, &res.UpdatedAt,
	); err != nil {
		return model.Reservation{}, err
	}
	res.Kind = model.ReservationKind(kind)
	res.State = model.State(state)
	if tripID.Valid {
		id := uint64(tripID.Int64)
		res.TripID = &id
	}
	if batchID.Valid {
		id := uint64(batchID.Int64)
		res.BatchID = &id
	}
	if holdExpiresAt.Valid {
		t := holdExpiresAt.Time.UTC()
		res.HoldExpiresAt = &t
	}
	if paymentMethod.Valid {
		pm := paymentMethod.String
		res.PaymentMethod = &pm
	}
	return res, nil
}

func nullableID(id *uint64) interface{} {
	if id == nil {
		return nil
	}
	return *id
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// withTx runs fn inside a transaction and commits when it returns nil.
func (r *LedgerRepo) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
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
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// Claim is the outcome of a successful TryClaim or TryReserveWeight: the
// new pending reservation and the lapsed holds the claim expired to make
// room for it.
type Claim struct {
	Reservation model.Reservation
	Expired     []model.Reservation
}

// expireLapsedTx moves the lapsed pending holds whose column (unit_id or
// batch_id) equals id to expired and returns them in their
// new state.  The caller already holds the unit or batch row lock.
func expireLapsedTx(ctx context.Context, tx *sql.Tx, column string, id uint64, now time.Time) ([]model.Reservation, error) {
	lapsed, err := queryReservations(ctx, tx, `SELECT `+reservationColumns+` FROM reservations
		WHERE `+column+` = ? AND estado = 'pending' AND hold_expires_at <= ? ORDER BY id FOR UPDATE`, id, now)
	if err != nil {
		return nil, err
	}
	for i := range lapsed {
		const q = `UPDATE reservations SET estado = 'expired', hold_expires_at = NULL, updated_at = ? WHERE id = ?`
		if _, err := tx.ExecContext(ctx, q, now, lapsed[i].ID); err != nil {
			return nil, err
		}
		lapsed[i].State = model.StateExpired
		lapsed[i].HoldExpiresAt = nil
		lapsed[i].UpdatedAt = now
	}
	return lapsed, nil
}

// TryClaim atomically checks that no confirmed reservation and no live
// pending hold references unitID and, if so, inserts draft as a new
// pending reservation on it.  Pending holds that have already lapsed at
// draft.CreatedAt do not block the claim; they are marked expired in the
// same transaction and returned in Claim.Expired.  Returns ErrConflict
// when the unit is taken and ErrNotFound when the unit does not exist.
func (r *LedgerRepo) TryClaim(ctx context.Context, unitID uint64, draft model.Reservation) (Claim, error) {
	now := draft.CreatedAt.UTC()
	draft.UnitID = unitID
	var claim Claim
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var locked uint64
		if err := tx.QueryRowContext(ctx, `SELECT id FROM capacity_units WHERE id = ? FOR UPDATE`, unitID).Scan(&locked); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("unit %d: %w", unitID, ErrNotFound)
			}
			return err
		}
		expired, err := expireLapsedTx(ctx, tx, "unit_id", unitID, now)
		if err != nil {
			return err
		}
		var active int
		const count = `SELECT COUNT(*) FROM reservations WHERE unit_id = ? AND estado IN ('pending', 'confirmed')`
		if err := tx.QueryRowContext(ctx, count, unitID).Scan(&active); err != nil {
			return err
		}
		if active > 0 {
			return fmt.Errorf("unit %d: %w", unitID, ErrConflict)
		}
		if err := insertReservationTx(ctx, tx, &draft); err != nil {
			return err
		}
		claim = Claim{Reservation: draft, Expired: expired}
		return nil
	})
	if err != nil {
		return Claim{}, err
	}
	return claim, nil
}

// TryReserveWeight atomically inserts draft against batchID iff the sum
// of weights of live reservations on the batch plus draft.WeightGrams
// stays within capacityGrams.  The running sum is always computed from
// the reservation rows under the batch row lock; there is no separate
// counter that could drift.  Returns ErrNoCapacity when it does not fit.
func (r *LedgerRepo) TryReserveWeight(ctx context.Context, batchID uint64, capacityGrams int64, draft model.Reservation) (Claim, error) {
	if draft.WeightGrams <= 0 {
		return Claim{}, fmt.Errorf("weight must be positive: %w", ErrInvalid)
	}
	now := draft.CreatedAt.UTC()
	draft.BatchID = &batchID
	var claim Claim
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var locked uint64
		if err := tx.QueryRowContext(ctx, `SELECT id FROM shipment_batches WHERE id = ? FOR UPDATE`, batchID).Scan(&locked); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("batch %d: %w", batchID, ErrNotFound)
			}
			return err
		}
		expired, err := expireLapsedTx(ctx, tx, "batch_id", batchID, now)
		if err != nil {
			return err
		}
		var reserved int64
		const sum = `SELECT COALESCE(SUM(weight_grams), 0) FROM reservations WHERE batch_id = ? AND estado IN ('pending', 'confirmed')`
		if err := tx.QueryRowContext(ctx, sum, batchID).Scan(&reserved); err != nil {
			return err
		}
		if draft.WeightGrams > capacityGrams-reserved {
			return fmt.Errorf("batch %d has %d g left, %d g requested: %w",
				batchID, capacityGrams-reserved, draft.WeightGrams, ErrNoCapacity)
		}
		if err := insertReservationTx(ctx, tx, &draft); err != nil {
			return err
		}
		claim = Claim{Reservation: draft, Expired: expired}
		return nil
	})
	if err != nil {
		return Claim{}, err
	}
	return claim, nil
}

// insertReservationTx persists a pending reservation and populates its ID.
func insertReservationTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	res.State = model.StatePending
	res.UpdatedAt = res.CreatedAt
	const q = `INSERT INTO reservations (reference, cliente_id, kind, trip_id, batch_id, unit_id, unit_number,
	                weight_grams, estado, cost_cents, hold_expires_at, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, q,
		res.Reference, res.ClientID, string(res.Kind), nullableID(res.TripID), nullableID(res.BatchID),
		res.UnitID, res.UnitNumber, res.WeightGrams, string(res.State), res.CostCents,
		nullableTime(res.HoldExpiresAt), res.CreatedAt.UTC(), res.UpdatedAt.UTC(),
	)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = uint64(id)
	return nil
}

// Get returns a reservation by ID or ErrNotFound.
func (r *LedgerRepo) Get(ctx context.Context, id uint64) (model.Reservation, error) {
	res, err := scanReservation(r.db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Reservation{}, fmt.Errorf("reservation %d: %w", id, ErrNotFound)
		}
		return model.Reservation{}, err
	}
	return res, nil
}

// Transition moves reservation id from state from to state to with a
// compare-and-swap update.  When the row is not in state from (or a hold
// guard in opts does not hold) nothing is written and ErrConflict is
// returned, so a stale caller never overwrites a newer state.  Leaving
// pending always clears hold_expires_at.
func (r *LedgerRepo) Transition(ctx context.Context, id uint64, from, to model.State, opts TransitionOptions) (model.Reservation, error) {
	if !from.CanTransition(to) {
		return model.Reservation{}, fmt.Errorf("transition %s -> %s: %w", from, to, ErrInvalid)
	}
	at := opts.At
	if at.IsZero() {
		at = time.Now()
	}
	query := `UPDATE reservations SET estado = ?, updated_at = ?, hold_expires_at = NULL`
	args := []interface{}{string(to), at.UTC()}
	if opts.PaymentMethod != "" {
		query += `, metodo_pago = ?`
		args = append(args, opts.PaymentMethod)
	}
	query += ` WHERE id = ? AND estado = ?`
	args = append(args, id, string(from))
	if !opts.HoldValidAt.IsZero() {
		query += ` AND hold_expires_at > ?`
		args = append(args, opts.HoldValidAt.UTC())
	}
	if !opts.HoldLapsedBy.IsZero() {
		query += ` AND hold_expires_at <= ?`
		args = append(args, opts.HoldLapsedBy.UTC())
	}
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return model.Reservation{}, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return model.Reservation{}, err
	}
	current, err := r.Get(ctx, id)
	if err != nil {
		return model.Reservation{}, err
	}
	if n == 0 {
		return current, fmt.Errorf("reservation %d is %s, wanted %s: %w", id, current.State, from, ErrConflict)
	}
	return current, nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func (r *LedgerRepo) list(ctx context.Context, query string, args ...interface{}) ([]model.Reservation, error) {
	return queryReservations(ctx, r.db, query, args...)
}

func queryReservations(ctx context.Context, q querier, query string, args ...interface{}) ([]model.Reservation, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Reservation, 0)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListActiveByUnit returns the reservations currently blocking unitID:
// confirmed ones and pending holds that have not lapsed at now.
func (r *LedgerRepo) ListActiveByUnit(ctx context.Context, unitID uint64, now time.Time) ([]model.Reservation, error) {
	q := `SELECT ` + reservationColumns + ` FROM reservations
	      WHERE unit_id = ? AND (estado = 'confirmed' OR (estado = 'pending' AND hold_expires_at > ?))
	      ORDER BY id`
	return r.list(ctx, q, unitID, now.UTC())
}

// ListOverduePending returns up to limit pending reservations whose hold
// expired at or before now, oldest expiry first.
func (r *LedgerRepo) ListOverduePending(ctx context.Context, now time.Time, limit int) ([]model.Reservation, error) {
	q := `SELECT ` + reservationColumns + ` FROM reservations
	      WHERE estado = 'pending' AND hold_expires_at <= ?
	      ORDER BY hold_expires_at, id
	      LIMIT ?`
	return r.list(ctx, q, now.UTC(), limit)
}

// ListByClient returns every reservation of a client, newest first.
func (r *LedgerRepo) ListByClient(ctx context.Context, clientID uint64) ([]model.Reservation, error) {
	q := `SELECT ` + reservationColumns + ` FROM reservations WHERE cliente_id = ? ORDER BY created_at DESC, id DESC`
	return r.list(ctx, q, clientID)
}

// ActiveWeight returns the grams held by live reservations on a batch.
func (r *LedgerRepo) ActiveWeight(ctx context.Context, batchID uint64, now time.Time) (int64, error) {
	const q = `SELECT COALESCE(SUM(weight_grams), 0) FROM reservations
	           WHERE batch_id = ? AND (estado = 'confirmed' OR (estado = 'pending' AND hold_expires_at > ?))`
	var grams int64
	if err := r.db.QueryRowContext(ctx, q, batchID, now.UTC()).Scan(&grams); err != nil {
		return 0, err
	}
	return grams, nil
}

// OccupiedUnits returns the IDs of the seats of a trip that are blocked
// at now.
func (r *LedgerRepo) OccupiedUnits(ctx context.Context, tripID uint64, now time.Time) (map[uint64]bool, error) {
	const q = `SELECT DISTINCT unit_id FROM reservations
	           WHERE trip_id = ? AND (estado = 'confirmed' OR (estado = 'pending' AND hold_expires_at > ?))`
	rows, err := r.db.QueryContext(ctx, q, tripID, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	occupied := make(map[uint64]bool)
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		occupied[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return occupied, nil
}
