package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema lists the DDL statements for the reservation tables.  Each
// statement is idempotent so Migrate can run on every start.
//
// reservations.unit_id + estado backs the seat claim check, batch_id +
// estado backs the cargo running sum and estado + hold_expires_at backs
// the sweeper scan.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS trips (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		origin VARCHAR(120) NOT NULL,
		destination VARCHAR(120) NOT NULL,
		departs_at DATETIME NOT NULL,
		bus_plate VARCHAR(20) NOT NULL DEFAULT '',
		seat_count INT UNSIGNED NOT NULL,
		price_cents INT UNSIGNED NOT NULL,
		status ENUM('SCHEDULED','DEPARTED','CANCELLED') NOT NULL DEFAULT 'SCHEDULED',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS shipment_batches (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		trip_id BIGINT UNSIGNED NOT NULL,
		capacity_grams BIGINT NOT NULL,
		max_volume_cm3 BIGINT NOT NULL DEFAULT 0,
		price_per_kg_cents INT UNSIGNED NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_batch_trip (trip_id),
		CONSTRAINT fk_batch_trip FOREIGN KEY (trip_id) REFERENCES trips(id)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS capacity_units (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		target_kind ENUM('trip','batch') NOT NULL,
		target_id BIGINT UNSIGNED NOT NULL,
		unit_number INT UNSIGNED NOT NULL,
		kind ENUM('seat','cargo-slot') NOT NULL,
		max_weight_grams BIGINT NOT NULL DEFAULT 0,
		max_volume_cm3 BIGINT NOT NULL DEFAULT 0,
		UNIQUE KEY uq_unit_target_number (target_kind, target_id, unit_number)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS reservations (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		reference CHAR(36) NOT NULL,
		cliente_id BIGINT UNSIGNED NOT NULL,
		kind ENUM('viaje','encomienda') NOT NULL,
		trip_id BIGINT UNSIGNED NULL,
		batch_id BIGINT UNSIGNED NULL,
		unit_id BIGINT UNSIGNED NOT NULL,
		unit_number INT UNSIGNED NOT NULL,
		weight_grams BIGINT NOT NULL DEFAULT 0,
		estado ENUM('pending','confirmed','cancelled','expired') NOT NULL,
		cost_cents INT UNSIGNED NOT NULL,
		hold_expires_at DATETIME(3) NULL,
		metodo_pago VARCHAR(32) NULL,
		created_at DATETIME(3) NOT NULL,
		updated_at DATETIME(3) NOT NULL,
		UNIQUE KEY uq_reservation_reference (reference),
		KEY idx_res_unit_estado (unit_id, estado),
		KEY idx_res_batch_estado (batch_id, estado),
		KEY idx_res_estado_hold (estado, hold_expires_at),
		KEY idx_res_cliente (cliente_id),
		CONSTRAINT fk_res_unit FOREIGN KEY (unit_id) REFERENCES capacity_units(id)
	) ENGINE=InnoDB`,
}

// Migrate creates the reservation tables when they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i+1, err)
		}
	}
	return nil
}
