// Package repository defines error types that are reused across the
// catalog and ledger stores and the reservation core above them.  These
// sentinel values allow higher layers such as handlers to distinguish
// between the failure kinds of an allocation or a transition.  Stores
// wrap them with context using fmt.Errorf and %w, so callers must test
// with errors.Is.
package repository

import "errors"

// ErrInvalid is returned for malformed or mismatched requests, such as
// asking for a cargo slot on a trip or a seat number the trip does not
// have.  Not retryable without changing the input.
var ErrInvalid = errors.New("invalid")

// ErrNotFound is returned when a trip, batch, unit or reservation does
// not exist.
var ErrNotFound = errors.New("not found")

// ErrNoCapacity is returned when no unit (or not enough cargo weight)
// is available.  Callers may try another seat or trip.
var ErrNoCapacity = errors.New("no capacity")

// ErrConflict is returned when a concurrent writer won a race: the unit
// is already claimed, or the reservation is no longer in the state the
// caller expected.  Handlers should translate this into HTTP 409.
var ErrConflict = errors.New("conflict")

// ErrExpired is returned when a hold lapsed before it was confirmed.
// The caller must allocate again; holds are never extended.
var ErrExpired = errors.New("hold expired")
