package handler

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/transport-reservation/internal/model"
	"github.com/iliyamo/transport-reservation/internal/reservation"
)

// TripPublisher stores a new trip together with its units.  Both the
// MySQL and the in-memory catalog satisfy it.
type TripPublisher interface {
	PublishTrip(ctx context.Context, trip *model.Trip, batch *model.ShipmentBatch) error
}

// StaffHandler groups operator endpoints.  All routes require the STAFF
// role.
type StaffHandler struct {
	trips   TripPublisher
	manager *reservation.Manager
	sweeper *reservation.Sweeper
}

func NewStaffHandler(trips TripPublisher, manager *reservation.Manager, sweeper *reservation.Sweeper) *StaffHandler {
	if trips == nil || manager == nil || sweeper == nil {
		panic("nil dependency passed to NewStaffHandler")
	}
	return &StaffHandler{trips: trips, manager: manager, sweeper: sweeper}
}

type publishTripRequest struct {
	Origin      string    `json:"origin"`
	Destination string    `json:"destination"`
	DepartsAt   time.Time `json:"departsAt"`
	BusPlate    string    `json:"busPlate"`
	SeatCount   uint32    `json:"seatCount"`
	PriceCents  uint32    `json:"priceCents"`
	Cargo       *struct {
		CapacityKg      float64 `json:"capacityKg"`
		MaxVolumeCm3    int64   `json:"maxVolumeCm3"`
		PricePerKgCents uint32  `json:"pricePerKgCents"`
	} `json:"cargo"`
}

// PublishTrip handles POST /v1/staff/trips.
func (h *StaffHandler) PublishTrip(c echo.Context) error {
	var body publishTripRequest
	if err := c.Bind(&body); err != nil {
		return writeError(c, invalidf("invalid request body"))
	}
	body.Origin = strings.TrimSpace(body.Origin)
	body.Destination = strings.TrimSpace(body.Destination)
	if body.Origin == "" || body.Destination == "" {
		return writeError(c, invalidf("origin and destination are required"))
	}
	if body.DepartsAt.IsZero() {
		return writeError(c, invalidf("departsAt is required"))
	}
	trip := &model.Trip{
		Origin:      body.Origin,
		Destination: body.Destination,
		DepartsAt:   body.DepartsAt.UTC(),
		BusPlate:    strings.TrimSpace(body.BusPlate),
		SeatCount:   body.SeatCount,
		PriceCents:  body.PriceCents,
	}
	var batch *model.ShipmentBatch
	if body.Cargo != nil {
		if body.Cargo.CapacityKg <= 0 || math.IsNaN(body.Cargo.CapacityKg) || math.IsInf(body.Cargo.CapacityKg, 0) {
			return writeError(c, invalidf("cargo.capacityKg must be positive"))
		}
		batch = &model.ShipmentBatch{
			CapacityGrams:   int64(math.Round(body.Cargo.CapacityKg * 1000)),
			MaxVolumeCm3:    body.Cargo.MaxVolumeCm3,
			PricePerKgCents: body.Cargo.PricePerKgCents,
		}
	}
	if err := h.trips.PublishTrip(c.Request().Context(), trip, batch); err != nil {
		return writeError(c, err)
	}
	resp := echo.Map{"tripId": trip.ID, "status": trip.Status, "seatCount": trip.SeatCount}
	if batch != nil {
		resp["batchId"] = batch.ID
	}
	return c.JSON(http.StatusCreated, resp)
}

// Sweep handles POST /v1/staff/sweep by running one sweep immediately.
func (h *StaffHandler) Sweep(c echo.Context) error {
	n, err := h.sweeper.RunOnce(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"expired": n})
}

// ActiveByUnit handles GET /v1/staff/units/:id/active.
func (h *StaffHandler) ActiveByUnit(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	list, err := h.manager.ListActiveByUnit(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	if list == nil {
		list = []model.Reservation{}
	}
	return c.JSON(http.StatusOK, echo.Map{"unitId": id, "reservations": list})
}
