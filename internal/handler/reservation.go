package handler

import (
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/transport-reservation/internal/middleware"
	"github.com/iliyamo/transport-reservation/internal/model"
	"github.com/iliyamo/transport-reservation/internal/reservation"
)

// ReservationHandler exposes allocation and the reservation lifecycle to
// clients.  Routes are mounted behind JWTAuth, so an Identity is always
// present.
type ReservationHandler struct {
	allocator *reservation.Allocator
	manager   *reservation.Manager
}

func NewReservationHandler(allocator *reservation.Allocator, manager *reservation.Manager) *ReservationHandler {
	if allocator == nil || manager == nil {
		panic("nil dependency passed to NewReservationHandler")
	}
	return &ReservationHandler{allocator: allocator, manager: manager}
}

// maxPesoKg bounds a single shipment so the conversion to grams stays
// exact and in range.
const maxPesoKg = 1_000_000

// allocateRequest is the body of POST /v1/reservations.  Peso is in
// kilograms.
type allocateRequest struct {
	TripID   uint64   `json:"tripId"`
	BatchID  uint64   `json:"batchId"`
	Kind     string   `json:"kind"`
	UnitID   *uint32  `json:"unitId"`
	ClientID uint64   `json:"clienteId"`
	Peso     *float64 `json:"peso"`
}

// target maps the wire request onto an allocation target.
func (r allocateRequest) target() (reservation.Target, error) {
	switch model.ReservationKind(strings.ToLower(strings.TrimSpace(r.Kind))) {
	case model.KindViaje:
		if r.TripID == 0 {
			return nil, invalidf("tripId is required for viaje")
		}
		if r.BatchID != 0 || r.Peso != nil {
			return nil, invalidf("viaje reservations take no batchId or peso")
		}
		return reservation.SeatTarget{TripID: r.TripID, SeatNumber: r.UnitID}, nil
	case model.KindEncomienda:
		if r.TripID == 0 && r.BatchID == 0 {
			return nil, invalidf("tripId or batchId is required for encomienda")
		}
		if r.UnitID != nil {
			return nil, invalidf("encomienda reservations take no unitId")
		}
		if r.Peso == nil || !(*r.Peso > 0 && *r.Peso <= maxPesoKg) {
			return nil, invalidf("peso must be between 0 and %d kilograms", maxPesoKg)
		}
		return reservation.CargoTarget{
			BatchID:     r.BatchID,
			TripID:      r.TripID,
			WeightGrams: int64(math.Round(*r.Peso * 1000)),
		}, nil
	}
	return nil, invalidf("unknown kind %q", r.Kind)
}

// Allocate handles POST /v1/reservations.  A missing clienteId defaults
// to the caller's own.
func (h *ReservationHandler) Allocate(c echo.Context) error {
	id, _ := middleware.CurrentIdentity(c)
	var body allocateRequest
	if err := c.Bind(&body); err != nil {
		return writeError(c, invalidf("invalid request body"))
	}
	if body.ClientID == 0 {
		body.ClientID = id.ClientID
	}
	if !id.CanActFor(body.ClientID) {
		return forbidden(c)
	}
	target, err := body.target()
	if err != nil {
		return writeError(c, err)
	}
	res, err := h.allocator.Allocate(c.Request().Context(), reservation.Request{ClientID: body.ClientID, Target: target})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"reservationId": res.ID,
		"reference":     res.Reference,
		"kind":          res.Kind,
		"estado":        res.State,
		"unitId":        res.UnitNumber,
		"costo":         res.CostCents,
		"holdExpiresAt": res.HoldExpiresAt.UTC().Format(time.RFC3339),
	})
}

// owned loads the reservation in the :id path parameter and checks the
// caller may act on it.  A nil reservation with a nil error means the
// response has already been written.
func (h *ReservationHandler) owned(c echo.Context) (*model.Reservation, error) {
	resID, err := parseID(c, "id")
	if err != nil {
		return nil, writeError(c, err)
	}
	res, err := h.manager.Get(c.Request().Context(), resID)
	if err != nil {
		return nil, writeError(c, err)
	}
	id, _ := middleware.CurrentIdentity(c)
	if !id.CanActFor(res.ClientID) {
		return nil, forbidden(c)
	}
	return &res, nil
}

// Confirm handles POST /v1/reservations/:id/confirm.
func (h *ReservationHandler) Confirm(c echo.Context) error {
	res, err := h.owned(c)
	if res == nil {
		return err
	}
	var body struct {
		PaymentMethod string `json:"metodoPago"`
	}
	if err := c.Bind(&body); err != nil {
		return writeError(c, invalidf("invalid request body"))
	}
	confirmed, err := h.manager.Confirm(c.Request().Context(), res.ID, strings.ToLower(strings.TrimSpace(body.PaymentMethod)))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservationId": confirmed.ID, "estado": confirmed.State})
}

// Cancel handles POST /v1/reservations/:id/cancel.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	res, err := h.owned(c)
	if res == nil {
		return err
	}
	cancelled, err := h.manager.Cancel(c.Request().Context(), res.ID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservationId": cancelled.ID, "estado": cancelled.State})
}

// Get handles GET /v1/reservations/:id.
func (h *ReservationHandler) Get(c echo.Context) error {
	res, err := h.owned(c)
	if res == nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// ListMine handles GET /v1/my-reservations.
func (h *ReservationHandler) ListMine(c echo.Context) error {
	id, _ := middleware.CurrentIdentity(c)
	list, err := h.manager.ListByClient(c.Request().Context(), id.ClientID)
	if err != nil {
		return writeError(c, err)
	}
	if list == nil {
		list = []model.Reservation{}
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": list})
}
