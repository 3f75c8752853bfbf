package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/transport-reservation/internal/model"
	"github.com/iliyamo/transport-reservation/internal/reservation"
)

// CatalogHandler serves the public, read-only view of trips and batches.
type CatalogHandler struct {
	inventory *reservation.Inventory
}

func NewCatalogHandler(inventory *reservation.Inventory) *CatalogHandler {
	return &CatalogHandler{inventory: inventory}
}

func (h *CatalogHandler) units(c echo.Context, ref func(uint64) model.TargetRef) error {
	id, err := parseID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	units, err := h.inventory.Units(c.Request().Context(), ref(id))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"units": units})
}

// TripUnits handles GET /v1/trips/:id/units.
func (h *CatalogHandler) TripUnits(c echo.Context) error { return h.units(c, model.TripRef) }

// BatchUnits handles GET /v1/batches/:id/units.
func (h *CatalogHandler) BatchUnits(c echo.Context) error { return h.units(c, model.BatchRef) }

// TripAvailability handles GET /v1/trips/:id/availability.
func (h *CatalogHandler) TripAvailability(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	av, err := h.inventory.Trip(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, av)
}

// BatchAvailability handles GET /v1/batches/:id/availability.  Weights
// are reported in kilograms alongside the raw grams.
func (h *CatalogHandler) BatchAvailability(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	av, err := h.inventory.Batch(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"batchId":        av.BatchID,
		"tripId":         av.TripID,
		"capacityGrams":  av.CapacityGrams,
		"reservedGrams":  av.ReservedGrams,
		"remainingGrams": av.RemainingGrams,
		"capacityKg":     kilograms(av.CapacityGrams),
		"reservedKg":     kilograms(av.ReservedGrams),
		"remainingKg":    kilograms(av.RemainingGrams),
	})
}

func kilograms(grams int64) float64 { return float64(grams) / 1000 }
