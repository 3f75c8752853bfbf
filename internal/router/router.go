// Package router mounts the HTTP handlers on an Echo instance.  Each
// Register function owns one route group and the middleware it needs.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/transport-reservation/internal/handler"
	"github.com/iliyamo/transport-reservation/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication.
// db may be nil, in which case /healthz only reports the process is up.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
}

// RegisterReservations registers the client reservation API under /v1.
// Every route needs a valid access token.  limiter guards allocation
// only; pass nil to disable it.
func RegisterReservations(e *echo.Echo, h *handler.ReservationHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleCliente, middleware.RoleStaff),
	)
	var allocate []echo.MiddlewareFunc
	if limiter != nil {
		allocate = append(allocate, limiter)
	}
	g.POST("/reservations", h.Allocate, allocate...)
	g.POST("/reservations/:id/confirm", h.Confirm)
	g.POST("/reservations/:id/cancel", h.Cancel)
	g.GET("/reservations/:id", h.Get)
	g.GET("/my-reservations", h.ListMine)
}

// RegisterCatalog registers the public browse endpoints.  Only unit
// lists go through cache; availability is read live.
func RegisterCatalog(e *echo.Echo, h *handler.CatalogHandler, cache echo.MiddlewareFunc) {
	var cached []echo.MiddlewareFunc
	if cache != nil {
		cached = append(cached, cache)
	}
	e.GET("/v1/trips/:id/units", h.TripUnits, cached...)
	e.GET("/v1/batches/:id/units", h.BatchUnits, cached...)
	e.GET("/v1/trips/:id/availability", h.TripAvailability)
	e.GET("/v1/batches/:id/availability", h.BatchAvailability)
}

// RegisterStaff registers operator endpoints under /v1/staff.
func RegisterStaff(e *echo.Echo, h *handler.StaffHandler, jwtSecret string) {
	g := e.Group(
		"/v1/staff",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleStaff),
	)
	g.GET("/units/:id/active", h.ActiveByUnit)
	g.POST("/trips", h.PublishTrip)
	g.POST("/sweep", h.Sweep)
}
