package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/transport-reservation/internal/handler"
	"github.com/iliyamo/transport-reservation/internal/middleware"
	"github.com/iliyamo/transport-reservation/internal/repository"
	"github.com/iliyamo/transport-reservation/internal/reservation"
	"github.com/iliyamo/transport-reservation/internal/router"
	"github.com/iliyamo/transport-reservation/internal/utils"
)

const secret = "handler-secret"

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type api struct {
	t     *testing.T
	e     *echo.Echo
	clock *clock
}

func newAPI(t *testing.T) *api {
	t.Helper()
	clk := &clock{t: time.Now().UTC()}
	catalog := repository.NewMemoryCatalog()
	ledger := repository.NewMemoryLedger(catalog)
	opts := reservation.Options{HoldTTL: 15 * time.Minute, Now: clk.Now}
	allocator := reservation.NewAllocator(catalog, ledger, opts)
	manager := reservation.NewManager(ledger, opts)
	sweeper := reservation.NewSweeper(manager, time.Minute, nil, 0)

	e := echo.New()
	router.RegisterRoutes(e, nil)
	router.RegisterReservations(e, handler.NewReservationHandler(allocator, manager), secret, nil)
	router.RegisterCatalog(e, handler.NewCatalogHandler(reservation.NewInventory(catalog, ledger, clk.Now)), nil)
	router.RegisterStaff(e, handler.NewStaffHandler(catalog, manager, sweeper), secret)
	return &api{t: t, e: e, clock: clk}
}

func (a *api) token(clientID uint64, role string) string {
	a.t.Helper()
	tok, err := utils.NewAccessToken(secret, clientID, role, time.Hour)
	require.NoError(a.t, err)
	return tok.Token
}

func (a *api) do(method, path, token, body string) (int, map[string]any) {
	a.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	out := map[string]any{}
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

// publish creates a trip through the staff API and returns its id and
// the id of its batch (zero without cargo).
func (a *api) publish(seats int, cargo string) (tripID, batchID uint64) {
	a.t.Helper()
	body := `{"origin":"Lima","destination":"Ica","departsAt":"` + a.clock.Now().Add(48*time.Hour).Format(time.RFC3339) +
		`","busPlate":"BUS-9","seatCount":` + strconv.Itoa(seats) + `,"priceCents":50`
	if cargo != "" {
		body += `,"cargo":` + cargo
	}
	body += `}`
	code, out := a.do(http.MethodPost, "/v1/staff/trips", a.token(1, middleware.RoleStaff), body)
	require.Equal(a.t, http.StatusCreated, code, out)
	tripID = uint64(out["tripId"].(float64))
	if id, ok := out["batchId"].(float64); ok {
		batchID = uint64(id)
	}
	return tripID, batchID
}

func id(v any) string { return strconv.FormatUint(uint64(v.(float64)), 10) }

func TestSeatReservationFlow(t *testing.T) {
	a := newAPI(t)
	tripID, _ := a.publish(3, "")
	client := a.token(7, middleware.RoleCliente)

	code, out := a.do(http.MethodPost, "/v1/reservations", client,
		`{"tripId":`+strconv.FormatUint(tripID, 10)+`,"kind":"viaje","unitId":2,"clienteId":7}`)
	require.Equal(t, http.StatusCreated, code, out)
	assert.Equal(t, "pending", out["estado"])
	assert.EqualValues(t, 2, out["unitId"])
	assert.EqualValues(t, 50, out["costo"])
	assert.NotEmpty(t, out["holdExpiresAt"])
	resID := id(out["reservationId"])

	code, out = a.do(http.MethodPost, "/v1/reservations/"+resID+"/confirm", client, `{"metodoPago":"efectivo"}`)
	require.Equal(t, http.StatusOK, code, out)
	assert.Equal(t, "confirmed", out["estado"])

	code, out = a.do(http.MethodGet, "/v1/reservations/"+resID, client, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "efectivo", out["metodoPago"])
	assert.Nil(t, out["holdExpiresAt"])

	code, out = a.do(http.MethodGet, "/v1/trips/"+strconv.FormatUint(tripID, 10)+"/availability", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, out["freeSeats"])
	seats := out["seats"].([]any)
	require.Len(t, seats, 3)
	assert.Equal(t, true, seats[1].(map[string]any)["occupied"])

	code, out = a.do(http.MethodGet, "/v1/my-reservations", client, "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, out["reservations"], 1)

	code, out = a.do(http.MethodPost, "/v1/reservations/"+resID+"/cancel", client, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "cancelled", out["estado"])

	code, out = a.do(http.MethodPost, "/v1/reservations/"+resID+"/cancel", client, "")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "conflict", out["error"])
}

func TestCargoReservationByTrip(t *testing.T) {
	a := newAPI(t)
	tripID, batchID := a.publish(1, `{"capacityKg":10,"pricePerKgCents":120}`)
	require.NotZero(t, batchID)
	client := a.token(7, middleware.RoleCliente)

	code, out := a.do(http.MethodPost, "/v1/reservations", client,
		`{"tripId":`+strconv.FormatUint(tripID, 10)+`,"kind":"encomienda","peso":2.5}`)
	require.Equal(t, http.StatusCreated, code, out)
	assert.EqualValues(t, 300, out["costo"])
	assert.EqualValues(t, 1, out["unitId"])

	code, out = a.do(http.MethodPost, "/v1/reservations", client,
		`{"batchId":`+strconv.FormatUint(batchID, 10)+`,"kind":"encomienda","peso":8}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "no_capacity", out["error"])

	code, out = a.do(http.MethodGet, "/v1/batches/"+strconv.FormatUint(batchID, 10)+"/availability", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 10, out["capacityKg"])
	assert.EqualValues(t, 2.5, out["reservedKg"])
	assert.EqualValues(t, 7.5, out["remainingKg"])

	code, out = a.do(http.MethodGet, "/v1/batches/"+strconv.FormatUint(batchID, 10)+"/units", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, out["units"], 1)
}

func TestSeatAlreadyTaken(t *testing.T) {
	a := newAPI(t)
	tripID, _ := a.publish(2, "")
	body := `{"tripId":` + strconv.FormatUint(tripID, 10) + `,"kind":"viaje","unitId":1}`

	code, _ := a.do(http.MethodPost, "/v1/reservations", a.token(7, middleware.RoleCliente), body)
	require.Equal(t, http.StatusCreated, code)
	code, out := a.do(http.MethodPost, "/v1/reservations", a.token(8, middleware.RoleCliente), body)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "no_capacity", out["error"])
	assert.NotEmpty(t, out["message"])
}

func TestOwnership(t *testing.T) {
	a := newAPI(t)
	tripID, _ := a.publish(2, "")
	trip := strconv.FormatUint(tripID, 10)
	owner := a.token(7, middleware.RoleCliente)
	other := a.token(8, middleware.RoleCliente)
	staff := a.token(1, middleware.RoleStaff)

	code, _ := a.do(http.MethodPost, "/v1/reservations", other, `{"tripId":`+trip+`,"kind":"viaje","clienteId":7}`)
	assert.Equal(t, http.StatusForbidden, code)

	code, out := a.do(http.MethodPost, "/v1/reservations", staff, `{"tripId":`+trip+`,"kind":"viaje","clienteId":7}`)
	require.Equal(t, http.StatusCreated, code, out)
	resID := id(out["reservationId"])

	code, _ = a.do(http.MethodGet, "/v1/reservations/"+resID, other, "")
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = a.do(http.MethodPost, "/v1/reservations/"+resID+"/cancel", other, "")
	assert.Equal(t, http.StatusForbidden, code)

	code, out = a.do(http.MethodGet, "/v1/reservations/"+resID, owner, "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 7, out["clienteId"])
}

func TestErrorMapping(t *testing.T) {
	a := newAPI(t)
	tripID, _ := a.publish(1, "")
	trip := strconv.FormatUint(tripID, 10)
	client := a.token(7, middleware.RoleCliente)

	code, out := a.do(http.MethodPost, "/v1/reservations", client, `{"tripId":`+trip+`,"kind":"viaje"}`)
	require.Equal(t, http.StatusCreated, code)
	resID := id(out["reservationId"])

	cases := []struct {
		name, method, path, body string
		status                   int
		kind                     string
	}{
		{"unknown kind", http.MethodPost, "/v1/reservations", `{"tripId":` + trip + `,"kind":"avion"}`, http.StatusBadRequest, "invalid"},
		{"viaje with peso", http.MethodPost, "/v1/reservations", `{"tripId":` + trip + `,"kind":"viaje","peso":3}`, http.StatusBadRequest, "invalid"},
		{"peso out of range", http.MethodPost, "/v1/reservations", `{"tripId":` + trip + `,"kind":"encomienda","peso":1e300}`, http.StatusBadRequest, "invalid"},
		{"cargo without peso", http.MethodPost, "/v1/reservations", `{"tripId":` + trip + `,"kind":"encomienda"}`, http.StatusBadRequest, "invalid"},
		{"cargo on passenger trip", http.MethodPost, "/v1/reservations", `{"tripId":` + trip + `,"kind":"encomienda","peso":1}`, http.StatusBadRequest, "invalid"},
		{"unknown trip", http.MethodPost, "/v1/reservations", `{"tripId":999,"kind":"viaje"}`, http.StatusNotFound, "not_found"},
		{"sold out", http.MethodPost, "/v1/reservations", `{"tripId":` + trip + `,"kind":"viaje"}`, http.StatusConflict, "no_capacity"},
		{"bad payment method", http.MethodPost, "/v1/reservations/" + resID + "/confirm", `{"metodoPago":"trueque"}`, http.StatusBadRequest, "invalid"},
		{"unknown reservation", http.MethodGet, "/v1/reservations/999", "", http.StatusNotFound, "not_found"},
		{"bad id", http.MethodGet, "/v1/reservations/abc", "", http.StatusBadRequest, "invalid"},
		{"malformed body", http.MethodPost, "/v1/reservations", `{"tripId":`, http.StatusBadRequest, "invalid"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, out := a.do(tc.method, tc.path, client, tc.body)
			assert.Equal(t, tc.status, code)
			assert.Equal(t, tc.kind, out["error"])
		})
	}
}

func TestConfirmAfterHoldLapsed(t *testing.T) {
	a := newAPI(t)
	tripID, _ := a.publish(1, "")
	client := a.token(7, middleware.RoleCliente)

	code, out := a.do(http.MethodPost, "/v1/reservations", client, `{"tripId":`+strconv.FormatUint(tripID, 10)+`,"kind":"viaje"}`)
	require.Equal(t, http.StatusCreated, code)
	a.clock.Advance(16 * time.Minute)

	code, out = a.do(http.MethodPost, "/v1/reservations/"+id(out["reservationId"])+"/confirm", client, `{"metodoPago":"tarjeta"}`)
	assert.Equal(t, http.StatusGone, code)
	assert.Equal(t, "expired", out["error"])
}

func TestStaffSweepAndActiveUnit(t *testing.T) {
	a := newAPI(t)
	tripID, _ := a.publish(2, "")
	trip := strconv.FormatUint(tripID, 10)
	client := a.token(7, middleware.RoleCliente)
	staff := a.token(1, middleware.RoleStaff)

	code, out := a.do(http.MethodPost, "/v1/reservations", client, `{"tripId":`+trip+`,"kind":"viaje"}`)
	require.Equal(t, http.StatusCreated, code)
	_, out = a.do(http.MethodGet, "/v1/reservations/"+id(out["reservationId"]), client, "")
	unit := id(out["capacityUnitId"])

	code, out = a.do(http.MethodGet, "/v1/staff/units/"+unit+"/active", staff, "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, out["reservations"], 1)

	code, _ = a.do(http.MethodPost, "/v1/staff/sweep", client, "")
	assert.Equal(t, http.StatusForbidden, code)

	a.clock.Advance(time.Hour)
	code, out = a.do(http.MethodPost, "/v1/staff/sweep", staff, "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, out["expired"])

	code, out = a.do(http.MethodGet, "/v1/staff/units/"+unit+"/active", staff, "")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, out["reservations"])
}

func TestStaffPublishValidation(t *testing.T) {
	a := newAPI(t)
	staff := a.token(1, middleware.RoleStaff)

	code, out := a.do(http.MethodPost, "/v1/staff/trips", staff, `{"origin":"Lima","destination":"Ica","departsAt":"2030-01-01T00:00:00Z","seatCount":0}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid", out["error"])

	code, _ = a.do(http.MethodPost, "/v1/staff/trips", staff, `{"destination":"Ica","departsAt":"2030-01-01T00:00:00Z","seatCount":4}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = a.do(http.MethodPost, "/v1/staff/trips", staff, `{"origin":"Lima","destination":"Ica","departsAt":"2030-01-01T00:00:00Z","seatCount":4,"cargo":{"capacityKg":0}}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestUnauthenticated(t *testing.T) {
	a := newAPI(t)
	code, _ := a.do(http.MethodGet, "/v1/my-reservations", "", "")
	assert.Equal(t, http.StatusUnauthorized, code)
}

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	for _, tc := range []struct {
		db     handler.Pinger
		status int
	}{
		{nil, http.StatusOK},
		{pinger{}, http.StatusOK},
		{pinger{errors.New("connection refused")}, http.StatusServiceUnavailable},
	} {
		e := echo.New()
		router.RegisterRoutes(e, tc.db)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, tc.status, rec.Code)
	}
}
