package queue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/transport-reservation/internal/model"
)

func TestNewReservationEvent(t *testing.T) {
	batch := uint64(4)
	pm := "tarjeta"
	at := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	ev := NewReservationEvent(model.Reservation{
		ID: 9, Reference: "r-9", ClientID: 2, Kind: model.KindEncomienda, BatchID: &batch,
		UnitNumber: 1, WeightGrams: 2500, State: model.StateConfirmed, CostCents: 300,
		PaymentMethod: &pm, UpdatedAt: at,
	})
	assert.Equal(t, EventConfirmed, ev.Type)
	assert.Equal(t, uint64(4), ev.BatchID)
	assert.Zero(t, ev.TripID)
	assert.Equal(t, "tarjeta", ev.PaymentMethod)
	assert.Equal(t, "2025-03-01T08:00:00Z", ev.OccurredAt)
}

func TestHandleMessageAppendsAuditLine(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	w := &auditWriter{dir: dir}

	for _, ev := range []ReservationEvent{
		{Type: EventPending, ReservationID: 1, Reference: "a", ClientID: 5, Kind: "viaje", TripID: 3, UnitNumber: 12, CostCents: 50, OccurredAt: "2025-03-01T08:00:00Z"},
		{Type: EventConfirmed, ReservationID: 1, Reference: "a", ClientID: 5, Kind: "viaje", TripID: 3, UnitNumber: 12, CostCents: 50, PaymentMethod: "efectivo", OccurredAt: "2025-03-01T08:05:00Z"},
	} {
		body, err := json.Marshal(ev)
		require.NoError(t, err)
		require.NoError(t, w.handleMessage(body))
	}

	data, err := os.ReadFile(filepath.Join(dir, AuditLogFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "reservation.pending | reservation_id=1")
	assert.Contains(t, lines[0], "trip=3 | seat=12")
	assert.True(t, strings.HasSuffix(lines[1], "metodo_pago=efectivo"))
}

func TestHandleMessageRejectsGarbage(t *testing.T) {
	w := &auditWriter{dir: t.TempDir()}
	assert.Error(t, w.handleMessage([]byte("not json")))
	assert.Error(t, w.handleMessage([]byte(`{"type":""}`)))
}

func TestFormatAuditLineCargo(t *testing.T) {
	line := FormatAuditLine(ReservationEvent{Type: EventExpired, ReservationID: 2, Kind: "encomienda", BatchID: 4, WeightGrams: 7500})
	assert.Contains(t, line, "batch=4 | weight=7500g")
	assert.NotContains(t, line, "metodo_pago")
}
