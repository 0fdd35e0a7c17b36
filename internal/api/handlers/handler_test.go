package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/langchou/ovmsgazer/internal/models"
	"github.com/langchou/ovmsgazer/internal/repository"
)

type stubState struct {
	snap  *models.Telemetry
	mode  string
	since time.Time
}

func (s *stubState) CurrentState() *models.Telemetry { return s.snap }
func (s *stubState) Mode() string                    { return s.mode }
func (s *stubState) ModeSince() time.Time            { return s.since }

type stubTelemetry struct {
	snap *models.Telemetry
	err  error
}

func (s *stubTelemetry) LatestByVehicle(context.Context, string) (*models.Telemetry, error) {
	return s.snap, s.err
}

type stubDrives struct {
	drives     map[int64]*models.Drive
	listErr    error
	lastLimit  int
	lastOffset int
}

func (s *stubDrives) GetByID(_ context.Context, id int64) (*models.Drive, error) {
	d, ok := s.drives[id]
	if !ok {
		return nil, fmt.Errorf("get drive by id: %w", repository.ErrNotFound)
	}
	return d, nil
}

func (s *stubDrives) ListByVehicle(_ context.Context, _ string, limit, offset int) ([]*models.Drive, error) {
	s.lastLimit, s.lastOffset = limit, offset
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []*models.Drive
	for _, d := range s.drives {
		out = append(out, d)
	}
	return out, nil
}

func (s *stubDrives) CountByVehicle(context.Context, string) (int64, error) {
	return int64(len(s.drives)), nil
}

type stubCharges struct {
	charges map[int64]*models.Charge
	getErr  error
}

func (s *stubCharges) GetByID(_ context.Context, id int64) (*models.Charge, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	c, ok := s.charges[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

func (s *stubCharges) ListByVehicle(context.Context, string, int, int) ([]*models.Charge, error) {
	var out []*models.Charge
	for _, c := range s.charges {
		out = append(out, c)
	}
	return out, nil
}

func (s *stubCharges) CountByVehicle(context.Context, string) (int64, error) {
	return int64(len(s.charges)), nil
}

type stubHub struct {
	served chan *websocket.Conn
}

func (s *stubHub) Serve(conn *websocket.Conn) { s.served <- conn }
func (s *stubHub) ClientCount() int           { return 3 }

type fixture struct {
	router    *gin.Engine
	state     *stubState
	telemetry *stubTelemetry
	drives    *stubDrives
	charges   *stubCharges
	hub       *stubHub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	soc := 76.5
	f := &fixture{
		state:     &stubState{mode: "parked", since: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)},
		telemetry: &stubTelemetry{err: fmt.Errorf("get latest telemetry: %w", repository.ErrNotFound)},
		drives: &stubDrives{drives: map[int64]*models.Drive{
			7: {ID: 7, VehicleID: "CAR1", DistanceKm: 12.5, Path: []models.PathPoint{{Latitude: 52.1, Longitude: 4.3}}},
		}},
		charges: &stubCharges{charges: map[int64]*models.Charge{
			3: {ID: 3, VehicleID: "CAR1", AddedKWh: 3.79, EndSOC: &soc, ChartData: []models.ChargePoint{}},
		}},
		hub: &stubHub{served: make(chan *websocket.Conn, 1)},
	}

	h := NewHandler(zaptest.NewLogger(t), "CAR1", f.state, f.telemetry, f.drives, f.charges, f.hub)
	f.router = gin.New()
	h.RegisterRoutes(f.router)
	return f
}

func (f *fixture) get(t *testing.T, path string) (int, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	f.router.ServeHTTP(w, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestGetState(t *testing.T) {
	f := newFixture(t)

	code, body := f.get(t, "/api/state")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "parked", body["mode"])

	soc := 80.0
	f.state.snap = &models.Telemetry{VehicleID: "CAR1", Mode: "charging", VehicleData: models.VehicleData{SOC: &soc}}
	code, body = f.get(t, "/api/state")
	require.Equal(t, http.StatusOK, code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "charging", data["mode"])
	assert.Equal(t, 80.0, data["soc"])
}

func TestGetLatestTelemetry(t *testing.T) {
	f := newFixture(t)

	code, _ := f.get(t, "/api/telemetry/latest")
	assert.Equal(t, http.StatusNotFound, code)

	f.telemetry.err = errors.New("connection refused")
	code, body := f.get(t, "/api/telemetry/latest")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Failed to load Telemetry", body["error"])

	f.telemetry.err = nil
	f.telemetry.snap = &models.Telemetry{ID: 9, VehicleID: "CAR1", RecordedAt: time.Now()}
	code, body = f.get(t, "/api/telemetry/latest")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 9.0, body["data"].(map[string]any)["id"])
}

func TestListDrivesPagination(t *testing.T) {
	f := newFixture(t)

	code, body := f.get(t, "/api/drives?page=3&per_page=10")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 10, f.drives.lastLimit)
	assert.Equal(t, 20, f.drives.lastOffset)
	assert.Len(t, body["data"], 1)
	p := body["pagination"].(map[string]any)
	assert.Equal(t, 3.0, p["page"])
	assert.Equal(t, 1.0, p["total"])

	f.get(t, "/api/drives?page=-1&per_page=1000")
	assert.Equal(t, defaultPerPage, f.drives.lastLimit)
	assert.Equal(t, 0, f.drives.lastOffset)
}

func TestListDrivesError(t *testing.T) {
	f := newFixture(t)
	f.drives.listErr = errors.New("timeout")

	code, body := f.get(t, "/api/drives")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Failed to list drives", body["error"])
}

func TestGetDrive(t *testing.T) {
	f := newFixture(t)

	code, body := f.get(t, "/api/drives/7")
	require.Equal(t, http.StatusOK, code)
	data := body["data"].(map[string]any)
	assert.Equal(t, 12.5, data["distance_km"])
	assert.Len(t, data["path"], 1)

	code, body = f.get(t, "/api/drives/8")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Drive not found", body["error"])

	code, _ = f.get(t, "/api/drives/abc")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCharges(t *testing.T) {
	f := newFixture(t)

	code, body := f.get(t, "/api/charges")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["data"], 1)

	code, body = f.get(t, "/api/charges/3")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 3.79, body["data"].(map[string]any)["added_kwh"])

	code, _ = f.get(t, "/api/charges/0")
	assert.Equal(t, http.StatusBadRequest, code)

	f.charges.getErr = errors.New("boom")
	code, _ = f.get(t, "/api/charges/3")
	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t)

	code, body := f.get(t, "/health")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "parked", body["mode"])
	assert.Equal(t, "2026-03-01T08:00:00Z", body["mode_since"])
	assert.Equal(t, 3.0, body["ws_clients"])
}

func TestWebSocketUpgrade(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	url := "ws" + srv.URL[len("http"):] + "/ws"
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()

	select {
	case conn := <-f.hub.served:
		conn.Close()
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not receive connection")
	}
}
