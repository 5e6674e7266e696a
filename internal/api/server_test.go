package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ariac-fulfillment/internal/engine"
	"ariac-fulfillment/internal/errs"
	"ariac-fulfillment/internal/types"
	"ariac-fulfillment/internal/web"
)

type fakeIngress struct {
	mu     sync.Mutex
	events []types.InboundEvent
	err    error
}

func (f *fakeIngress) Deliver(ctx context.Context, ev types.InboundEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeIngress) Snapshot() engine.Status {
	return engine.Status{State: engine.StateDraining, Pending: []string{"K2"}, Active: "K1"}
}

type fakeInventory struct{}

func (fakeInventory) Bins() []types.PartSignature {
	return []types.PartSignature{types.Part{Type: types.PartPump, Color: types.ColorBlue}.Signature(), types.EmptySignature}
}

func (fakeInventory) Conveyor() []types.PartSignature { return nil }

func newTestServer(ingress *fakeIngress) *httptest.Server {
	s := NewServer(ingress, fakeInventory{}, web.NewStateTracker(nil), nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return httptest.NewServer(s.Handler())
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestServer_PostOrder(t *testing.T) {
	ingress := &fakeIngress{}
	srv := newTestServer(ingress)
	defer srv.Close()

	resp := post(t, srv.URL+"/api/orders", `{
		"id": "K1", "type": "kitting", "priority": true,
		"kitting_task": {"agv_number": 2, "tray_id": 3, "destination": "warehouse",
			"parts": [{"part": {"type": "battery", "color": "red"}, "quadrant": 1}]}
	}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Len(t, ingress.events, 1)
	a, ok := ingress.events[0].(types.OrderAnnounced)
	require.True(t, ok)
	assert.Equal(t, "K1", a.ID)
	assert.True(t, a.Priority)
	assert.Equal(t, types.KindKitting, a.Kind)
	require.NotNil(t, a.Kitting)
	assert.Equal(t, 2, a.Kitting.Carrier)
	assert.Equal(t, types.DestWarehouse, a.Kitting.Destination)
	assert.Equal(t, types.PartBattery, a.Kitting.Parts[0].Part.Type)
}

func TestServer_OrderErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"malformed json", `{"id":`, nil, http.StatusBadRequest},
		{"unknown kind", `{"id":"X","type":"painting"}`, nil, http.StatusBadRequest},
		{"invalid payload", `{"id":"X","type":"kitting"}`, errs.InvalidPayload("X", "missing task"), http.StatusBadRequest},
		{"duplicate", `{"id":"X","type":"kitting"}`, fmt.Errorf("order X: %w", errs.ErrDuplicateOrder), http.StatusConflict},
		{"ended", `{"id":"X","type":"kitting"}`, fmt.Errorf("order X: %w", errs.ErrCompetitionEnded), http.StatusConflict},
		{"shutting down", `{"id":"X","type":"kitting"}`, context.Canceled, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(&fakeIngress{err: tt.err})
			defer srv.Close()
			assert.Equal(t, tt.status, post(t, srv.URL+"/api/orders", tt.body).StatusCode)
		})
	}
}

func TestServer_InventoryAndPhase(t *testing.T) {
	ingress := &fakeIngress{}
	srv := newTestServer(ingress)
	defer srv.Close()

	assert.Equal(t, http.StatusAccepted, post(t, srv.URL+"/api/inventory/bins",
		`{"bins":[{"bin_number":1,"parts":[{"part":{"type":"pump","color":"blue"},"quantity":2}]}]}`).StatusCode)
	assert.Equal(t, http.StatusAccepted, post(t, srv.URL+"/api/inventory/conveyor",
		`{"parts":[{"part":{"type":12,"color":4},"quantity":1}]}`).StatusCode)
	assert.Equal(t, http.StatusAccepted, post(t, srv.URL+"/api/competition/state",
		`{"competition_state":"order_announcements_done"}`).StatusCode)

	require.Len(t, ingress.events, 3)
	bins := ingress.events[0].(types.BinInventorySnapshot)
	assert.Equal(t, 2, bins.Bins[0].Parts[0].Quantity)
	conveyor := ingress.events[1].(types.ConveyorInventorySnapshot)
	assert.Equal(t, types.PartSensor, conveyor.Parts[0].Part.Type)
	assert.Equal(t, types.ColorPurple, conveyor.Parts[0].Part.Color)
	assert.Equal(t, types.PhaseOrderAnnouncementsDone, ingress.events[2].(types.CompetitionPhaseChanged).Phase)

	resp, err := http.Get(srv.URL + "/api/inventory/bins")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_State(t *testing.T) {
	srv := newTestServer(&fakeIngress{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view struct {
		Scheduler struct {
			State   string   `json:"state"`
			Active  string   `json:"active"`
			Pending []string `json:"pending"`
		} `json:"scheduler"`
		Bins []string `json:"bins"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, "draining", view.Scheduler.State)
	assert.Equal(t, "K1", view.Scheduler.Active)
	assert.Equal(t, []string{"K2"}, view.Scheduler.Pending)
	assert.Equal(t, []string{"blue pump", "empty"}, view.Bins)
}

func TestServer_Metrics(t *testing.T) {
	srv := newTestServer(&fakeIngress{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
