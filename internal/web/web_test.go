package web

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ariac-fulfillment/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func kittingOrder(t *testing.T, id string) *types.Order {
	t.Helper()
	o, err := types.NewOrder(types.OrderAnnounced{
		ID:   id,
		Kind: types.KindKitting,
		Kitting: &types.KittingTask{Carrier: 1, Parts: []types.KittingPart{
			{Part: types.Part{Type: types.PartSensor, Color: types.ColorPurple}, Quadrant: 1},
		}},
	}, 1)
	require.NoError(t, err)
	return o
}

func TestStateTracker(t *testing.T) {
	st := NewStateTracker(nil)
	o := kittingOrder(t, "K1")

	st.AddOrder(o, "QUEUED")
	st.UpdateOrderState("K1", "ACTIVE", "")
	st.AddMissingPart("K1", types.Part{Type: types.PartSensor, Color: types.ColorPurple})
	st.Reject("BAD", "unknown order kind")
	st.MarkAllSubmitted()

	snap := st.GetStateSnapshot()
	require.Contains(t, snap.Orders, "K1")
	assert.Equal(t, "ACTIVE", snap.Orders["K1"].Status)
	assert.Equal(t, []string{"purple sensor"}, snap.Orders["K1"].Parts)
	assert.Equal(t, []string{"purple sensor"}, snap.Orders["K1"].Missing)
	assert.Equal(t, "unknown order kind", snap.Rejected["BAD"])
	assert.True(t, snap.AllSubmitted)
	assert.False(t, snap.CompetitionEnded)

	// 快照与内部状态互不影响
	snap.Orders["K1"] = OrderState{ID: "K1", Status: "MUTATED"}
	assert.Equal(t, "ACTIVE", st.GetStateSnapshot().Orders["K1"].Status)
}

func TestStateTracker_OutOfOrderUpdates(t *testing.T) {
	st := NewStateTracker(nil)
	o := kittingOrder(t, "K2")

	st.AddMissingPart("K2", types.Part{Type: types.PartSensor, Color: types.ColorPurple})
	st.FinishOrder("K2", "SUBMITTED", "rejected")
	st.UpdateOrderState("K2", "DISPATCHING", "")
	st.AddOrder(o, "QUEUED")

	k2 := st.GetStateSnapshot().Orders["K2"]
	assert.Equal(t, "SUBMITTED", k2.Status)
	assert.Equal(t, "rejected", k2.Message)
	assert.Equal(t, "kitting", k2.Kind)
	assert.Equal(t, []string{"purple sensor"}, k2.Missing)
	assert.Equal(t, []string{"purple sensor"}, k2.Parts)
}

func TestHub_BroadcastsToClients(t *testing.T) {
	hub := NewHub(testLogger())
	done := make(chan struct{})
	defer close(done)
	go hub.Run(done)

	tracker := NewStateTracker(hub)
	srv := httptest.NewServer(hub.ServeWs(func() interface{} { return tracker.GetStateSnapshot() }))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	var initial GlobalState
	require.NoError(t, conn.ReadJSON(&initial))
	assert.Empty(t, initial.Orders)

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)
	tracker.AddOrder(kittingOrder(t, "K1"), "QUEUED")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var state GlobalState
	require.NoError(t, json.Unmarshal(msg, &state))
	assert.Equal(t, "QUEUED", state.Orders["K1"].Status)
}

func TestHub_BroadcastDoesNotBlockWithoutRun(t *testing.T) {
	hub := NewHub(testLogger())
	for i := 0; i < broadcastBuffer*2; i++ {
		hub.BroadcastState(map[string]int{"i": i})
	}
}

func TestHub_UnregistersClosedClients(t *testing.T) {
	hub := NewHub(testLogger())
	done := make(chan struct{})
	go hub.Run(done)

	srv := httptest.NewServer(hub.ServeWs(nil))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 5*time.Millisecond)

	close(done)
	<-hub.stopped
}
