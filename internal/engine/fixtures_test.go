package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"ariac-fulfillment/internal/actuator"
	"ariac-fulfillment/internal/event"
	"ariac-fulfillment/internal/inventory"
	"ariac-fulfillment/internal/persistence"
	"ariac-fulfillment/internal/types"

	"github.com/stretchr/testify/require"
)

var (
	redBattery  = types.Part{Type: types.PartBattery, Color: types.ColorRed}
	bluePump    = types.Part{Type: types.PartPump, Color: types.ColorBlue}
	greenSensor = types.Part{Type: types.PartSensor, Color: types.ColorGreen}
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// harness 用模拟执行器组装完整的调度链路
type harness struct {
	index      *inventory.Index
	sim        *actuator.Simulated
	bus        *event.Bus
	carriers   *CarrierPool
	dispatcher *Dispatcher
	gate       *SubmissionGate
	sched      *Scheduler
}

func newHarness(t *testing.T, wal *persistence.WAL) *harness {
	t.Helper()
	logger := testLogger()
	h := &harness{
		index:    inventory.NewIndex(),
		sim:      actuator.NewSimulated(logger, 0, 0),
		bus:      event.NewBus(),
		carriers: NewCarrierPool(),
	}
	h.dispatcher = NewDispatcher(h.index, h.sim, h.carriers, logger, h.bus)
	h.gate = NewSubmissionGate(h.sim, logger)
	h.sched = NewScheduler(h.index, h.dispatcher, h.gate, h.sim, wal, h.bus, 5*time.Millisecond, logger)
	return h
}

func (h *harness) stock(t *testing.T, bins []types.BinReport, conveyor []types.PartBatch) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.sched.Apply(ctx, types.BinInventorySnapshot{Bins: bins}))
	require.NoError(t, h.sched.Apply(ctx, types.ConveyorInventorySnapshot{Parts: conveyor}))
}

func (h *harness) announce(t *testing.T, a types.OrderAnnounced) {
	t.Helper()
	require.NoError(t, h.sched.Apply(context.Background(), a))
}

func (h *harness) phase(t *testing.T, p types.CompetitionPhase) {
	t.Helper()
	require.NoError(t, h.sched.Apply(context.Background(), types.CompetitionPhaseChanged{Phase: p}))
}

func (h *harness) tick(t *testing.T) State {
	t.Helper()
	st, err := h.sched.Tick(context.Background())
	require.NoError(t, err)
	return st
}

// submitted 按提交顺序返回订单 ID
func (h *harness) submitted() []string {
	var ids []string
	for _, c := range h.sim.Commands() {
		if c.Name == actuator.CmdSubmitOrder {
			ids = append(ids, c.Request.OrderID)
		}
	}
	return ids
}

func (h *harness) count(name string) int {
	n := 0
	for _, c := range h.sim.CommandNames() {
		if c == name {
			n++
		}
	}
	return n
}

func kitting(id string, high bool, carrier int, parts ...types.KittingPart) types.OrderAnnounced {
	return types.OrderAnnounced{
		ID:       id,
		Kind:     types.KindKitting,
		Priority: high,
		Kitting: &types.KittingTask{
			Carrier:     carrier,
			TrayID:      1,
			Destination: types.DestKitting,
			Parts:       parts,
		},
	}
}

func assemblyParts(parts ...types.Part) []types.AssemblyPart {
	out := make([]types.AssemblyPart, 0, len(parts))
	for i, p := range parts {
		out = append(out, types.AssemblyPart{
			Part:             p,
			AssembledPose:    types.Pose{Position: types.Point{X: float64(i)}, Orientation: types.Quaternion{W: 1}},
			InstallDirection: types.Vector3{Z: -1},
		})
	}
	return out
}

func assembly(id string, station int, carriers []int, parts ...types.Part) types.OrderAnnounced {
	return types.OrderAnnounced{
		ID:       id,
		Kind:     types.KindAssembly,
		Assembly: &types.AssemblyTask{Carriers: carriers, Station: station, Parts: assemblyParts(parts...)},
	}
}

func combined(id string, station int, parts ...types.Part) types.OrderAnnounced {
	return types.OrderAnnounced{
		ID:       id,
		Kind:     types.KindCombined,
		Combined: &types.CombinedTask{Station: station, Parts: assemblyParts(parts...)},
	}
}

// isSubsequence 判断 want 是否按顺序出现在 got 中
func isSubsequence(want, got []string) bool {
	i := 0
	for _, g := range got {
		if i < len(want) && g == want[i] {
			i++
		}
	}
	return i == len(want)
}
