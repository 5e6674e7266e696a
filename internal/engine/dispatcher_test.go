package engine

import (
	"context"
	"sync"
	"testing"

	"ariac-fulfillment/internal/actuator"
	"ariac-fulfillment/internal/errs"
	"ariac-fulfillment/internal/event"
	"ariac-fulfillment/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrder(t *testing.T, a types.OrderAnnounced) *types.Order {
	t.Helper()
	o, err := types.NewOrder(a, 1)
	require.NoError(t, err)
	return o
}

func TestDispatcher_KittingEndToEnd(t *testing.T) {
	h := newHarness(t, nil)
	h.stock(t, []types.BinReport{{BinNumber: 1, Parts: []types.PartBatch{{Part: redBattery, Quantity: 1}}}}, nil)

	o := newOrder(t, kitting("K1", false, 1, types.KittingPart{Part: redBattery, Quadrant: 1}))
	rep, err := h.dispatcher.Dispatch(context.Background(), o)
	require.NoError(t, err)
	assert.Empty(t, rep.Missing)
	assert.Empty(t, rep.Failures)

	cmds := h.sim.Commands()
	require.Equal(t, []string{
		actuator.CmdChangeTool, actuator.CmdPickPart, actuator.CmdPlacePart, actuator.CmdMoveCarrier, actuator.CmdGoHome,
	}, h.sim.CommandNames())

	assert.Equal(t, types.ToolPartGripper, cmds[0].Request.Tool)
	assert.Equal(t, "kts1", cmds[0].Request.Station)

	loc := cmds[1].Request.Location
	require.NotNil(t, loc)
	assert.Equal(t, types.SourceBin, loc.Source)
	assert.Equal(t, 0, loc.Index)

	target := cmds[2].Request.Target
	require.NotNil(t, target)
	assert.Equal(t, types.TargetTray, target.Kind)
	assert.Equal(t, 1, target.Carrier)
	assert.Equal(t, 1, target.TrayID)
	assert.Equal(t, 1, target.Quadrant)

	assert.Equal(t, 1, cmds[3].Request.Carrier)
	assert.Equal(t, "Kitting", cmds[3].Request.Destination)

	// 槽位已被消耗
	_, found := h.index.FindInBins(redBattery.Signature())
	assert.False(t, found)
}

func TestDispatcher_SkipsToolChangeWhenMounted(t *testing.T) {
	h := newHarness(t, nil)
	h.stock(t, nil, []types.PartBatch{{Part: bluePump, Quantity: 1}})
	h.sim.MountTool(types.ToolPartGripper)

	o := newOrder(t, kitting("K1", false, 3, types.KittingPart{Part: bluePump, Quadrant: 2}))
	_, err := h.dispatcher.Dispatch(context.Background(), o)
	require.NoError(t, err)

	assert.Equal(t, []string{actuator.CmdPickPart, actuator.CmdPlacePart, actuator.CmdMoveCarrier, actuator.CmdGoHome}, h.sim.CommandNames())
	assert.Equal(t, types.SourceConveyor, h.sim.Commands()[0].Request.Location.Source)
}

func TestDispatcher_MissingPartIsSkipped(t *testing.T) {
	h := newHarness(t, nil)
	h.stock(t, nil, nil)

	var mu sync.Mutex
	var missing []types.Part
	h.bus.Subscribe(event.PartMissing, func(e event.Event) {
		mu.Lock()
		defer mu.Unlock()
		missing = append(missing, *e.Part)
	})

	o := newOrder(t, kitting("K1", false, 1, types.KittingPart{Part: greenSensor, Quadrant: 3}))
	rep, err := h.dispatcher.Dispatch(context.Background(), o)
	require.NoError(t, err)
	h.bus.Wait()

	assert.Equal(t, []types.Part{greenSensor}, rep.Missing)
	assert.Equal(t, []types.Part{greenSensor}, missing)
	assert.Equal(t, []string{actuator.CmdChangeTool, actuator.CmdMoveCarrier, actuator.CmdGoHome}, h.sim.CommandNames())
}

func TestDispatcher_Assembly(t *testing.T) {
	h := newHarness(t, nil)
	o := newOrder(t, assembly("A1", 2, []int{1, 2}, redBattery, bluePump))

	rep, err := h.dispatcher.Dispatch(context.Background(), o)
	require.NoError(t, err)
	assert.Empty(t, rep.Failures)

	cmds := h.sim.Commands()
	require.Equal(t, []string{
		actuator.CmdMoveCarrier, actuator.CmdMoveCarrier,
		actuator.CmdPickPart, actuator.CmdPlacePart,
		actuator.CmdPickPart, actuator.CmdPlacePart,
	}, h.sim.CommandNames())
	assert.Equal(t, "Station2", cmds[0].Request.Destination)
	assert.Equal(t, 2, cmds[1].Request.Carrier)

	pick := cmds[2].Request.Location
	assert.Equal(t, types.SourceCarrier, pick.Source)
	assert.Equal(t, 1, pick.Carrier)

	place := cmds[5].Request.Target
	assert.Equal(t, types.TargetFixture, place.Kind)
	assert.Equal(t, 2, place.Station)
	assert.Equal(t, bluePump, place.Part)
	require.NotNil(t, place.AssembledPose)
	assert.Equal(t, 1.0, place.AssembledPose.Position.X)
	assert.Equal(t, -1.0, place.InstallDirection.Z)
}

func TestDispatcher_Combined(t *testing.T) {
	h := newHarness(t, nil)
	h.stock(t, []types.BinReport{{BinNumber: 5, Parts: []types.PartBatch{
		{Part: redBattery, Quantity: 1}, {Part: bluePump, Quantity: 1},
	}}}, nil)

	o := newOrder(t, combined("C1", 3, redBattery, bluePump))
	rep, err := h.dispatcher.Dispatch(context.Background(), o)
	require.NoError(t, err)
	assert.Empty(t, rep.Missing)

	require.Equal(t, []string{
		actuator.CmdChangeTool,
		actuator.CmdPickPart, actuator.CmdPlacePart,
		actuator.CmdPickPart, actuator.CmdPlacePart,
		actuator.CmdMoveCarrier, actuator.CmdGoHome,
		actuator.CmdPickPart, actuator.CmdPlacePart,
		actuator.CmdPickPart, actuator.CmdPlacePart,
	}, h.sim.CommandNames())

	cmds := h.sim.Commands()
	assert.Equal(t, "kts2", cmds[0].Request.Station)
	assert.Equal(t, 3, cmds[2].Request.Target.Carrier)
	assert.Equal(t, 1, cmds[2].Request.Target.Quadrant)
	assert.Equal(t, 2, cmds[4].Request.Target.Quadrant)
	assert.Equal(t, 3, cmds[5].Request.Carrier)
	assert.Equal(t, "Station3", cmds[5].Request.Destination)
	assert.Equal(t, 3, cmds[7].Request.Location.Carrier)
	assert.Equal(t, 3, cmds[8].Request.Target.Station)
}

func TestDispatcher_CombinedEvenStationUsesBackSide(t *testing.T) {
	h := newHarness(t, nil)
	h.stock(t, nil, nil)

	o := newOrder(t, combined("C2", 2))
	_, err := h.dispatcher.Dispatch(context.Background(), o)
	require.NoError(t, err)

	for _, c := range h.sim.Commands() {
		if c.Name == actuator.CmdMoveCarrier {
			assert.Equal(t, 2, c.Request.Carrier)
			assert.Equal(t, "Station2", c.Request.Destination)
		}
	}
}

func TestDispatcher_BusyCarrierIsNotMoved(t *testing.T) {
	h := newHarness(t, nil)
	h.stock(t, nil, nil)
	require.NoError(t, h.carriers.Reserve(1, "OTHER"))

	o := newOrder(t, kitting("K1", false, 1))
	rep, err := h.dispatcher.Dispatch(context.Background(), o)
	require.NoError(t, err)

	require.Len(t, rep.Failures, 1)
	assert.ErrorIs(t, rep.Failures[0], errs.ErrCarrierBusy)
	assert.Zero(t, h.count(actuator.CmdMoveCarrier))

	h.carriers.Release("OTHER")
	h.dispatcher.ReleaseCarriers("K1")
	assert.True(t, h.carriers.Available(1))
}

func TestDispatcher_FailuresAreOptimistic(t *testing.T) {
	logger := testLogger()
	h := newHarness(t, nil)
	h.stock(t, []types.BinReport{{BinNumber: 2, Parts: []types.PartBatch{{Part: redBattery, Quantity: 1}}}}, nil)
	sim := actuator.NewSimulated(logger, 0, 1)
	d := NewDispatcher(h.index, sim, NewCarrierPool(), logger, h.bus)

	o := newOrder(t, kitting("K1", false, 2, types.KittingPart{Part: redBattery, Quadrant: 4}))
	rep, err := d.Dispatch(context.Background(), o)
	require.NoError(t, err)

	// 每一步都失败，但仍然全部发出
	assert.Equal(t, []string{
		actuator.CmdChangeTool, actuator.CmdPickPart, actuator.CmdPlacePart, actuator.CmdMoveCarrier, actuator.CmdGoHome,
	}, sim.CommandNames())
	assert.Len(t, rep.Failures, 5)
	for _, f := range rep.Failures {
		assert.ErrorIs(t, f, errs.ErrServiceCallFailed)
	}
}

func TestDispatcher_ContextCancelled(t *testing.T) {
	h := newHarness(t, nil)
	h.stock(t, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := newOrder(t, kitting("K1", false, 1))
	_, err := h.dispatcher.Dispatch(ctx, o)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.sim.CommandNames())
}
