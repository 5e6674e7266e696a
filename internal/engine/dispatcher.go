package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ariac-fulfillment/internal/actuator"
	"ariac-fulfillment/internal/errs"
	"ariac-fulfillment/internal/event"
	"ariac-fulfillment/internal/inventory"
	"ariac-fulfillment/internal/types"
	"ariac-fulfillment/internal/util"
)

// Step 一条已发出的执行器命令
type Step struct {
	Command string
	Err     error
}

// Report 一次派发的结果：发出的命令、缺失的零件和失败的命令
type Report struct {
	OrderID  string
	Steps    []Step
	Missing  []types.Part
	Failures []error
}

// Dispatcher 把当前订单转换为有序的取放、移动命令并逐条执行
type Dispatcher struct {
	index    *inventory.Index
	arm      actuator.Actuator
	carriers *CarrierPool
	logger   *slog.Logger
	eventBus *event.Bus
}

// NewDispatcher 创建一个新的 Dispatcher 实例
func NewDispatcher(index *inventory.Index, arm actuator.Actuator, carriers *CarrierPool, logger *slog.Logger, bus *event.Bus) *Dispatcher {
	return &Dispatcher{
		index:    index,
		arm:      arm,
		carriers: carriers,
		logger:   logger.With("component", "dispatcher"),
		eventBus: bus,
	}
}

// kitItem 需要放到托盘上的一个零件
type kitItem struct {
	part     types.Part
	quadrant int
}

// Dispatch 执行订单的完整动作序列
// 缺料和命令失败只记录告警，不会中止订单；只有 ctx 被取消时返回错误
func (d *Dispatcher) Dispatch(ctx context.Context, o *types.Order) (*Report, error) {
	ctx, traceID := util.EnsureTraceID(ctx)
	logger := d.logger.With("order_id", o.ID, "kind", o.Kind.String(), "trace_id", traceID)
	logger.Info("开始执行订单", "priority", o.Priority)

	rep := &Report{OrderID: o.ID}
	var err error
	switch o.Kind {
	case types.KindKitting:
		err = d.doKitting(ctx, logger, rep, o)
	case types.KindAssembly:
		err = d.doAssembly(ctx, logger, rep, o)
	case types.KindCombined:
		err = d.doCombined(ctx, logger, rep, o)
	default:
		err = errs.InvalidPayload(o.ID, fmt.Sprintf("unknown order kind %d", o.Kind))
	}
	if err != nil {
		return rep, err
	}

	logger.Info("订单动作序列执行完毕", "steps", len(rep.Steps), "missing", len(rep.Missing), "failures", len(rep.Failures))
	return rep, nil
}

// ReleaseCarriers 订单提交后释放它占用的 AGV
func (d *Dispatcher) ReleaseCarriers(orderID string) {
	d.carriers.Release(orderID)
}

func (d *Dispatcher) doKitting(ctx context.Context, logger *slog.Logger, rep *Report, o *types.Order) error {
	task := o.Kitting
	items := make([]kitItem, 0, len(task.Parts))
	for _, kp := range task.Parts {
		items = append(items, kitItem{part: kp.Part, quadrant: kp.Quadrant})
	}
	if err := d.kitParts(ctx, logger, rep, o, task.Carrier, task.TrayID, items); err != nil {
		return err
	}

	dest, err := DestinationName(task.Destination, task.Carrier)
	if err != nil {
		d.fail(logger, rep, actuator.CmdMoveCarrier, err)
	} else if err := d.moveCarrier(ctx, logger, rep, o, task.Carrier, dest); err != nil {
		return err
	}
	return d.exec(ctx, logger, rep, o, actuator.CmdGoHome, d.arm.GoHome)
}

func (d *Dispatcher) doAssembly(ctx context.Context, logger *slog.Logger, rep *Report, o *types.Order) error {
	task := o.Assembly
	dest := types.StationName(task.Station)
	for _, carrier := range task.Carriers {
		if err := d.moveCarrier(ctx, logger, rep, o, carrier, dest); err != nil {
			return err
		}
	}
	return d.assembleParts(ctx, logger, rep, o, task.Carriers[0], task.Station, task.Parts)
}

func (d *Dispatcher) doCombined(ctx context.Context, logger *slog.Logger, rep *Report, o *types.Order) error {
	task := o.Combined
	carrier, err := DetermineCarrier(task.Station)
	if err != nil {
		return errs.InvalidPayload(o.ID, err.Error())
	}
	logger = logger.With("carrier", carrier)

	items := make([]kitItem, 0, len(task.Parts))
	for i, ap := range task.Parts {
		items = append(items, kitItem{part: ap.Part, quadrant: i%4 + 1})
	}
	if err := d.kitParts(ctx, logger, rep, o, carrier, 0, items); err != nil {
		return err
	}

	// 奇数工位在 AGV 的前装配位，偶数工位在后装配位
	side := types.DestAssemblyFront
	if task.Station%2 == 0 {
		side = types.DestAssemblyBack
	}
	dest, err := DestinationName(side, carrier)
	if err != nil {
		return errs.InvalidPayload(o.ID, err.Error())
	}
	if err := d.moveCarrier(ctx, logger, rep, o, carrier, dest); err != nil {
		return err
	}
	if err := d.exec(ctx, logger, rep, o, actuator.CmdGoHome, d.arm.GoHome); err != nil {
		return err
	}
	return d.assembleParts(ctx, logger, rep, o, carrier, task.Station, task.Parts)
}

// kitParts 逐个认领零件位置，取料并放到托盘象限上；找不到的零件跳过
func (d *Dispatcher) kitParts(ctx context.Context, logger *slog.Logger, rep *Report, o *types.Order, carrier, tray int, items []kitItem) error {
	if err := d.ensureTool(ctx, logger, rep, o, types.ToolPartGripper, KittingToolStation(carrier)); err != nil {
		return err
	}

	for _, item := range items {
		loc, err := d.index.Claim(item.part)
		if err != nil {
			if !errors.Is(err, errs.ErrPartNotFound) {
				return err
			}
			part := item.part
			logger.Warn("料仓和传送带都没有所需零件，跳过", "part", part.String(), "quadrant", item.quadrant)
			rep.Missing = append(rep.Missing, part)
			d.eventBus.Publish(event.Event{Type: event.PartMissing, OrderID: o.ID, Order: o, Part: &part})
			continue
		}

		if err := d.exec(ctx, logger, rep, o, actuator.CmdPickPart, func(ctx context.Context) error {
			return d.arm.PickPart(ctx, loc)
		}); err != nil {
			return err
		}
		target := types.PlaceTarget{
			Kind:     types.TargetTray,
			Carrier:  carrier,
			TrayID:   tray,
			Quadrant: item.quadrant,
			Part:     item.part,
		}
		if err := d.exec(ctx, logger, rep, o, actuator.CmdPlacePart, func(ctx context.Context) error {
			return d.arm.PlacePart(ctx, target)
		}); err != nil {
			return err
		}
	}
	return nil
}

// assembleParts 从 AGV 上取零件，按位姿和安装方向装入夹具
func (d *Dispatcher) assembleParts(ctx context.Context, logger *slog.Logger, rep *Report, o *types.Order, carrier, station int, parts []types.AssemblyPart) error {
	for _, ap := range parts {
		loc := types.PartLocation{Source: types.SourceCarrier, Carrier: carrier, Station: station, Part: ap.Part}
		if err := d.exec(ctx, logger, rep, o, actuator.CmdPickPart, func(ctx context.Context) error {
			return d.arm.PickPart(ctx, loc)
		}); err != nil {
			return err
		}

		pose, dir := ap.AssembledPose, ap.InstallDirection
		target := types.PlaceTarget{
			Kind:             types.TargetFixture,
			Station:          station,
			Part:             ap.Part,
			AssembledPose:    &pose,
			InstallDirection: &dir,
		}
		if err := d.exec(ctx, logger, rep, o, actuator.CmdPlacePart, func(ctx context.Context) error {
			return d.arm.PlacePart(ctx, target)
		}); err != nil {
			return err
		}
	}
	return nil
}

// ensureTool 只有当前夹爪与所需不同时才换爪
func (d *Dispatcher) ensureTool(ctx context.Context, logger *slog.Logger, rep *Report, o *types.Order, tool types.Tool, station string) error {
	current, err := d.arm.CurrentTool(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("查询当前夹爪失败，按需换爪", "error", err)
	} else if current == tool {
		return nil
	}
	return d.exec(ctx, logger, rep, o, actuator.CmdChangeTool, func(ctx context.Context) error {
		return d.arm.ChangeTool(ctx, tool, station)
	})
}

// moveCarrier 移动前先占用 AGV；被其他订单占用时跳过移动
func (d *Dispatcher) moveCarrier(ctx context.Context, logger *slog.Logger, rep *Report, o *types.Order, carrier int, dest string) error {
	if err := d.carriers.Reserve(carrier, o.ID); err != nil {
		d.fail(logger, rep, actuator.CmdMoveCarrier, err)
		return nil
	}
	return d.exec(ctx, logger, rep, o, actuator.CmdMoveCarrier, func(ctx context.Context) error {
		return d.arm.MoveCarrier(ctx, carrier, dest)
	})
}

// exec 发出一条命令并等待结果；失败只记录，乐观地继续下一步
func (d *Dispatcher) exec(ctx context.Context, logger *slog.Logger, rep *Report, o *types.Order, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	d.eventBus.Publish(event.Event{Type: event.CommandCompleted, OrderID: o.ID, Command: name, Duration: time.Since(start), Error: err})
	rep.Steps = append(rep.Steps, Step{Command: name, Err: err})

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.fail(logger, rep, name, err)
	}
	return nil
}

func (d *Dispatcher) fail(logger *slog.Logger, rep *Report, name string, err error) {
	logger.Warn("执行器命令失败，继续执行后续步骤", "command", name, "error", err)
	rep.Failures = append(rep.Failures, fmt.Errorf("%s: %w", name, err))
}
