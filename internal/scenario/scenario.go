// Package scenario 回放 YAML 描述的竞赛过程：库存快照、按时间到达的订单和阶段变化
package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"ariac-fulfillment/internal/types"
)

// Step 在 AtMs 时刻投递的一个事件，Order 和 Phase 二选一
type Step struct {
	AtMs  int                     `yaml:"at_ms"`
	Order *types.OrderAnnounced   `yaml:"order,omitempty"`
	Phase *types.CompetitionPhase `yaml:"phase,omitempty"`
}

// Scenario 一次完整的竞赛回放
type Scenario struct {
	Name     string            `yaml:"name"`
	Bins     []types.BinReport `yaml:"bins"`
	Conveyor []types.PartBatch `yaml:"conveyor"`
	Steps    []Step            `yaml:"steps"`
}

// Sink 接收回放事件的一方
type Sink interface {
	Deliver(ctx context.Context, ev types.InboundEvent) error
}

// Load 从文件读取场景
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取场景文件失败: %w", err)
	}
	return Parse(data)
}

// Parse 解析场景，并按时间排序 (同一时刻保持文件中的顺序)
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("解析场景失败: %w", err)
	}
	for i, st := range sc.Steps {
		if (st.Order == nil) == (st.Phase == nil) {
			return nil, fmt.Errorf("step %d: exactly one of order or phase is required", i)
		}
		if st.AtMs < 0 {
			return nil, fmt.Errorf("step %d: negative at_ms", i)
		}
	}
	sort.SliceStable(sc.Steps, func(i, j int) bool { return sc.Steps[i].AtMs < sc.Steps[j].AtMs })
	return &sc, nil
}

// Event 将步骤转换为调度器事件
func (st Step) Event() types.InboundEvent {
	if st.Order != nil {
		return *st.Order
	}
	return types.CompetitionPhaseChanged{Phase: *st.Phase}
}

// Play 先投递两份库存快照，再按时间投递每个步骤
// 被拒绝的事件只记录告警，ctx 取消时返回
func (sc *Scenario) Play(ctx context.Context, sink Sink, logger *slog.Logger) error {
	logger = logger.With("component", "scenario", "scenario", sc.Name)
	logger.Info("开始回放场景", "steps", len(sc.Steps))

	initial := []types.InboundEvent{
		types.BinInventorySnapshot{Bins: sc.Bins},
		types.ConveyorInventorySnapshot{Parts: sc.Conveyor},
	}
	for _, ev := range initial {
		if err := sc.deliver(ctx, sink, ev, logger); err != nil {
			return err
		}
	}

	start := time.Now()
	for _, st := range sc.Steps {
		wait := time.Until(start.Add(time.Duration(st.AtMs) * time.Millisecond))
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err := sc.deliver(ctx, sink, st.Event(), logger); err != nil {
			return err
		}
	}
	logger.Info("场景回放完毕")
	return nil
}

func (sc *Scenario) deliver(ctx context.Context, sink Sink, ev types.InboundEvent, logger *slog.Logger) error {
	if err := sink.Deliver(ctx, ev); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("场景事件被拒绝", "event", fmt.Sprintf("%T", ev), "error", err)
	}
	return nil
}
