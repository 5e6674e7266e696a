package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"ariac-fulfillment/internal/actuator"
	"ariac-fulfillment/internal/types"
)

// SubmissionGate 决定何时结束竞赛，并保证 EndCompetition 只成功调用一次
type SubmissionGate struct {
	mu     sync.Mutex // 串行化 Trigger，Fired 不获取
	comp   actuator.Competition
	fired  atomic.Bool
	logger *slog.Logger
}

func NewSubmissionGate(comp actuator.Competition, logger *slog.Logger) *SubmissionGate {
	return &SubmissionGate{comp: comp, logger: logger.With("component", "gate")}
}

// ShouldEnd 仅当订单已全部公布且三个队列都为空时返回 true
func (g *SubmissionGate) ShouldEnd(phase types.CompetitionPhase, queuesEmpty bool) bool {
	return phase == types.PhaseOrderAnnouncementsDone && queuesEmpty
}

// Trigger 请求结束竞赛；已成功触发过时直接返回 true
// 调用失败不标记为已触发，下一个 tick 会重试
func (g *SubmissionGate) Trigger(ctx context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fired.Load() {
		return true, nil
	}
	if err := g.comp.EndCompetition(ctx); err != nil {
		g.logger.Error("结束竞赛失败", "error", err)
		return false, err
	}
	g.fired.Store(true)
	g.logger.Info("所有订单已提交，竞赛结束")
	return true, nil
}

// Fired 是否已成功结束竞赛；EndCompetition 调用进行中也不会阻塞
func (g *SubmissionGate) Fired() bool {
	return g.fired.Load()
}
