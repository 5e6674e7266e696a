package handlers

import (
	"log/slog"

	"ariac-fulfillment/internal/event"
	"ariac-fulfillment/internal/fsm"
	"ariac-fulfillment/internal/metrics"
	"ariac-fulfillment/internal/web"
)

// RegisterEventHandlers 将所有事件处理器注册到事件总线
// 监控、UI 和审计日志各自订阅，调度器本身不感知它们
func RegisterEventHandlers(bus *event.Bus, st *web.StateTracker, logger *slog.Logger) {
	// --- 指标处理器 ---
	bus.Subscribe(event.OrderRejected, func(e event.Event) {
		metrics.OrdersRejectedTotal.Inc()
	})
	bus.Subscribe(event.PartMissing, func(e event.Event) {
		metrics.PartsMissingTotal.WithLabelValues(e.Part.String()).Inc()
	})
	bus.Subscribe(event.CommandCompleted, func(e event.Event) {
		status := "success"
		if e.Error != nil {
			status = "failed"
		}
		metrics.CommandDuration.WithLabelValues(e.Command, status).Observe(e.Duration.Seconds())
	})

	// --- Web UI 处理器 ---
	bus.Subscribe(event.OrderQueued, func(e event.Event) {
		st.AddOrder(e.Order, string(fsm.StateQueued))
	})
	bus.Subscribe(event.OrderRejected, func(e event.Event) {
		st.Reject(e.OrderID, errorText(e.Error))
	})
	bus.Subscribe(event.OrderActivated, func(e event.Event) {
		st.UpdateOrderState(e.OrderID, string(fsm.StateActive), "")
	})
	bus.Subscribe(event.OrderPreempted, func(e event.Event) {
		st.UpdateOrderState(e.OrderID, string(fsm.StateDeferred), "")
	})
	bus.Subscribe(event.OrderResumed, func(e event.Event) {
		st.UpdateOrderState(e.OrderID, string(fsm.StateActive), "")
	})
	bus.Subscribe(event.OrderDispatched, func(e event.Event) {
		st.UpdateOrderState(e.OrderID, string(fsm.StateDispatching), "")
	})
	bus.Subscribe(event.OrderSubmitted, func(e event.Event) {
		st.FinishOrder(e.OrderID, string(fsm.StateSubmitted), "")
	})
	bus.Subscribe(event.OrderSubmitFailed, func(e event.Event) {
		st.FinishOrder(e.OrderID, string(fsm.StateSubmitted), errorText(e.Error))
	})
	bus.Subscribe(event.PartMissing, func(e event.Event) {
		st.AddMissingPart(e.OrderID, *e.Part)
	})
	bus.Subscribe(event.AllSubmitted, func(e event.Event) {
		st.MarkAllSubmitted()
	})
	bus.Subscribe(event.CompetitionEnded, func(e event.Event) {
		st.MarkCompetitionEnded()
	})

	// --- 日志处理器 ---
	bus.Subscribe(event.OrderSubmitFailed, func(e event.Event) {
		logger.Error("订单提交失败", "order_id", e.OrderID, "error", e.Error)
	})
	bus.Subscribe(event.OrderSubmitted, func(e event.Event) {
		logger.Info("订单提交成功", "order_id", e.OrderID)
	})
	bus.Subscribe(event.CompetitionEnded, func(e event.Event) {
		logger.Info("竞赛已结束")
	})
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
