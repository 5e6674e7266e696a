package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 定义 Prometheus 监控指标
var (
	// OrdersInQueue 仪表盘：各队列 (pending/active/deferred) 中的订单数量
	OrdersInQueue = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scheduler_orders_in_queue",
		Help: "The number of orders currently held in each scheduler queue",
	}, []string{"queue"})

	// OrdersSubmittedTotal 计数器：提交的订单总数
	// 按订单类型和结果 (accepted/rejected/failed) 分类
	OrdersSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_orders_submitted_total",
		Help: "The total number of submitted orders",
	}, []string{"kind", "result"})

	// OrdersRejectedTotal 计数器：未通过准入校验的订单
	OrdersRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_orders_rejected_total",
		Help: "The total number of announced orders refused before queueing",
	})

	// PreemptionsTotal 计数器：高优先级订单抢占次数
	PreemptionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_preemptions_total",
		Help: "The total number of times a normal order was deferred by a high priority order",
	})

	// PartsMissingTotal 计数器：料仓和传送带都找不到的零件，按零件分类
	PartsMissingTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatcher_parts_missing_total",
		Help: "The total number of required parts that could not be located",
	}, []string{"part"})

	// CommandDuration 直方图：执行器命令耗时分布
	CommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "actuator_command_duration_seconds",
		Help:    "Time spent waiting for each actuator command",
		Buckets: prometheus.DefBuckets,
	}, []string{"command", "status"})
)

// 队列标签
const (
	QueuePending  = "pending"
	QueueActive   = "active"
	QueueDeferred = "deferred"
)
