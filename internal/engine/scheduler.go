package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ariac-fulfillment/internal/actuator"
	"ariac-fulfillment/internal/errs"
	"ariac-fulfillment/internal/event"
	"ariac-fulfillment/internal/fsm"
	"ariac-fulfillment/internal/inventory"
	"ariac-fulfillment/internal/metrics"
	"ariac-fulfillment/internal/persistence"
	"ariac-fulfillment/internal/types"
	"ariac-fulfillment/internal/util"
)

// State 调度器的运行状态
type State string

const (
	StateIdle              State = "idle"               // 还没有任何订单
	StateAwaitingInventory State = "awaiting_inventory" // 有订单，但库存快照尚未到齐
	StateDraining          State = "draining"           // 正在处理队列
	StateAwaitingOrders    State = "awaiting_orders"    // 队列已空，可能还有新订单
	StateComplete          State = "complete"           // 竞赛已结束
)

const inboxSize = 64

// Admission 订单准入检查，拒绝的订单不会进入 pending 队列
type Admission interface {
	Admit(o *types.Order) error
}

// Status 调度器状态的一致快照，供 API 和前端展示
type Status struct {
	State            State                  `json:"state"`
	Phase            types.CompetitionPhase `json:"phase"`
	Pending          []string               `json:"pending"`
	Active           string                 `json:"active,omitempty"`
	Deferred         []string               `json:"deferred"`
	Submitted        []string               `json:"submitted"`
	InventoryReady   bool                   `json:"inventory_ready"`
	AllSubmitted     bool                   `json:"all_submitted"`
	CompetitionEnded bool                   `json:"competition_ended"`
}

// Scheduler 按优先级规则处理订单：pending、active、deferred 三个队列，
// 每次 Tick 只做一次状态转移。所有队列变更只发生在调度 goroutine 上
type Scheduler struct {
	mu        sync.Mutex
	pending   *OrderStore
	active    *types.Order
	deferred  []*types.Order
	submitted []string
	seen      map[string]bool
	seq       uint64

	state        State
	phase        types.CompetitionPhase
	started      bool // 已请求开始竞赛
	announced    bool // 收到过至少一个订单
	allSubmitted bool // 本轮清空已上报

	index      *inventory.Index
	dispatcher *Dispatcher
	gate       *SubmissionGate
	comp       actuator.Competition
	admission  Admission
	wal        *persistence.WAL
	eventBus   *event.Bus

	inbox        chan types.InboundEvent
	tickInterval time.Duration
	logger       *slog.Logger
}

// NewScheduler 创建一个新的 Scheduler 实例，wal 可以为 nil
func NewScheduler(index *inventory.Index, dispatcher *Dispatcher, gate *SubmissionGate, comp actuator.Competition,
	wal *persistence.WAL, bus *event.Bus, tickInterval time.Duration, logger *slog.Logger) *Scheduler {
	if tickInterval <= 0 {
		tickInterval = 100 * time.Millisecond
	}
	return &Scheduler{
		pending:      NewOrderStore(),
		seen:         make(map[string]bool),
		state:        StateIdle,
		index:        index,
		dispatcher:   dispatcher,
		gate:         gate,
		comp:         comp,
		wal:          wal,
		eventBus:     bus,
		inbox:        make(chan types.InboundEvent, inboxSize),
		tickInterval: tickInterval,
		logger:       logger.With("component", "scheduler"),
	}
}

// SetAdmission 设置订单准入检查
func (s *Scheduler) SetAdmission(a Admission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admission = a
}

// Deliver 将外部事件投递到调度器收件箱，可以在任意 goroutine 调用
// 订单会先做一次无状态校验和重复检查，明显无效的订单直接返回错误
func (s *Scheduler) Deliver(ctx context.Context, ev types.InboundEvent) error {
	if a, ok := ev.(types.OrderAnnounced); ok {
		if err := s.precheck(a); err != nil {
			return err
		}
	}
	select {
	case s.inbox <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) precheck(a types.OrderAnnounced) error {
	o, err := types.NewOrder(a, 0)
	if err != nil {
		return s.reject(a.ID, err)
	}

	s.mu.Lock()
	admission := s.admission
	ended := s.state == StateComplete
	dup := s.seen[a.ID]
	s.mu.Unlock()

	if ended {
		return s.reject(a.ID, fmt.Errorf("order %s: %w", a.ID, errs.ErrCompetitionEnded))
	}
	if dup {
		return s.reject(a.ID, fmt.Errorf("order %s: %w", a.ID, errs.ErrDuplicateOrder))
	}
	if admission != nil {
		if err := admission.Admit(o); err != nil {
			return s.reject(a.ID, err)
		}
	}
	return nil
}

// Apply 应用一个外部事件，只能在调度 goroutine 上调用 (Run 内部或测试中)
func (s *Scheduler) Apply(ctx context.Context, ev types.InboundEvent) error {
	switch e := ev.(type) {
	case types.OrderAnnounced:
		return s.announce(e, 0, true)
	case types.BinInventorySnapshot:
		report, err := s.index.PopulateBins(e)
		if err != nil {
			s.logger.Warn("料仓库存快照被忽略", "error", err)
			return err
		}
		if len(report.InvalidBins) > 0 || report.Overflow > 0 {
			s.logger.Warn("料仓库存快照有无效数据", "invalid_bins", report.InvalidBins, "overflow", report.Overflow)
		}
		s.logger.Info("料仓库存已加载", "placed", report.Placed)
		return nil
	case types.ConveyorInventorySnapshot:
		n, err := s.index.PopulateConveyor(e)
		if err != nil {
			s.logger.Warn("传送带库存快照被忽略", "error", err)
			return err
		}
		s.logger.Info("传送带库存已加载", "parts", n)
		return nil
	case types.CompetitionPhaseChanged:
		return s.setPhase(ctx, e.Phase)
	default:
		return fmt.Errorf("unsupported inbound event %T", ev)
	}
}

// announce 校验并按插入规则放入 pending 队列
// seq 为 0 时分配下一个到达序号；journal 为 false 时不重复写 WAL
func (s *Scheduler) announce(a types.OrderAnnounced, seq uint64, journal bool) error {
	s.mu.Lock()
	if s.state == StateComplete {
		s.mu.Unlock()
		return s.reject(a.ID, fmt.Errorf("order %s: %w", a.ID, errs.ErrCompetitionEnded))
	}
	if s.seen[a.ID] {
		s.mu.Unlock()
		return s.reject(a.ID, fmt.Errorf("order %s: %w", a.ID, errs.ErrDuplicateOrder))
	}
	if seq == 0 {
		seq = s.seq + 1
	}
	o, err := types.NewOrder(a, seq)
	if err != nil {
		s.mu.Unlock()
		return s.reject(a.ID, err)
	}
	if s.admission != nil {
		if err := s.admission.Admit(o); err != nil {
			s.mu.Unlock()
			return s.reject(a.ID, err)
		}
	}

	if journal && s.wal != nil {
		if err := s.wal.Append(o); err != nil {
			s.logger.Error("写入 WAL 失败", "error", err, "order_id", o.ID)
		}
	}
	if o.Sequence > s.seq {
		s.seq = o.Sequence
	}
	s.seen[o.ID] = true
	s.announced = true
	s.allSubmitted = false
	s.pending.Insert(o)
	s.recordQueues()
	s.mu.Unlock()

	s.logger.Info("接收到订单", "order_id", o.ID, "kind", o.Kind.String(), "priority", o.Priority, "parts", len(o.RequiredParts()))
	s.eventBus.Publish(event.Event{Type: event.OrderQueued, OrderID: o.ID, Order: o})
	return nil
}

func (s *Scheduler) reject(orderID string, err error) error {
	s.logger.Warn("订单被拒绝", "order_id", orderID, "error", err)
	s.eventBus.Publish(event.Event{Type: event.OrderRejected, OrderID: orderID, Error: err})
	return err
}

// setPhase 记录竞赛阶段；进入 Ready 时请求开始竞赛 (只成功一次)
func (s *Scheduler) setPhase(ctx context.Context, phase types.CompetitionPhase) error {
	s.mu.Lock()
	s.phase = phase
	start := phase == types.PhaseReady && !s.started
	if start {
		s.started = true
	}
	s.mu.Unlock()
	s.logger.Info("竞赛阶段变化", "phase", phase.String())

	if !start {
		return nil
	}
	if err := s.comp.StartCompetition(ctx); err != nil {
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
		s.logger.Error("开始竞赛失败", "error", err)
		return err
	}
	s.logger.Info("竞赛已开始")
	return nil
}

// Recover 从 WAL 恢复已接收但未提交的订单，沿用日志中的到达序号，
// 之后到达的订单序号从最大值继续递增
func (s *Scheduler) Recover() error {
	if s.wal == nil {
		return nil
	}
	records, err := s.wal.Recover()
	if err != nil {
		return err
	}
	for _, rec := range records {
		a := *rec.Order
		s.logger.Info("重新加载未提交的订单", "order_id", a.ID, "sequence", rec.Sequence)
		if err := s.announce(a, rec.Sequence, false); err != nil {
			s.logger.Warn("恢复订单失败", "order_id", a.ID, "error", err)
		}
	}
	return nil
}

// Run 启动调度循环，直到竞赛结束或 ctx 被取消
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	s.logger.Info("调度器启动", "tick_interval", s.tickInterval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.inbox:
			_ = s.Apply(ctx, ev)
		case <-ticker.C:
			if s.drain(ctx) == StateComplete {
				s.logger.Info("调度器退出，竞赛已结束")
				return nil
			}
		}
	}
}

// drain 连续 Tick 直到状态不再是 Draining；每次 Tick 前先处理收件箱，
// 保证高优先级订单能及时抢占
func (s *Scheduler) drain(ctx context.Context) State {
	for {
		s.applyInbox(ctx)
		st, err := s.Tick(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return st
			}
			s.logger.Warn("调度周期出错", "state", st, "error", err)
		}
		if st != StateDraining {
			return st
		}
	}
}

func (s *Scheduler) applyInbox(ctx context.Context) {
	for {
		select {
		case ev := <-s.inbox:
			_ = s.Apply(ctx, ev)
		default:
			return
		}
	}
}

// Tick 执行一次状态转移：
// 库存未就绪时等待；需要时抢占；active 为空时从 pending 或 deferred 取订单；
// 否则派发并提交当前订单；三个队列都为空时询问是否结束竞赛
func (s *Scheduler) Tick(ctx context.Context) (State, error) {
	s.mu.Lock()
	if s.state == StateComplete {
		s.mu.Unlock()
		return StateComplete, nil
	}
	if s.phase == types.PhaseEnded {
		s.state = StateComplete
		s.mu.Unlock()
		s.logger.Warn("竞赛已由外部结束，停止调度")
		return StateComplete, nil
	}

	hasWork := s.active != nil || s.pending.Len() > 0 || len(s.deferred) > 0
	if hasWork && !s.index.Ready() {
		s.state = StateAwaitingInventory
		s.mu.Unlock()
		return StateAwaitingInventory, nil
	}

	// 抢占：普通订单让位给 pending 队首的高优先级订单
	if s.active != nil && !s.active.Priority {
		if head := s.pending.Peek(); head != nil && head.Priority {
			preempted := s.active
			s.fire(preempted, fsm.EventPreempt)
			s.deferred = append(s.deferred, preempted)
			s.active = s.pending.Pop()
			s.fire(s.active, fsm.EventActivate)
			s.state = StateDraining
			s.recordQueues()
			activated := s.active
			s.mu.Unlock()

			s.logger.Info("高优先级订单抢占当前订单", "order_id", activated.ID, "preempted", preempted.ID)
			metrics.PreemptionsTotal.Inc()
			s.eventBus.Publish(event.Event{Type: event.OrderPreempted, OrderID: preempted.ID, Order: preempted})
			s.eventBus.Publish(event.Event{Type: event.OrderActivated, OrderID: activated.ID, Order: activated})
			return StateDraining, nil
		}
	}

	if s.active == nil {
		if o := s.pending.Pop(); o != nil {
			s.active = o
			s.fire(o, fsm.EventActivate)
			s.state = StateDraining
			s.recordQueues()
			s.mu.Unlock()
			s.eventBus.Publish(event.Event{Type: event.OrderActivated, OrderID: o.ID, Order: o})
			return StateDraining, nil
		}
		if len(s.deferred) > 0 {
			o := s.deferred[0]
			s.deferred[0] = nil
			s.deferred = s.deferred[1:]
			s.active = o
			s.fire(o, fsm.EventResume)
			s.state = StateDraining
			s.recordQueues()
			s.mu.Unlock()
			s.logger.Info("恢复被抢占的订单", "order_id", o.ID, "preemptions", o.Lifecycle.Preemptions())
			s.eventBus.Publish(event.Event{Type: event.OrderResumed, OrderID: o.ID, Order: o})
			return StateDraining, nil
		}
		return s.settle(ctx)
	}

	o := s.active
	s.fire(o, fsm.EventDispatch)
	s.state = StateDraining
	s.mu.Unlock()
	return s.process(ctx, o)
}

// process 派发并提交当前订单，完成后从 active 移除
func (s *Scheduler) process(ctx context.Context, o *types.Order) (State, error) {
	traceID := util.NewTraceID()
	ctx = util.ContextWithTraceID(ctx, traceID)
	logger := s.logger.With("order_id", o.ID, "trace_id", traceID)

	report, err := s.dispatcher.Dispatch(ctx, o)
	if err != nil {
		if ctx.Err() != nil {
			s.abort(o)
			return StateDraining, err
		}
		logger.Error("订单派发失败，仍然提交", "error", err)
	}
	if report != nil {
		s.eventBus.Publish(event.Event{Type: event.OrderDispatched, OrderID: o.ID, Order: o})
	}

	result, err := s.comp.SubmitOrder(ctx, o.ID)
	switch {
	case err != nil && ctx.Err() != nil:
		s.abort(o)
		return StateDraining, err
	case err != nil:
		logger.Error("提交订单失败", "error", err)
		metrics.OrdersSubmittedTotal.WithLabelValues(o.Kind.String(), "failed").Inc()
		s.eventBus.Publish(event.Event{Type: event.OrderSubmitFailed, OrderID: o.ID, Order: o, Error: err})
	case !result.Success:
		logger.Warn("订单提交被拒绝", "message", result.Message)
		metrics.OrdersSubmittedTotal.WithLabelValues(o.Kind.String(), "rejected").Inc()
		s.eventBus.Publish(event.Event{Type: event.OrderSubmitFailed, OrderID: o.ID, Order: o,
			Error: errs.CallFailed(actuator.CmdSubmitOrder, result.Message)})
	default:
		logger.Info("订单已提交")
		metrics.OrdersSubmittedTotal.WithLabelValues(o.Kind.String(), "accepted").Inc()
		s.eventBus.Publish(event.Event{Type: event.OrderSubmitted, OrderID: o.ID, Order: o})
	}

	s.dispatcher.ReleaseCarriers(o.ID)
	if s.wal != nil {
		if err := s.wal.Complete(o.ID); err != nil {
			logger.Error("写入 WAL 失败", "error", err)
		}
	}

	s.mu.Lock()
	s.fire(o, fsm.EventSubmit)
	s.active = nil
	s.submitted = append(s.submitted, o.ID)
	s.recordQueues()
	s.mu.Unlock()
	return StateDraining, nil
}

// abort 派发被取消，订单保留在 active，下次从头执行
func (s *Scheduler) abort(o *types.Order) {
	s.dispatcher.ReleaseCarriers(o.ID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fire(o, fsm.EventAbort)
	s.logger.Warn("订单派发被取消，保留为当前订单", "order_id", o.ID)
}

// settle 三个队列都为空时调用，进入时持有 s.mu
func (s *Scheduler) settle(ctx context.Context) (State, error) {
	phase := s.phase
	announced := s.announced
	first := announced && !s.allSubmitted
	if first {
		s.allSubmitted = true
	}
	s.mu.Unlock()

	if first {
		s.logger.Info("所有订单已提交")
		s.eventBus.Publish(event.Event{Type: event.AllSubmitted})
	}

	if s.gate.ShouldEnd(phase, true) {
		fired, err := s.gate.Trigger(ctx)
		if err != nil {
			return s.setState(StateAwaitingOrders), err
		}
		if fired {
			s.eventBus.Publish(event.Event{Type: event.CompetitionEnded})
			return s.setState(StateComplete), nil
		}
	}
	if !announced {
		return s.setState(StateIdle), nil
	}
	return s.setState(StateAwaitingOrders), nil
}

func (s *Scheduler) setState(st State) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
	return st
}

// fire 推进订单生命周期，非法转移只记录错误
func (s *Scheduler) fire(o *types.Order, ev fsm.Event) {
	if o.Lifecycle == nil {
		return
	}
	if err := o.Lifecycle.Fire(ev); err != nil {
		s.logger.Error("订单状态转移失败", "order_id", o.ID, "error", err)
	}
}

// recordQueues 更新队列长度指标，调用时持有 s.mu
func (s *Scheduler) recordQueues() {
	active := 0
	if s.active != nil {
		active = 1
	}
	metrics.OrdersInQueue.WithLabelValues(metrics.QueuePending).Set(float64(s.pending.Len()))
	metrics.OrdersInQueue.WithLabelValues(metrics.QueueActive).Set(float64(active))
	metrics.OrdersInQueue.WithLabelValues(metrics.QueueDeferred).Set(float64(len(s.deferred)))
}

// Snapshot 返回调度器状态的一致副本，可以在任意 goroutine 调用
func (s *Scheduler) Snapshot() Status {
	ended := s.gate.Fired()
	ready := s.index.Ready()

	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		State:            s.state,
		Phase:            s.phase,
		Pending:          s.pending.IDs(),
		Deferred:         orderIDs(s.deferred),
		Submitted:        append([]string(nil), s.submitted...),
		InventoryReady:   ready,
		AllSubmitted:     s.allSubmitted,
		CompetitionEnded: ended,
	}
	if s.active != nil {
		st.Active = s.active.ID
	}
	return st
}

// State 返回当前运行状态
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsRejection 判断错误是否属于订单被拒绝 (而不是内部故障)
func IsRejection(err error) bool {
	return errors.Is(err, errs.ErrInvalidOrderPayload) ||
		errors.Is(err, errs.ErrDuplicateOrder) ||
		errors.Is(err, errs.ErrCompetitionEnded)
}
