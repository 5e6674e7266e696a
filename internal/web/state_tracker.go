package web

import (
	"sync"

	"ariac-fulfillment/internal/types"
)

// OrderState 定义了用于 UI 展示的订单状态
type OrderState struct {
	ID       string   `json:"id"`
	Kind     string   `json:"kind"`
	Priority bool     `json:"priority"`
	Status   string   `json:"status"`
	Parts    []string `json:"parts"`
	Missing  []string `json:"missing,omitempty"`
	Message  string   `json:"message,omitempty"`
}

// GlobalState 代表所有订单的实时状态快照
type GlobalState struct {
	Orders           map[string]OrderState `json:"orders"`
	Rejected         map[string]string     `json:"rejected"` // 订单 ID -> 拒绝原因
	AllSubmitted     bool                  `json:"all_submitted"`
	CompetitionEnded bool                  `json:"competition_ended"`
}

// StateTracker 负责追踪所有订单的实时状态，并通知前端更新
type StateTracker struct {
	mu       sync.RWMutex
	state    GlobalState
	finished map[string]bool
	hub      *Hub
}

// NewStateTracker 创建一个新的 StateTracker 实例，hub 可以为 nil
func NewStateTracker(hub *Hub) *StateTracker {
	return &StateTracker{
		state:    GlobalState{Orders: make(map[string]OrderState), Rejected: make(map[string]string)},
		finished: make(map[string]bool),
		hub:      hub,
	}
}

// AddOrder 将一个新订单添加到状态追踪器中，并广播
// 事件处理器并发执行，后续状态可能先于 AddOrder 到达，此时保留已记录的状态
func (st *StateTracker) AddOrder(o *types.Order, status string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	parts := make([]string, 0)
	for _, p := range o.RequiredParts() {
		parts = append(parts, p.String())
	}
	order, seen := st.state.Orders[o.ID]
	order.ID = o.ID
	order.Kind = o.Kind.String()
	order.Priority = o.Priority
	order.Parts = parts
	if !seen {
		order.Status = status
	}
	st.state.Orders[o.ID] = order
	st.publish()
}

// UpdateOrderState 更新单个订单的状态，并向所有客户端广播最新的全局状态
// 订单已结束时忽略
func (st *StateTracker) UpdateOrderState(id, status, message string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.finished[id] {
		return
	}
	order := st.state.Orders[id]
	order.ID = id
	order.Status = status
	order.Message = message
	st.state.Orders[id] = order
	st.publish()
}

// FinishOrder 设置订单的最终状态，之后的 UpdateOrderState 不再生效
func (st *StateTracker) FinishOrder(id, status, message string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.finished[id] = true
	order := st.state.Orders[id]
	order.ID = id
	order.Status = status
	order.Message = message
	st.state.Orders[id] = order
	st.publish()
}

// AddMissingPart 记录订单缺失的零件
func (st *StateTracker) AddMissingPart(id string, part types.Part) {
	st.mu.Lock()
	defer st.mu.Unlock()

	order := st.state.Orders[id]
	order.ID = id
	order.Missing = append(append([]string(nil), order.Missing...), part.String())
	st.state.Orders[id] = order
	st.publish()
}

// Reject 记录被拒绝的订单
func (st *StateTracker) Reject(id, reason string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.state.Rejected[id] = reason
	st.publish()
}

func (st *StateTracker) MarkAllSubmitted() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.state.AllSubmitted = true
	st.publish()
}

func (st *StateTracker) MarkCompetitionEnded() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.state.CompetitionEnded = true
	st.publish()
}

// publish 调用时持有 st.mu
func (st *StateTracker) publish() {
	if st.hub != nil {
		st.hub.BroadcastState(st.state)
	}
}

// GetStateSnapshot 返回当前全局状态的一个深拷贝副本
// 用于新客户端连接时获取一次全量数据
func (st *StateTracker) GetStateSnapshot() GlobalState {
	st.mu.RLock()
	defer st.mu.RUnlock()

	newState := GlobalState{
		Orders:           make(map[string]OrderState, len(st.state.Orders)),
		Rejected:         make(map[string]string, len(st.state.Rejected)),
		AllSubmitted:     st.state.AllSubmitted,
		CompetitionEnded: st.state.CompetitionEnded,
	}
	for id, o := range st.state.Orders {
		newState.Orders[id] = o
	}
	for id, reason := range st.state.Rejected {
		newState.Rejected[id] = reason
	}
	return newState
}
