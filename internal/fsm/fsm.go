// Package fsm 订单生命周期状态机
package fsm

import (
	"fmt"
	"sync"
)

// State 订单生命周期状态
type State string

// Event 触发状态转移的事件
type Event string

const (
	StateQueued      State = "QUEUED"      // 在 pending 队列中等待
	StateActive      State = "ACTIVE"      // 当前订单，尚未派发
	StateDeferred    State = "DEFERRED"    // 被高优先级订单抢占，等待恢复
	StateDispatching State = "DISPATCHING" // 正在执行动作序列
	StateSubmitted   State = "SUBMITTED"   // 已提交，随后从队列中移除
)

const (
	EventActivate Event = "ACTIVATE"
	EventPreempt  Event = "PREEMPT"
	EventResume   Event = "RESUME"
	EventDispatch Event = "DISPATCH"
	EventAbort    Event = "ABORT" // 派发被上下文取消，订单退回 ACTIVE
	EventSubmit   Event = "SUBMIT"
)

// transitions 所有订单共用的转移表: 当前状态 -> 事件 -> 下一状态
var transitions = map[State]map[Event]State{
	StateQueued: {
		EventActivate: StateActive,
	},
	StateActive: {
		EventPreempt:  StateDeferred, // 让位给高优先级订单
		EventDispatch: StateDispatching,
	},
	StateDeferred: {
		EventResume: StateActive, // 恢复后从头执行
	},
	StateDispatching: {
		EventAbort:  StateActive,
		EventSubmit: StateSubmitted,
	},
}

// TransitionError 当前状态不接受该事件
type TransitionError struct {
	OrderID string
	From    State
	Event   Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot fire event %s from state %s", e.OrderID, e.Event, e.From)
}

// FSM 单个订单的状态机，记录经过的状态
type FSM struct {
	mu      sync.Mutex
	orderID string
	history []State
}

func NewFSM(orderID string) *FSM {
	return &FSM{orderID: orderID, history: []State{StateQueued}}
}

// State 返回当前状态
func (f *FSM) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history[len(f.history)-1]
}

// Fire 触发事件，非法转移返回 *TransitionError 且状态不变
func (f *FSM) Fire(event Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cur := f.history[len(f.history)-1]
	next, ok := transitions[cur][event]
	if !ok {
		return &TransitionError{OrderID: f.orderID, From: cur, Event: event}
	}
	f.history = append(f.history, next)
	return nil
}

// Preemptions 订单被抢占的次数，f 为 nil 时返回 0
func (f *FSM) Preemptions() int {
	if f == nil {
		return 0
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.history {
		if s == StateDeferred {
			n++
		}
	}
	return n
}

// History 返回经过的状态副本
func (f *FSM) History() []State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]State(nil), f.history...)
}
