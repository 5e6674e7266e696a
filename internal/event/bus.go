package event

import (
	"sync"
	"time"

	"ariac-fulfillment/internal/types"
)

// EventType 定义事件的类型
type EventType string

// 定义所有业务事件类型
const (
	OrderQueued       EventType = "OrderQueued"       // 订单进入 pending 队列
	OrderRejected     EventType = "OrderRejected"     // 订单未通过校验
	OrderActivated    EventType = "OrderActivated"    // 订单成为当前订单
	OrderPreempted    EventType = "OrderPreempted"    // 订单被抢占，进入 deferred
	OrderResumed      EventType = "OrderResumed"      // 被抢占的订单恢复
	OrderDispatched   EventType = "OrderDispatched"   // 动作序列执行完毕
	OrderSubmitted    EventType = "OrderSubmitted"    // 提交成功
	OrderSubmitFailed EventType = "OrderSubmitFailed" // 提交被评分服务拒绝或调用失败
	PartMissing       EventType = "PartMissing"       // 料仓和传送带都没有所需零件
	CommandCompleted  EventType = "CommandCompleted"  // 一条执行器命令返回
	AllSubmitted      EventType = "AllSubmitted"      // 三个队列全部清空
	CompetitionEnded  EventType = "CompetitionEnded"  // 已请求结束竞赛
)

// Event 结构体定义了事件的数据负载
type Event struct {
	Type     EventType     // 事件类型
	OrderID  string        // 关联的订单 ID
	Order    *types.Order  // 完整的订单数据
	Part     *types.Part   // 缺失的零件 (仅 PartMissing)
	Command  string        // 命令名称 (仅 CommandCompleted)
	Duration time.Duration // 命令耗时 (仅 CommandCompleted)
	Error    error         // 错误信息 (失败类事件)
	Seq      uint64        // 发布序号，由总线填写
	At       time.Time     // 发布时间，由总线填写
}

// Handler 是事件处理函数的签名
type Handler func(e Event)

// Bus 内存事件总线
// Publish 只入队不等待；单个投递 goroutine 按发布顺序依次调用处理器，
// 所以同一订单的事件在所有订阅者看来顺序一致
type Bus struct {
	mu       sync.Mutex
	cond     *sync.Cond
	handlers map[EventType][]Handler
	queue    []Event
	inflight int // 已发布但尚未处理完的事件数
	seq      uint64
	closed   bool
}

// NewBus 创建事件总线并启动投递 goroutine
func NewBus() *Bus {
	b := &Bus{handlers: make(map[EventType][]Handler)}
	b.cond = sync.NewCond(&b.mu)
	go b.deliver()
	return b
}

// Subscribe 订阅一个特定类型的事件
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish 发布一个事件，Close 之后发布的事件被丢弃
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.seq++
	e.Seq = b.seq
	if e.At.IsZero() {
		e.At = time.Now()
	}
	b.queue = append(b.queue, e)
	b.inflight++
	b.cond.Broadcast()
}

func (b *Bus) deliver() {
	for {
		b.mu.Lock()
		for len(b.queue) == 0 && !b.closed {
			b.cond.Wait()
		}
		if len(b.queue) == 0 {
			b.mu.Unlock()
			return
		}
		e := b.queue[0]
		b.queue[0] = Event{}
		b.queue = b.queue[1:]
		handlers := append([]Handler(nil), b.handlers[e.Type]...)
		b.mu.Unlock()

		for _, h := range handlers {
			h(e)
		}

		b.mu.Lock()
		b.inflight--
		b.cond.Broadcast()
		b.mu.Unlock()
	}
}

// Wait 等待所有已发布事件处理完毕，用于停机和测试
func (b *Bus) Wait() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.inflight > 0 {
		b.cond.Wait()
	}
}

// Close 处理完已入队的事件后停止投递 goroutine
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cond.Broadcast()
}
