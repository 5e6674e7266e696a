package engine

import (
	"slices"

	"ariac-fulfillment/internal/types"
)

// OrderStore 保存新到达、尚未开始的订单（pending 队列）
// 高优先级订单排在所有普通订单之前，同一优先级内先到先服务
type OrderStore struct {
	orders []*types.Order
}

// NewOrderStore 创建一个空的订单队列
func NewOrderStore() *OrderStore {
	return &OrderStore{orders: make([]*types.Order, 0)}
}

func (s *OrderStore) Len() int { return len(s.orders) }

// Insert 按到达规则插入订单：
// 普通订单、空队列或队尾为高优先级时直接追加；
// 否则插入到第一个普通订单之前
func (s *OrderStore) Insert(o *types.Order) {
	n := len(s.orders)
	if !o.Priority || n == 0 || s.orders[n-1].Priority {
		s.orders = append(s.orders, o)
		return
	}
	for i, cur := range s.orders {
		if !cur.Priority {
			s.orders = slices.Insert(s.orders, i, o)
			return
		}
	}
}

// Peek 返回队首订单但不移除
func (s *OrderStore) Peek() *types.Order {
	if len(s.orders) == 0 {
		return nil
	}
	return s.orders[0]
}

// Pop 移除并返回队首订单
func (s *OrderStore) Pop() *types.Order {
	if len(s.orders) == 0 {
		return nil
	}
	head := s.orders[0]
	s.orders[0] = nil // 避免内存泄漏
	s.orders = s.orders[1:]
	return head
}

// IDs 按队列顺序返回订单 ID
func (s *OrderStore) IDs() []string {
	return orderIDs(s.orders)
}

func orderIDs(orders []*types.Order) []string {
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	return ids
}
