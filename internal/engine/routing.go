package engine

import (
	"fmt"
	"sync"

	"ariac-fulfillment/internal/errs"
	"ariac-fulfillment/internal/types"
)

// 工位与 AGV 的两组固定对应关系
var (
	// 装配分组：工位 1、2 由 AGV 1、2 服务，工位 3、4 由 AGV 3、4 服务
	assemblyGroups = map[int][]int{1: {1, 2}, 2: {1, 2}, 3: {3, 4}, 4: {3, 4}}
	// 组合分组：工位 1、3 由 AGV 1、3 服务，工位 2、4 由 AGV 2、4 服务
	combinedGroups = map[int][]int{1: {1, 3}, 3: {1, 3}, 2: {2, 4}, 4: {2, 4}}
)

// DestinationName 把配套目的地转换为 AGV 移动命令使用的字符串
// AGV 1、2 的前/后装配位是 Station1/Station2，AGV 3、4 是 Station3/Station4
func DestinationName(dest types.Destination, carrier int) (string, error) {
	if carrier < 1 || carrier > 4 {
		return "", fmt.Errorf("carrier %d out of range", carrier)
	}
	base := 1
	if carrier >= 3 {
		base = 3
	}
	switch dest {
	case types.DestKitting:
		return types.DestinationNameKitting, nil
	case types.DestWarehouse:
		return types.DestinationNameWarehouse, nil
	case types.DestAssemblyFront:
		return types.StationName(base), nil
	case types.DestAssemblyBack:
		return types.StationName(base + 1), nil
	}
	return "", fmt.Errorf("unknown destination %d", dest)
}

// DetermineCarrier 组合订单使用的 AGV：两组对应关系的交集
func DetermineCarrier(station int) (int, error) {
	a, okA := assemblyGroups[station]
	c, okC := combinedGroups[station]
	if !okA || !okC {
		return 0, fmt.Errorf("station %d out of range", station)
	}
	for _, x := range a {
		for _, y := range c {
			if x == y {
				return x, nil
			}
		}
	}
	return 0, fmt.Errorf("no carrier serves station %d", station)
}

// KittingToolStation AGV 对应的换爪工位
func KittingToolStation(carrier int) string {
	if carrier >= 3 {
		return "kts2"
	}
	return "kts1"
}

// CarrierPool 记录哪些 AGV 已被订单占用，避免同一 AGV 被重复调度
type CarrierPool struct {
	mu    sync.Mutex
	owner map[int]string // AGV 编号 -> 占用它的订单 ID
}

// NewCarrierPool 创建 AGV 占用表，初始全部可用
func NewCarrierPool() *CarrierPool {
	return &CarrierPool{owner: make(map[int]string)}
}

// Reserve 为订单占用 AGV；同一订单重复占用是允许的
func (p *CarrierPool) Reserve(carrier int, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if owner, held := p.owner[carrier]; held && owner != orderID {
		return fmt.Errorf("carrier %d held by order %s: %w", carrier, owner, errs.ErrCarrierBusy)
	}
	p.owner[carrier] = orderID
	return nil
}

// Release 释放订单占用的全部 AGV
func (p *CarrierPool) Release(orderID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for carrier, owner := range p.owner {
		if owner == orderID {
			delete(p.owner, carrier)
		}
	}
}

// Available 判断 AGV 当前是否可用
func (p *CarrierPool) Available(carrier int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, held := p.owner[carrier]
	return !held
}
