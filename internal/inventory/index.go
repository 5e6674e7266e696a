package inventory

import (
	"fmt"
	"sync"

	"ariac-fulfillment/internal/errs"
	"ariac-fulfillment/internal/types"
)

const (
	BinCount    = 8
	SlotsPerBin = 9
	SlotCount   = BinCount * SlotsPerBin // 72 个可寻址槽位
)

// PopulateReport 记录一次库存填充的结果
type PopulateReport struct {
	Placed      int   // 成功放入的零件数量
	Overflow    int   // 料仓已满而放不下的零件数量
	InvalidBins []int // 编号不在 1~8 之间而被跳过的料仓
}

// Index 维护料仓和传送带两份库存，提供按零件签名的点查询
// 料仓槽位号 = (bin-1)*9 + offset
type Index struct {
	mu              sync.RWMutex
	bins            [SlotCount]types.PartSignature
	conveyor        []types.PartSignature
	conveyorClaimed []bool
	binsReady       bool
	conveyorReady   bool
}

// NewIndex 创建一个所有槽位为空的索引
func NewIndex() *Index {
	idx := &Index{}
	for i := range idx.bins {
		idx.bins[i] = types.EmptySignature
	}
	return idx
}

// SlotIndex 计算料仓槽位号
func SlotIndex(bin, offset int) int {
	return (bin-1)*SlotsPerBin + offset
}

// BinOf 返回槽位所属的料仓编号
func BinOf(slot int) int {
	return slot/SlotsPerBin + 1
}

// PopulateBins 按快照填充料仓：每个单位占用本料仓内下一个空槽位，已占用的槽位不会被覆盖
func (idx *Index) PopulateBins(snapshot types.BinInventorySnapshot) (PopulateReport, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var report PopulateReport
	if idx.binsReady {
		return report, fmt.Errorf("bins: %w", errs.ErrAlreadyPopulated)
	}

	for _, bin := range snapshot.Bins {
		if bin.BinNumber < 1 || bin.BinNumber > BinCount {
			report.InvalidBins = append(report.InvalidBins, bin.BinNumber)
			continue
		}
		first := SlotIndex(bin.BinNumber, 0)
		last := first + SlotsPerBin
		for _, batch := range bin.Parts {
			sig := batch.Part.Signature()
			for k := 0; k < batch.Quantity; k++ {
				placed := false
				for slot := first; slot < last; slot++ {
					if idx.bins[slot] == types.EmptySignature {
						idx.bins[slot] = sig
						placed = true
						break
					}
				}
				if placed {
					report.Placed++
				} else {
					report.Overflow++
				}
			}
		}
	}

	idx.binsReady = true
	return report, nil
}

// PopulateConveyor 按上报顺序，每个单位追加一个传送带条目
func (idx *Index) PopulateConveyor(snapshot types.ConveyorInventorySnapshot) (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.conveyorReady {
		return 0, fmt.Errorf("conveyor: %w", errs.ErrAlreadyPopulated)
	}
	added := 0
	for _, batch := range snapshot.Parts {
		sig := batch.Part.Signature()
		for k := 0; k < batch.Quantity; k++ {
			idx.conveyor = append(idx.conveyor, sig)
			idx.conveyorClaimed = append(idx.conveyorClaimed, false)
			added++
		}
	}
	idx.conveyorReady = true
	return added, nil
}

// Ready 两份库存都已填充后才允许派发
func (idx *Index) Ready() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.binsReady && idx.conveyorReady
}

// FindInBins 按槽位号升序扫描，返回第一个匹配的槽位
func (idx *Index) FindInBins(sig types.PartSignature) (int, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.findInBins(sig)
}

func (idx *Index) findInBins(sig types.PartSignature) (int, bool) {
	if sig == types.EmptySignature {
		return -1, false
	}
	for slot, s := range idx.bins {
		if s == sig {
			return slot, true
		}
	}
	return -1, false
}

// FindOnConveyor 返回第一个尚未被认领的匹配位置，查询本身不修改任何状态
func (idx *Index) FindOnConveyor(sig types.PartSignature) (int, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.findOnConveyor(sig)
}

func (idx *Index) findOnConveyor(sig types.PartSignature) (int, bool) {
	for pos, s := range idx.conveyor {
		if s == sig && !idx.conveyorClaimed[pos] {
			return pos, true
		}
	}
	return -1, false
}

// Claim 先查料仓再查传送带，并把找到的位置标记为已消耗，
// 同一个物理位置不会分配给两个零件
func (idx *Index) Claim(part types.Part) (types.PartLocation, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	sig := part.Signature()
	if slot, ok := idx.findInBins(sig); ok {
		idx.bins[slot] = types.EmptySignature
		return types.PartLocation{Source: types.SourceBin, Index: slot, Bin: BinOf(slot), Part: part}, nil
	}
	if pos, ok := idx.findOnConveyor(sig); ok {
		idx.conveyorClaimed[pos] = true
		return types.PartLocation{Source: types.SourceConveyor, Index: pos, Part: part}, nil
	}
	return types.PartLocation{}, fmt.Errorf("%s: %w", part, errs.ErrPartNotFound)
}

// Bins 返回料仓槽位的副本
func (idx *Index) Bins() []types.PartSignature {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]types.PartSignature, SlotCount)
	copy(out, idx.bins[:])
	return out
}

// Conveyor 返回尚未被认领的传送带条目
func (idx *Index) Conveyor() []types.PartSignature {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var out []types.PartSignature
	for pos, s := range idx.conveyor {
		if !idx.conveyorClaimed[pos] {
			out = append(out, s)
		}
	}
	return out
}
