package types

// InboundEvent 是调度器可以接收的外部事件
type InboundEvent interface {
	inbound()
}

// OrderAnnounced 新订单到达
type OrderAnnounced struct {
	ID       string        `json:"id" yaml:"id" validate:"required"`
	Kind     OrderKind     `json:"type" yaml:"type"`
	Priority bool          `json:"priority" yaml:"priority"`
	Kitting  *KittingTask  `json:"kitting_task,omitempty" yaml:"kitting_task,omitempty" validate:"omitempty"`
	Assembly *AssemblyTask `json:"assembly_task,omitempty" yaml:"assembly_task,omitempty" validate:"omitempty"`
	Combined *CombinedTask `json:"combined_task,omitempty" yaml:"combined_task,omitempty" validate:"omitempty"`
}

// PartBatch 一批同种零件及其数量
type PartBatch struct {
	Part     Part `json:"part" yaml:"part"`
	Quantity int  `json:"quantity" yaml:"quantity" validate:"min=0"`
}

// BinReport 单个料仓的库存
type BinReport struct {
	BinNumber int         `json:"bin_number" yaml:"bin_number"`
	Parts     []PartBatch `json:"parts" yaml:"parts" validate:"dive"`
}

// BinInventorySnapshot 料仓库存快照，只下发一次
type BinInventorySnapshot struct {
	Bins []BinReport `json:"bins" yaml:"bins" validate:"dive"`
}

// ConveyorInventorySnapshot 传送带库存快照，只下发一次
type ConveyorInventorySnapshot struct {
	Parts []PartBatch `json:"parts" yaml:"parts" validate:"dive"`
}

// CompetitionPhaseChanged 竞赛阶段变化
type CompetitionPhaseChanged struct {
	Phase CompetitionPhase `json:"competition_state" yaml:"competition_state"`
}

func (OrderAnnounced) inbound() {}
func (BinInventorySnapshot) inbound() {}
func (ConveyorInventorySnapshot) inbound() {}
func (CompetitionPhaseChanged) inbound() {}
