package types

import (
	"fmt"
	"time"

	"ariac-fulfillment/internal/errs"
	"ariac-fulfillment/internal/fsm"
)

// PartSignature 零件签名，编码为 type*10 + color，作为两种库存的查找键
type PartSignature int

// EmptySignature 料仓槽位为空时的哨兵值
const EmptySignature PartSignature = -1

// Part 表示一种零件（类型 + 颜色）
type Part struct {
	Type  PartType  `json:"type" yaml:"type"`
	Color PartColor `json:"color" yaml:"color"`
}

// Signature 返回零件的签名编码
func (p Part) Signature() PartSignature {
	return PartSignature(int(p.Type)*10 + int(p.Color))
}

// String 返回便于日志阅读的描述，例如 "red battery"
func (p Part) String() string {
	return p.Color.String() + " " + p.Type.String()
}

// Part 将签名还原为零件
func (s PartSignature) Part() Part {
	return Part{Type: PartType(int(s) / 10), Color: PartColor(int(s) % 10)}
}

func (s PartSignature) String() string {
	if s == EmptySignature {
		return "empty"
	}
	return s.Part().String()
}

type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

type Quaternion struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
	W float64 `json:"w" yaml:"w"`
}

// Pose 装配位姿
type Pose struct {
	Position    Point      `json:"position" yaml:"position"`
	Orientation Quaternion `json:"orientation" yaml:"orientation"`
}

// Vector3 安装方向
type Vector3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// KittingPart 配套订单中的一个零件及其托盘象限
type KittingPart struct {
	Part     Part `json:"part" yaml:"part"`
	Quadrant int  `json:"quadrant" yaml:"quadrant" validate:"min=1,max=4"`
}

// AssemblyPart 装配（或组合）订单中的一个零件
type AssemblyPart struct {
	Part             Part    `json:"part" yaml:"part"`
	AssembledPose    Pose    `json:"assembled_pose" yaml:"assembled_pose"`
	InstallDirection Vector3 `json:"install_direction" yaml:"install_direction"`
}

// KittingTask 配套任务：把零件放到指定 AGV 的托盘上并送往目的地
type KittingTask struct {
	Carrier     int           `json:"agv_number" yaml:"agv_number" validate:"min=1,max=4"`
	TrayID      int           `json:"tray_id" yaml:"tray_id" validate:"min=0,max=9"`
	Destination Destination   `json:"destination" yaml:"destination"`
	Parts       []KittingPart `json:"parts" yaml:"parts" validate:"dive"`
}

// AssemblyTask 装配任务：1~2 台 AGV 把零件送到装配工位
type AssemblyTask struct {
	Carriers []int          `json:"agv_numbers" yaml:"agv_numbers" validate:"min=1,max=2,dive,min=1,max=4"`
	Station  int            `json:"station" yaml:"station" validate:"min=1,max=4"`
	Parts    []AssemblyPart `json:"parts" yaml:"parts" validate:"dive"`
}

// CombinedTask 组合任务：先配套再装配，AGV 由工位推导
type CombinedTask struct {
	Station int            `json:"station" yaml:"station" validate:"min=1,max=4"`
	Parts   []AssemblyPart `json:"parts" yaml:"parts" validate:"dive"`
}

// Order 表示一个已通过校验、进入调度的订单
// 除队列归属外，订单构造后不可变
type Order struct {
	ID          string        `json:"id"`
	Kind        OrderKind     `json:"kind"`
	Priority    bool          `json:"priority"`
	Kitting     *KittingTask  `json:"kitting_task,omitempty"`
	Assembly    *AssemblyTask `json:"assembly_task,omitempty"`
	Combined    *CombinedTask `json:"combined_task,omitempty"`
	Sequence    uint64        `json:"sequence"`     // 到达序号，用于恢复时保持先后顺序
	AnnouncedAt time.Time     `json:"announced_at"` // 到达时间
	Lifecycle   *fsm.FSM      `json:"-"`            // 运行时绑定的生命周期状态机
}

// NewOrder 由到达事件构造订单，类型与载荷不匹配时返回 ErrInvalidOrderPayload
func NewOrder(a OrderAnnounced, seq uint64) (*Order, error) {
	if a.ID == "" {
		return nil, errs.InvalidPayload("<empty>", "order id is required")
	}
	if !a.Kind.Valid() {
		return nil, errs.InvalidPayload(a.ID, fmt.Sprintf("unknown order kind %d", a.Kind))
	}

	payloads := 0
	for _, set := range []bool{a.Kitting != nil, a.Assembly != nil, a.Combined != nil} {
		if set {
			payloads++
		}
	}
	if payloads != 1 {
		return nil, errs.InvalidPayload(a.ID, fmt.Sprintf("expected exactly one payload, got %d", payloads))
	}

	switch a.Kind {
	case KindKitting:
		if a.Kitting == nil {
			return nil, errs.InvalidPayload(a.ID, "kitting order without kitting task")
		}
	case KindAssembly:
		if a.Assembly == nil {
			return nil, errs.InvalidPayload(a.ID, "assembly order without assembly task")
		}
		if n := len(a.Assembly.Carriers); n < 1 || n > 2 {
			return nil, errs.InvalidPayload(a.ID, fmt.Sprintf("assembly needs 1 or 2 carriers, got %d", n))
		}
	case KindCombined:
		if a.Combined == nil {
			return nil, errs.InvalidPayload(a.ID, "combined order without combined task")
		}
	}

	return &Order{
		ID:          a.ID,
		Kind:        a.Kind,
		Priority:    a.Priority,
		Kitting:     a.Kitting,
		Assembly:    a.Assembly,
		Combined:    a.Combined,
		Sequence:    seq,
		AnnouncedAt: time.Now(),
		Lifecycle:   fsm.NewFSM(a.ID),
	}, nil
}

// Announcement 将订单还原为到达事件，用于写入 WAL
func (o *Order) Announcement() OrderAnnounced {
	return OrderAnnounced{
		ID:       o.ID,
		Kind:     o.Kind,
		Priority: o.Priority,
		Kitting:  o.Kitting,
		Assembly: o.Assembly,
		Combined: o.Combined,
	}
}

// RequiredParts 返回订单需要的全部零件（按订单顺序）
func (o *Order) RequiredParts() []Part {
	var parts []Part
	switch o.Kind {
	case KindKitting:
		for _, kp := range o.Kitting.Parts {
			parts = append(parts, kp.Part)
		}
	case KindAssembly:
		for _, ap := range o.Assembly.Parts {
			parts = append(parts, ap.Part)
		}
	case KindCombined:
		for _, ap := range o.Combined.Parts {
			parts = append(parts, ap.Part)
		}
	}
	return parts
}

// PartSource 零件所在的位置类别
type PartSource string

const (
	SourceBin      PartSource = "bin"
	SourceConveyor PartSource = "conveyor"
	SourceCarrier  PartSource = "carrier"
)

// PartLocation 拾取描述：从哪里取哪个零件
type PartLocation struct {
	Source  PartSource `json:"source"`
	Index   int        `json:"index"`             // 料仓槽位号或传送带位置
	Bin     int        `json:"bin,omitempty"`     // 料仓编号 1~8
	Carrier int        `json:"carrier,omitempty"` // 从 AGV 上拾取时的 AGV 编号
	Station int        `json:"station,omitempty"`
	Part    Part       `json:"part"`
}

// TargetKind 放置目标类别
type TargetKind string

const (
	TargetTray    TargetKind = "tray"
	TargetFixture TargetKind = "fixture"
)

// PlaceTarget 放置描述：托盘象限或装配夹具
type PlaceTarget struct {
	Kind             TargetKind `json:"kind"`
	Carrier          int        `json:"carrier,omitempty"`
	TrayID           int        `json:"tray_id,omitempty"`
	Quadrant         int        `json:"quadrant,omitempty"`
	Station          int        `json:"station,omitempty"`
	Part             Part       `json:"part"`
	AssembledPose    *Pose      `json:"assembled_pose,omitempty"`
	InstallDirection *Vector3   `json:"install_direction,omitempty"`
}

// SubmitResult 提交订单后评分服务的答复
type SubmitResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
