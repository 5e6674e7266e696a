package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// PartType 零件类型，取值与竞赛消息定义保持一致
type PartType int

const (
	PartBattery   PartType = 10
	PartPump      PartType = 11
	PartSensor    PartType = 12
	PartRegulator PartType = 13
)

var partTypeNames = map[PartType]string{
	PartBattery:   "battery",
	PartPump:      "pump",
	PartSensor:    "sensor",
	PartRegulator: "regulator",
}

// PartColor 零件颜色
type PartColor int

const (
	ColorRed    PartColor = 0
	ColorGreen  PartColor = 1
	ColorBlue   PartColor = 2
	ColorOrange PartColor = 3
	ColorPurple PartColor = 4
)

var partColorNames = map[PartColor]string{
	ColorRed:    "red",
	ColorGreen:  "green",
	ColorBlue:   "blue",
	ColorOrange: "orange",
	ColorPurple: "purple",
}

// OrderKind 订单类型
type OrderKind int

const (
	KindKitting  OrderKind = 0
	KindAssembly OrderKind = 1
	KindCombined OrderKind = 2
)

var orderKindNames = map[OrderKind]string{
	KindKitting:  "kitting",
	KindAssembly: "assembly",
	KindCombined: "combined",
}

// Destination 配套订单完成后 AGV 的去向
type Destination int

const (
	DestKitting       Destination = 0
	DestAssemblyFront Destination = 1
	DestAssemblyBack  Destination = 2
	DestWarehouse     Destination = 3
)

var destinationNames = map[Destination]string{
	DestKitting:       "kitting",
	DestAssemblyFront: "assembly_front",
	DestAssemblyBack:  "assembly_back",
	DestWarehouse:     "warehouse",
}

// CompetitionPhase 竞赛阶段
type CompetitionPhase int

const (
	PhaseIdle                   CompetitionPhase = 0
	PhaseReady                  CompetitionPhase = 1
	PhaseStarted                CompetitionPhase = 2
	PhaseOrderAnnouncementsDone CompetitionPhase = 3
	PhaseEnded                  CompetitionPhase = 4
)

var phaseNames = map[CompetitionPhase]string{
	PhaseIdle:                   "idle",
	PhaseReady:                  "ready",
	PhaseStarted:                "started",
	PhaseOrderAnnouncementsDone: "order_announcements_done",
	PhaseEnded:                  "ended",
}

// Tool 机械臂末端夹爪
type Tool int

const (
	ToolNone Tool = iota
	ToolPartGripper
	ToolTrayGripper
)

var toolNames = map[Tool]string{
	ToolNone:        "none",
	ToolPartGripper: "part_gripper",
	ToolTrayGripper: "tray_gripper",
}

func (t PartType) String() string { return enumString(t, partTypeNames) }
func (c PartColor) String() string { return enumString(c, partColorNames) }
func (k OrderKind) String() string { return enumString(k, orderKindNames) }
func (d Destination) String() string { return enumString(d, destinationNames) }
func (p CompetitionPhase) String() string { return enumString(p, phaseNames) }
func (t Tool) String() string { return enumString(t, toolNames) }
func (t PartType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }
func (c PartColor) MarshalText() ([]byte, error) { return []byte(c.String()), nil }
func (k OrderKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }
func (d Destination) MarshalText() ([]byte, error) { return []byte(d.String()), nil }
func (p CompetitionPhase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }
func (t Tool) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *PartType) UnmarshalText(b []byte) error { return parseEnum(b, partTypeNames, t) }
func (c *PartColor) UnmarshalText(b []byte) error { return parseEnum(b, partColorNames, c) }
func (k *OrderKind) UnmarshalText(b []byte) error { return parseEnum(b, orderKindNames, k) }
func (d *Destination) UnmarshalText(b []byte) error { return parseEnum(b, destinationNames, d) }
func (p *CompetitionPhase) UnmarshalText(b []byte) error { return parseEnum(b, phaseNames, p) }
func (t *Tool) UnmarshalText(b []byte) error { return parseEnum(b, toolNames, t) }

// 竞赛消息中的枚举是数字，JSON 里两种写法都接受
func (t *PartType) UnmarshalJSON(b []byte) error { return parseEnumJSON(b, partTypeNames, t) }
func (c *PartColor) UnmarshalJSON(b []byte) error { return parseEnumJSON(b, partColorNames, c) }
func (k *OrderKind) UnmarshalJSON(b []byte) error { return parseEnumJSON(b, orderKindNames, k) }
func (d *Destination) UnmarshalJSON(b []byte) error { return parseEnumJSON(b, destinationNames, d) }
func (p *CompetitionPhase) UnmarshalJSON(b []byte) error { return parseEnumJSON(b, phaseNames, p) }
func (t *Tool) UnmarshalJSON(b []byte) error { return parseEnumJSON(b, toolNames, t) }

// Valid 报告枚举值是否在定义范围内
func (t PartType) Valid() bool {
	_, ok := partTypeNames[t]
	return ok
}

func (c PartColor) Valid() bool {
	_, ok := partColorNames[c]
	return ok
}

func (k OrderKind) Valid() bool {
	_, ok := orderKindNames[k]
	return ok
}

func (d Destination) Valid() bool {
	_, ok := destinationNames[d]
	return ok
}

func (p CompetitionPhase) Valid() bool {
	_, ok := phaseNames[p]
	return ok
}

func enumString[E ~int](v E, names map[E]string) string {
	if name, ok := names[v]; ok {
		return name
	}
	return strconv.Itoa(int(v))
}

// parseEnum 既接受名称（不区分大小写），也接受数字形式
func parseEnum[E ~int](b []byte, names map[E]string, out *E) error {
	text := strings.ToLower(strings.TrimSpace(string(b)))
	for v, name := range names {
		if name == text {
			*out = v
			return nil
		}
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return fmt.Errorf("unknown value %q", string(b))
	}
	if _, ok := names[E(n)]; !ok {
		return fmt.Errorf("value %d out of range", n)
	}
	*out = E(n)
	return nil
}

func parseEnumJSON[E ~int](b []byte, names map[E]string, out *E) error {
	if len(b) > 0 && b[0] == '"' {
		var text string
		if err := json.Unmarshal(b, &text); err != nil {
			return err
		}
		return parseEnum([]byte(text), names, out)
	}
	return parseEnum(b, names, out)
}

// StationName 返回装配工位的目的地字符串
func StationName(station int) string {
	return fmt.Sprintf("Station%d", station)
}

const (
	DestinationNameKitting   = "Kitting"
	DestinationNameWarehouse = "Warehouse"
)
