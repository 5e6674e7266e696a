// Package actuator 定义调度器依赖的外部执行能力：机械臂、AGV 和竞赛服务
// 调度器只通过这里的接口发出命令，每条命令阻塞等待结果
package actuator

import (
	"context"

	"ariac-fulfillment/internal/types"
)

// Actuator 机械臂与 AGV 的命令接口
type Actuator interface {
	CurrentTool(ctx context.Context) (types.Tool, error)
	ChangeTool(ctx context.Context, tool types.Tool, station string) error
	PickPart(ctx context.Context, loc types.PartLocation) error
	PlacePart(ctx context.Context, target types.PlaceTarget) error
	MoveCarrier(ctx context.Context, carrier int, destination string) error
	GoHome(ctx context.Context) error
}

// Competition 竞赛服务接口：开始、提交订单、结束
type Competition interface {
	StartCompetition(ctx context.Context) error
	SubmitOrder(ctx context.Context, orderID string) (types.SubmitResult, error)
	EndCompetition(ctx context.Context) error
}

// 命令名称，同时也是远程服务的 HTTP 路径
const (
	CmdCurrentTool      = "current_tool"
	CmdChangeTool       = "change_tool"
	CmdPickPart         = "pick_part"
	CmdPlacePart        = "place_part"
	CmdMoveCarrier      = "move_carrier"
	CmdGoHome           = "go_home"
	CmdStartCompetition = "start_competition"
	CmdSubmitOrder      = "submit_order"
	CmdEndCompetition   = "end_competition"
)

// Request 发送到远程服务的请求体，按命令只填写相关字段
type Request struct {
	OrderID     string              `json:"order_id,omitempty"`
	Carrier     int                 `json:"carrier,omitempty"`
	Destination string              `json:"destination,omitempty"`
	Tool        types.Tool          `json:"tool,omitempty"`
	Station     string              `json:"station,omitempty"`
	Location    *types.PartLocation `json:"location,omitempty"`
	Target      *types.PlaceTarget  `json:"target,omitempty"`
}

// Response 远程服务返回的响应体
type Response struct {
	Success bool       `json:"success"`
	Message string     `json:"message,omitempty"`
	Tool    types.Tool `json:"tool,omitempty"`
}
