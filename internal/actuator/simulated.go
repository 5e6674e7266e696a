package actuator

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"ariac-fulfillment/internal/errs"
	"ariac-fulfillment/internal/types"
	"ariac-fulfillment/internal/util"
)

// Command 记录一条发给模拟执行器的命令
type Command struct {
	Name    string
	Request Request
}

// Simulated 本地模拟的执行器和竞赛服务
// 它记录收到的每条命令，既用于没有仿真环境时的本地运行，也用于测试断言
type Simulated struct {
	mu          sync.Mutex
	tool        types.Tool
	commands    []Command
	rejections  map[string]string // 订单 ID -> 拒绝原因
	delay       time.Duration
	failureRate float64
	rnd         *rand.Rand
	logger      *slog.Logger
}

// NewSimulated 创建模拟执行器，failureRate 为命令随机失败的概率
func NewSimulated(logger *slog.Logger, delay time.Duration, failureRate float64) *Simulated {
	return &Simulated{
		rejections:  make(map[string]string),
		delay:       delay,
		failureRate: failureRate,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:      logger.With("component", "simulated-actuator"),
	}
}

// MountTool 直接设置当前夹爪，模拟初始状态
func (s *Simulated) MountTool(tool types.Tool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tool = tool
}

// RejectSubmission 让指定订单的提交返回失败
func (s *Simulated) RejectSubmission(orderID, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejections[orderID] = message
}

// Commands 返回已收到命令的副本
func (s *Simulated) Commands() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Command, len(s.commands))
	copy(out, s.commands)
	return out
}

// CommandNames 只返回命令名称，便于断言顺序
func (s *Simulated) CommandNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.commands))
	for _, c := range s.commands {
		names = append(names, c.Name)
	}
	return names
}

// execute 模拟一次阻塞的命令往返
func (s *Simulated) execute(ctx context.Context, name string, req Request) error {
	logger := util.Logger(ctx, s.logger)

	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.delay):
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, Command{Name: name, Request: req})

	if s.failureRate > 0 && s.rnd.Float64() < s.failureRate {
		logger.Warn("模拟命令失败", "command", name)
		return errs.CallFailed(name, "模拟设备故障")
	}
	logger.Debug("模拟命令完成", "command", name)
	return nil
}

func (s *Simulated) CurrentTool(ctx context.Context) (types.Tool, error) {
	if err := ctx.Err(); err != nil {
		return types.ToolNone, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tool, nil
}

func (s *Simulated) ChangeTool(ctx context.Context, tool types.Tool, station string) error {
	if err := s.execute(ctx, CmdChangeTool, Request{Tool: tool, Station: station}); err != nil {
		return err
	}
	s.mu.Lock()
	s.tool = tool
	s.mu.Unlock()
	return nil
}

func (s *Simulated) PickPart(ctx context.Context, loc types.PartLocation) error {
	return s.execute(ctx, CmdPickPart, Request{Location: &loc})
}

func (s *Simulated) PlacePart(ctx context.Context, target types.PlaceTarget) error {
	return s.execute(ctx, CmdPlacePart, Request{Target: &target})
}

func (s *Simulated) MoveCarrier(ctx context.Context, carrier int, destination string) error {
	return s.execute(ctx, CmdMoveCarrier, Request{Carrier: carrier, Destination: destination})
}

func (s *Simulated) GoHome(ctx context.Context) error {
	return s.execute(ctx, CmdGoHome, Request{})
}

func (s *Simulated) StartCompetition(ctx context.Context) error {
	return s.execute(ctx, CmdStartCompetition, Request{})
}

// SubmitOrder 提交本身不会随机失败，只有被 RejectSubmission 标记的订单返回失败
func (s *Simulated) SubmitOrder(ctx context.Context, orderID string) (types.SubmitResult, error) {
	if err := ctx.Err(); err != nil {
		return types.SubmitResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, Command{Name: CmdSubmitOrder, Request: Request{OrderID: orderID}})
	if msg, rejected := s.rejections[orderID]; rejected {
		return types.SubmitResult{Success: false, Message: msg}, nil
	}
	return types.SubmitResult{Success: true, Message: "order submitted"}, nil
}

func (s *Simulated) EndCompetition(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, Command{Name: CmdEndCompetition})
	return nil
}
