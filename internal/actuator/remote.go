package actuator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"ariac-fulfillment/internal/errs"
	"ariac-fulfillment/internal/types"
	"ariac-fulfillment/internal/util"

	"github.com/sony/gobreaker"
)

// RemoteOptions 远程客户端的超时、重试和熔断参数
type RemoteOptions struct {
	Timeout          time.Duration // 单次 HTTP 请求超时
	RetryBackoff     time.Duration // 服务不可用时的固定重试间隔
	FailureThreshold uint32        // 连续失败多少次后熔断
	OpenTimeout      time.Duration // 熔断后多久进入半开状态
}

// Remote 通过 HTTP 调用竞赛桥接服务的客户端
// 它同时实现 Actuator 和 Competition，调度层可以像对待本地模拟器一样对待它
type Remote struct {
	Endpoint string       // 远程服务的地址 (e.g., http://localhost:9090)
	Client   *http.Client // HTTP 客户端
	breaker  *gobreaker.CircuitBreaker
	backoff  time.Duration
	logger   *slog.Logger
}

// NewRemote 创建一个新的远程客户端
func NewRemote(endpoint string, opts RemoteOptions, logger *slog.Logger) *Remote {
	logger = logger.With("component", "remote-actuator", "endpoint", endpoint)
	settings := gobreaker.Settings{
		Name:        "competition-bridge",
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("熔断器状态变化", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &Remote{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: opts.Timeout},
		breaker:  gobreaker.NewCircuitBreaker(settings),
		backoff:  opts.RetryBackoff,
		logger:   logger,
	}
}

// call 发送命令；服务不可用时按固定间隔重试，直到成功或 ctx 被取消
func (r *Remote) call(ctx context.Context, command string, req Request) (*Response, error) {
	logger := util.Logger(ctx, r.logger).With("command", command)

	for attempt := 1; ; attempt++ {
		out, err := r.breaker.Execute(func() (interface{}, error) {
			return r.post(ctx, command, req)
		})
		if err == nil {
			resp := out.(*Response)
			if !resp.Success {
				logger.Warn("远程命令执行失败", "message", resp.Message)
				return resp, errs.CallFailed(command, resp.Message)
			}
			return resp, nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = errs.Unavailable(command, err)
		}
		if !errors.Is(err, errs.ErrServiceUnavailable) {
			return nil, err
		}

		logger.Info("服务不可用，等待重试", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.backoff):
		}
	}
}

func (r *Remote) post(ctx context.Context, command string, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", command, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint+"/"+command, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", command, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	// 将 Trace ID 放入 HTTP Header 中，实现跨服务追踪
	if traceID, ok := util.TraceIDFromContext(ctx); ok {
		httpReq.Header.Set(util.TraceHeader, traceID)
	}

	resp, err := r.Client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.Unavailable(command, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusServiceUnavailable:
		return nil, errs.Unavailable(command, fmt.Errorf("status %s", resp.Status))
	case resp.StatusCode != http.StatusOK:
		return nil, errs.CallFailed(command, resp.Status)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", command, err)
	}
	return &out, nil
}

func (r *Remote) CurrentTool(ctx context.Context) (types.Tool, error) {
	resp, err := r.call(ctx, CmdCurrentTool, Request{})
	if err != nil {
		return types.ToolNone, err
	}
	return resp.Tool, nil
}

func (r *Remote) ChangeTool(ctx context.Context, tool types.Tool, station string) error {
	_, err := r.call(ctx, CmdChangeTool, Request{Tool: tool, Station: station})
	return err
}

func (r *Remote) PickPart(ctx context.Context, loc types.PartLocation) error {
	_, err := r.call(ctx, CmdPickPart, Request{Location: &loc})
	return err
}

func (r *Remote) PlacePart(ctx context.Context, target types.PlaceTarget) error {
	_, err := r.call(ctx, CmdPlacePart, Request{Target: &target})
	return err
}

func (r *Remote) MoveCarrier(ctx context.Context, carrier int, destination string) error {
	_, err := r.call(ctx, CmdMoveCarrier, Request{Carrier: carrier, Destination: destination})
	return err
}

func (r *Remote) GoHome(ctx context.Context) error {
	_, err := r.call(ctx, CmdGoHome, Request{})
	return err
}

func (r *Remote) StartCompetition(ctx context.Context) error {
	_, err := r.call(ctx, CmdStartCompetition, Request{})
	return err
}

// SubmitOrder 评分服务拒绝提交不算调用错误，结果通过 SubmitResult 返回
func (r *Remote) SubmitOrder(ctx context.Context, orderID string) (types.SubmitResult, error) {
	resp, err := r.call(ctx, CmdSubmitOrder, Request{OrderID: orderID})
	if err != nil {
		if resp != nil && errors.Is(err, errs.ErrServiceCallFailed) {
			return types.SubmitResult{Success: false, Message: resp.Message}, nil
		}
		return types.SubmitResult{}, err
	}
	return types.SubmitResult{Success: true, Message: resp.Message}, nil
}

func (r *Remote) EndCompetition(ctx context.Context) error {
	_, err := r.call(ctx, CmdEndCompetition, Request{})
	return err
}
