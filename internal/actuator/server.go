package actuator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"ariac-fulfillment/internal/errs"
	"ariac-fulfillment/internal/util"
)

// NewSimulatorHandler 用模拟执行器提供与 Remote 相同的 HTTP 协议：
// 每条命令一个 POST 路径，请求体为 Request，响应体为 Response
func NewSimulatorHandler(sim *Simulated, logger *slog.Logger) http.Handler {
	logger = logger.With("component", "competition-sim")
	mux := http.NewServeMux()

	handle := func(command string, fn func(ctx context.Context, req Request) (Response, error)) {
		mux.HandleFunc("/"+command, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
				return
			}
			var req Request
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				logger.Warn("解析请求失败", "command", command, "error", err)
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}

			// 从 HTTP Header 中提取 Trace ID，用于链路追踪
			ctx := r.Context()
			reqLogger := logger.With("command", command)
			if traceID := r.Header.Get(util.TraceHeader); traceID != "" {
				ctx = util.ContextWithTraceID(ctx, traceID)
				reqLogger = reqLogger.With("trace_id", traceID)
			}

			resp, err := fn(ctx, req)
			switch {
			case errors.Is(err, errInvalidRequest):
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			case err != nil:
				reqLogger.Warn("命令失败", "error", err)
				resp = Response{Success: false, Message: failureMessage(err)}
			default:
				reqLogger.Info("命令完成")
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(resp)
		})
	}

	ok := func(err error) (Response, error) { return Response{Success: true}, err }

	handle(CmdCurrentTool, func(ctx context.Context, req Request) (Response, error) {
		tool, err := sim.CurrentTool(ctx)
		return Response{Success: true, Tool: tool}, err
	})
	handle(CmdChangeTool, func(ctx context.Context, req Request) (Response, error) {
		return ok(sim.ChangeTool(ctx, req.Tool, req.Station))
	})
	handle(CmdPickPart, func(ctx context.Context, req Request) (Response, error) {
		if req.Location == nil {
			return Response{}, errInvalidRequest
		}
		return ok(sim.PickPart(ctx, *req.Location))
	})
	handle(CmdPlacePart, func(ctx context.Context, req Request) (Response, error) {
		if req.Target == nil {
			return Response{}, errInvalidRequest
		}
		return ok(sim.PlacePart(ctx, *req.Target))
	})
	handle(CmdMoveCarrier, func(ctx context.Context, req Request) (Response, error) {
		if req.Carrier < 1 || req.Carrier > 4 || req.Destination == "" {
			return Response{}, errInvalidRequest
		}
		return ok(sim.MoveCarrier(ctx, req.Carrier, req.Destination))
	})
	handle(CmdGoHome, func(ctx context.Context, req Request) (Response, error) {
		return ok(sim.GoHome(ctx))
	})
	handle(CmdStartCompetition, func(ctx context.Context, req Request) (Response, error) {
		return ok(sim.StartCompetition(ctx))
	})
	handle(CmdSubmitOrder, func(ctx context.Context, req Request) (Response, error) {
		if req.OrderID == "" {
			return Response{}, errInvalidRequest
		}
		res, err := sim.SubmitOrder(ctx, req.OrderID)
		if err != nil {
			return Response{}, err
		}
		return Response{Success: res.Success, Message: res.Message}, nil
	})
	handle(CmdEndCompetition, func(ctx context.Context, req Request) (Response, error) {
		return ok(sim.EndCompetition(ctx))
	})
	return mux
}

var errInvalidRequest = errors.New("invalid request")

func failureMessage(err error) string {
	var se *errs.ServiceError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return err.Error()
}

// 编译期检查
var (
	_ Actuator    = (*Simulated)(nil)
	_ Competition = (*Simulated)(nil)
	_ Actuator    = (*Remote)(nil)
	_ Competition = (*Remote)(nil)
)
