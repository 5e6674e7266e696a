// Package api 提供控制器的 HTTP 接口：订单与库存接入、竞赛阶段通知、
// 状态查询、WebSocket 推送和 Prometheus 指标
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ariac-fulfillment/internal/engine"
	"ariac-fulfillment/internal/errs"
	"ariac-fulfillment/internal/types"
	"ariac-fulfillment/internal/web"
)

// Ingress 接收外部事件的一方 (调度器)
type Ingress interface {
	Deliver(ctx context.Context, ev types.InboundEvent) error
	Snapshot() engine.Status
}

// Inventory 库存只读视图
type Inventory interface {
	Bins() []types.PartSignature
	Conveyor() []types.PartSignature
}

// StateView /api/state 的响应体
type StateView struct {
	Scheduler engine.Status   `json:"scheduler"`
	Orders    web.GlobalState `json:"orders"`
	Bins      []string        `json:"bins"`
	Conveyor  []string        `json:"conveyor"`
}

type Server struct {
	ingress   Ingress
	inventory Inventory
	tracker   *web.StateTracker
	hub       *web.Hub
	logger    *slog.Logger
}

func NewServer(ingress Ingress, inventory Inventory, tracker *web.StateTracker, hub *web.Hub, logger *slog.Logger) *Server {
	return &Server{
		ingress:   ingress,
		inventory: inventory,
		tracker:   tracker,
		hub:       hub,
		logger:    logger.With("component", "api"),
	}
}

// Handler 注册全部路由
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if s.hub != nil {
		mux.HandleFunc("/ws", s.hub.ServeWs(func() interface{} { return s.state() }))
	}
	mux.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, s.state())
	})
	mux.HandleFunc("/api/orders", s.handleOrder)
	mux.HandleFunc("/api/inventory/bins", ingest[types.BinInventorySnapshot](s))
	mux.HandleFunc("/api/inventory/conveyor", ingest[types.ConveyorInventorySnapshot](s))
	mux.HandleFunc("/api/competition/state", ingest[types.CompetitionPhaseChanged](s))
	return mux
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var a types.OrderAnnounced
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		s.logger.Warn("解析订单请求失败", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.ingress.Deliver(r.Context(), a); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "id": a.ID})
}

// ingest 通用的事件接入处理：解析请求体并投递到调度器
func ingest[T types.InboundEvent](s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var ev T
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			s.logger.Warn("解析请求失败", "path", r.URL.Path, "error", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.ingress.Deliver(r.Context(), ev); err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusServiceUnavailable
	switch {
	case errors.Is(err, errs.ErrInvalidOrderPayload):
		status = http.StatusBadRequest
	case errors.Is(err, errs.ErrDuplicateOrder), errors.Is(err, errs.ErrCompetitionEnded):
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) state() StateView {
	view := StateView{Scheduler: s.ingress.Snapshot()}
	if s.tracker != nil {
		view.Orders = s.tracker.GetStateSnapshot()
	}
	if s.inventory != nil {
		view.Bins = signatureNames(s.inventory.Bins())
		view.Conveyor = signatureNames(s.inventory.Conveyor())
	}
	return view
}

func signatureNames(sigs []types.PartSignature) []string {
	names := make([]string, 0, len(sigs))
	for _, sig := range sigs {
		names = append(names, sig.String())
	}
	return names
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
