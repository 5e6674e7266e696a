package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ariac-fulfillment/internal/actuator"
	"ariac-fulfillment/internal/admission"
	"ariac-fulfillment/internal/api"
	"ariac-fulfillment/internal/config"
	"ariac-fulfillment/internal/engine"
	"ariac-fulfillment/internal/event"
	"ariac-fulfillment/internal/handlers"
	"ariac-fulfillment/internal/inventory"
	"ariac-fulfillment/internal/persistence"
	"ariac-fulfillment/internal/scenario"
	"ariac-fulfillment/internal/web"
)

// main 是订单调度控制器的入口
func main() {
	root := &cobra.Command{
		Use:   "controller",
		Short: "ARIAC order fulfillment controller",
	}
	root.AddCommand(newRunCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRunCommand() *cobra.Command {
	var configPath, scenarioPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler and the HTTP ingress",
		Long: `Receives orders, inventory snapshots and competition phase changes,
schedules orders by priority and drives the robot until every order is submitted.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, scenarioPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (default ./config.yaml)")
	cmd.Flags().StringVarP(&scenarioPath, "scenario", "s", "", "scenario file to replay")
	return cmd
}

func run(configPath, scenarioPath string) error {
	// 1. 加载配置并初始化日志
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		slog.Error("加载配置失败", "error", err)
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	var sc *scenario.Scenario
	if scenarioPath != "" {
		if sc, err = scenario.Load(scenarioPath); err != nil {
			logger.Error("加载场景失败", "error", err)
			return err
		}
	}

	// 2. 初始化核心组件
	done := make(chan struct{})
	hub := web.NewHub(logger)
	go hub.Run(done)
	stateTracker := web.NewStateTracker(hub)

	eventBus := event.NewBus()
	handlers.RegisterEventHandlers(eventBus, stateTracker, logger)

	var wal *persistence.WAL
	if cfg.WALPath != "" {
		if wal, err = persistence.NewWAL(cfg.WALPath); err != nil {
			logger.Error("无法初始化 WAL", "error", err)
			return err
		}
		defer wal.Close()
	}

	arm, comp := newActuator(cfg, logger)

	// 3. 初始化引擎和调度器
	index := inventory.NewIndex()
	dispatcher := engine.NewDispatcher(index, arm, engine.NewCarrierPool(), logger, eventBus)
	gate := engine.NewSubmissionGate(comp, logger)
	scheduler := engine.NewScheduler(index, dispatcher, gate, comp, wal, eventBus, cfg.TickInterval(), logger)

	checker, err := admission.New(cfg.Admission.Rules, logger)
	if err != nil {
		logger.Error("编译准入规则失败", "error", err)
		return err
	}
	scheduler.SetAdmission(checker)

	// 4. 恢复和启动
	if err := scheduler.Recover(); err != nil {
		logger.Warn("从 WAL 恢复订单失败", "error", err)
	}

	logger.Info("=== ARIAC 订单调度控制器启动 ===", "listen_addr", cfg.ListenAddr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.NewServer(scheduler, index, stateTracker, hub, logger).Handler(),
	}
	go startAPIServer(srv, logger)

	if sc != nil {
		go func() {
			if err := sc.Play(ctx, scheduler, logger); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("场景回放中断", "error", err)
			}
		}()
	}

	runErr := scheduler.Run(ctx)

	// 5. 优雅停机
	shutdown(srv, done, eventBus, logger)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// newActuator 配置了远程地址时连接竞赛桥接服务，否则使用本地模拟执行器
func newActuator(cfg *config.Config, logger *slog.Logger) (actuator.Actuator, actuator.Competition) {
	if addr := cfg.Competition.RemoteAddr; addr != "" {
		logger.Info("使用远程竞赛服务", "addr", addr)
		remote := actuator.NewRemote(addr, cfg.RemoteOptions(), logger)
		return remote, remote
	}
	logger.Info("使用本地模拟执行器", "failure_rate", cfg.Simulation.FailureRate)
	sim := actuator.NewSimulated(logger, cfg.CommandDelay(), cfg.Simulation.FailureRate)
	return sim, sim
}

// startAPIServer 启动 API 和 Web 服务器
func startAPIServer(srv *http.Server, logger *slog.Logger) {
	logger.Info("API 服务器启动", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("API 服务器启动失败", "error", err)
	}
}

func shutdown(srv *http.Server, done chan struct{}, bus *event.Bus, logger *slog.Logger) {
	logger.Info("正在优雅关闭...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("关闭 API 服务器失败", "error", err)
	}
	close(done)
	bus.Wait()
	bus.Close()
	logger.Info("控制器已安全退出")
}
