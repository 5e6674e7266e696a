package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ariac-fulfillment/internal/actuator"
)

// main 是竞赛桥接模拟服务的入口，控制器配置 competition.remote_addr 后即可连接
func main() {
	var (
		port        int
		failureRate float64
		delayMs     int
		rejects     []string
	)

	cmd := &cobra.Command{
		Use:          "competition-sim",
		Short:        "Simulated competition bridge serving robot and scoring commands over HTTP",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if failureRate < 0 || failureRate > 1 {
				return fmt.Errorf("failure-rate must be within [0, 1], got %v", failureRate)
			}
			return serve(port, failureRate, time.Duration(delayMs)*time.Millisecond, rejects)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 9090, "listen port")
	cmd.Flags().Float64Var(&failureRate, "failure-rate", 0.05, "probability that a robot command fails")
	cmd.Flags().IntVar(&delayMs, "delay-ms", 200, "simulated duration of each robot command")
	cmd.Flags().StringSliceVar(&rejects, "reject", nil, "order IDs whose submission is rejected")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(port int, failureRate float64, delay time.Duration, rejects []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "competition-sim")
	slog.SetDefault(logger)

	sim := actuator.NewSimulated(logger, delay, failureRate)
	for _, id := range rejects {
		sim.RejectSubmission(id, "submission rejected by referee")
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: actuator.NewSimulatorHandler(sim, logger),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("=== 竞赛模拟服务启动 ===", "addr", srv.Addr, "failure_rate", failureRate, "delay", delay)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("服务启动失败", "error", err)
		return err
	}
	logger.Info("竞赛模拟服务已退出", "commands", len(sim.Commands()))
	return nil
}
