package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/popswap/gopopswap/internal/api"
	"github.com/popswap/gopopswap/internal/app"
	"github.com/popswap/gopopswap/internal/chain"
	"github.com/popswap/gopopswap/internal/metrics"
	"github.com/popswap/gopopswap/pkg/config"
	"github.com/popswap/gopopswap/pkg/logger"
)

func main() {
	// Load .env (best-effort). If missing, fall back to real env vars.
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", os.Getenv("POPSWAP_CONFIG"), "config file (.yaml/.yml/.json), empty = env only")
		listenAddr = flag.String("listen", "", "HTTP listen address (overrides config)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	if *listenAddr != "" {
		cfg.Server.Listen = *listenAddr
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputFile: cfg.LogFile,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   true,
	}); err != nil {
		fatal(fmt.Errorf("初始化日志失败: %w", err))
	}

	if err := run(cfg); err != nil {
		logger.Errorf("退出: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}

	if cfg.Server.MetricsListen != "" {
		debugSrv, err := metrics.Serve(cfg.Server.MetricsListen)
		if err != nil {
			logger.Warnf("调试服务启动失败: %v", err)
		} else {
			a.Shutdown.OnShutdown("metrics", metrics.Shutdown(debugSrv))
		}
	}

	srv := api.New(api.Config{
		NewController: a.NewController,
		History:       a.History,
		Wallet:        a.Wallet,
		ActionTimeout: cfg.Chain.ConfirmTimeout + time.Minute,
	})
	a.Shutdown.OnShutdown("api", srv.Close)

	httpSrv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.Shutdown.OnShutdown("http", httpSrv.Shutdown)

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("popswap 监听 %s（网络 %s）", cfg.Server.Listen, chain.NetworkLabel(a.PrimaryChain))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	var runErr error
	select {
	case sig := <-stopCh:
		logger.Infof("收到信号 %s", sig)
	case runErr = <-errCh:
		logger.Errorf("HTTP 服务异常: %v", runErr)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := a.Shutdown.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}
