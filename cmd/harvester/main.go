package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/JakeFAU/sam-opportunity-harvester/internal/app"
	"github.com/JakeFAU/sam-opportunity-harvester/internal/config"
	"github.com/JakeFAU/sam-opportunity-harvester/internal/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		return 1
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		return 1
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	harvester, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("harvester init failed", zap.Error(err))
		return 1
	}
	defer harvester.Close()

	stats, err := harvester.Run(ctx)
	if err != nil {
		logger.Error("harvest aborted",
			zap.String("run_id", stats.RunID),
			zap.Int("emitted", stats.Emitted),
			zap.Error(err))
		return 1
	}
	logger.Info("harvest finished",
		zap.String("run_id", stats.RunID),
		zap.Int("emitted", stats.Emitted),
		zap.Int("failed_records", stats.FailedRecords))
	return 0
}
