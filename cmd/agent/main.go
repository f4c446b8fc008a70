package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"copytrade/internal/agent"
	"copytrade/internal/config"
	"copytrade/pkg/utils"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAgent()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := utils.InitLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	terminal := agent.NewBridgeTerminal(cfg.TerminalBridgeURL)

	runner, err := agent.NewRunner(agent.Config{
		Role:              cfg.Role,
		AgentID:           cfg.AgentID,
		OwnerUserID:       cfg.OwnerUserID,
		RelayURL:          cfg.RelayURL,
		Credential:        cfg.Credential,
		MappingPath:       cfg.MappingPath,
		PollInterval:      cfg.PollInterval,
		HeartbeatInterval: cfg.HeartbeatInterval,
		BalanceMaxAge:     cfg.BalanceMaxAge,
	}, terminal, logger)
	if err != nil {
		logger.Fatal("agent setup failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("shutting down agent")
		cancel()
	}()

	if err := runner.Run(ctx); err != nil {
		logger.Fatal("agent stopped with error", zap.Error(err))
	}
	logger.Info("agent exited")
}
