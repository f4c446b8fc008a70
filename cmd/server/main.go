package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"copytrade/internal/api"
	"copytrade/internal/api/middleware"
	"copytrade/internal/config"
	"copytrade/internal/queue"
	"copytrade/internal/repository"
	"copytrade/internal/service"
	"copytrade/internal/websocket"
	"copytrade/pkg/utils"

	_ "github.com/lib/pq"
)

func main() {
	// .env опционален: в проде конфигурация приходит окружением
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := utils.InitLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	db, err := initDatabase(cfg)
	if err != nil {
		logger.Fatal("database connection failed",
			zap.String("dsn", cfg.Database.DSNWithoutPassword()),
			zap.Error(err))
	}
	defer db.Close()
	logger.Info("connected to database", zap.String("dsn", cfg.Database.DSNWithoutPassword()))

	// Репозитории
	pairRepo := repository.NewPairRepository(db)
	livenessRepo := repository.NewLivenessRepository(db)
	historyRepo := repository.NewHistoryRepository(db, cfg.Relay.HistoryRetention)

	// Очередь команд живет в памяти: команды устаревают быстрее,
	// чем имеет смысл их переживание рестарта relay
	queueManager := queue.NewManager(cfg.Relay.QueueDepth, cfg.Relay.DeliveryTimeout)

	hub := websocket.NewHub()
	go hub.Run()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Сервисы
	historyService := service.NewHistoryService(historyRepo, hub, logger)
	agentService := service.NewAgentService(livenessRepo, hub, cfg.Relay.HeartbeatGrace, cfg.Relay.BalanceMaxAge, logger)
	pairService := service.NewPairService(pairRepo, queueManager, []byte(cfg.Security.EncryptionKey), logger)
	signalService := service.NewSignalService(pairRepo, livenessRepo, queueManager, agentService, historyService, logger)

	go agentService.RunStaleSweeper(ctx)

	deps := &api.Dependencies{
		SignalService:  signalService,
		PairService:    pairService,
		AgentService:   agentService,
		HistoryService: historyService,
		Queue:          queueManager,
		Hub:            hub,
		AdminKeyHash:   cfg.Security.AdminKeyHash,
		Limiter:        middleware.NewAPILimiter(cfg.Relay.SignalRatePerSec, cfg.Relay.CommandRatePerSec),
	}

	router := api.SetupRoutes(deps)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting relay server", zap.String("addr", server.Addr))
		if cfg.Server.UseHTTPS {
			if err := server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile); err != nil && err != http.ErrServerClosed {
				logger.Fatal("server failed", zap.Error(err))
			}
		} else {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatal("server failed", zap.Error(err))
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down relay server")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("relay server exited")
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
