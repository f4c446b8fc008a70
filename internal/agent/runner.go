package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Роли агента
const (
	RoleMaster = "master"
	RoleSlave  = "slave"
)

// Config - параметры запуска агента
type Config struct {
	Role        string
	AgentID     string
	OwnerUserID string

	RelayURL   string
	Credential string // для master: credential пары

	// Путь bbolt-файла для mapping-ов; пусто - in-memory (master
	// mapping-и не ведет, ему хранилище не нужно)
	MappingPath string

	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	BalanceMaxAge     time.Duration
}

// Runner собирает компоненты агента по роли и управляет их жизненным
// циклом. Master: reconciler + reporter. Slave: executor + reporter.
type Runner struct {
	cfg      Config
	terminal Terminal
	client   *RelayClient
	store    MappingStore
	logger   *zap.Logger
}

// NewRunner валидирует конфигурацию и открывает mapping-хранилище
func NewRunner(cfg Config, terminal Terminal, logger *zap.Logger) (*Runner, error) {
	if cfg.Role != RoleMaster && cfg.Role != RoleSlave {
		return nil, fmt.Errorf("неизвестная роль агента: %q", cfg.Role)
	}
	if cfg.AgentID == "" {
		return nil, fmt.Errorf("agent id обязателен")
	}
	if cfg.RelayURL == "" {
		return nil, fmt.Errorf("relay url обязателен")
	}
	if cfg.Role == RoleMaster && cfg.Credential == "" {
		return nil, fmt.Errorf("master-агенту обязателен credential пары")
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.BalanceMaxAge <= 0 {
		cfg.BalanceMaxAge = 5 * time.Minute
	}

	var store MappingStore
	if cfg.Role == RoleSlave {
		if cfg.MappingPath != "" {
			bolt, err := NewBoltMappingStore(cfg.MappingPath)
			if err != nil {
				return nil, fmt.Errorf("открытие mapping-хранилища: %w", err)
			}
			store = bolt
		} else {
			store = NewMemoryMappingStore()
		}
	}

	return &Runner{
		cfg:      cfg,
		terminal: terminal,
		client:   NewRelayClient(cfg.RelayURL, cfg.Credential),
		store:    store,
		logger:   logger,
	}, nil
}

// Run запускает компоненты и блокируется до отмены контекста
func (r *Runner) Run(ctx context.Context) error {
	reporter := NewReporter(r.terminal, r.client, r.cfg.AgentID, r.cfg.OwnerUserID, r.cfg.BalanceMaxAge, r.logger)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		reporter.Run(ctx, r.cfg.HeartbeatInterval)
	}()

	switch r.cfg.Role {
	case RoleMaster:
		reconciler := NewReconciler(r.terminal, r.client, r.cfg.AgentID, r.logger)
		reconciler.OnTrade(reporter.ForcePush)
		r.logger.Info("master agent started",
			zap.String("agent_id", r.cfg.AgentID),
			zap.Duration("poll_interval", r.cfg.PollInterval))

		wg.Add(1)
		go func() {
			defer wg.Done()
			reconciler.Run(ctx, r.cfg.PollInterval)
		}()

	case RoleSlave:
		executor := NewExecutor(r.terminal, r.client, r.store, r.cfg.AgentID, r.logger)
		executor.OnTrade(reporter.ForcePush)
		r.logger.Info("slave agent started",
			zap.String("agent_id", r.cfg.AgentID),
			zap.Duration("poll_interval", r.cfg.PollInterval))

		wg.Add(1)
		go func() {
			defer wg.Done()
			executor.Run(ctx, r.cfg.PollInterval)
		}()
	}

	wg.Wait()
	return r.Close()
}

// Close освобождает ресурсы агента
func (r *Runner) Close() error {
	if r.store != nil {
		return r.store.Close()
	}
	return nil
}
