package config

import (
	"fmt"
	"time"
)

// AgentConfig - конфигурация агентского бинаря
type AgentConfig struct {
	Role        string // master, slave
	AgentID     string
	OwnerUserID string

	RelayURL   string
	Credential string // pair credential (только master)

	TerminalBridgeURL string
	MappingPath       string // bbolt-файл mapping-ов (только slave)

	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	BalanceMaxAge     time.Duration

	Logging LoggingConfig
}

// LoadAgent загружает конфигурацию агента из переменных окружения
func LoadAgent() (*AgentConfig, error) {
	cfg := &AgentConfig{
		Role:        getEnv("AGENT_ROLE", "slave"),
		AgentID:     getEnv("AGENT_ID", ""),
		OwnerUserID: getEnv("OWNER_USER_ID", ""),

		RelayURL:   getEnv("RELAY_URL", "http://localhost:8080"),
		Credential: getEnv("PAIR_CREDENTIAL", ""),

		TerminalBridgeURL: getEnv("TERMINAL_BRIDGE_URL", "http://127.0.0.1:8787"),
		MappingPath:       getEnv("MAPPING_DB_PATH", "mappings.db"),

		PollInterval:      getEnvAsDuration("POLL_INTERVAL", time.Second),
		HeartbeatInterval: getEnvAsDuration("HEARTBEAT_INTERVAL", 30*time.Second),
		BalanceMaxAge:     getEnvAsDuration("BALANCE_MAX_AGE", 5*time.Minute),

		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if cfg.AgentID == "" {
		return nil, fmt.Errorf("AGENT_ID is required")
	}
	if cfg.Role != "master" && cfg.Role != "slave" {
		return nil, fmt.Errorf("AGENT_ROLE must be master or slave, got %q", cfg.Role)
	}
	if cfg.Role == "master" && cfg.Credential == "" {
		return nil, fmt.Errorf("PAIR_CREDENTIAL is required for the master role")
	}

	return cfg, nil
}
