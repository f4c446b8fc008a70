package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config содержит всю конфигурацию relay-сервера
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Security SecurityConfig
	Relay    RelayConfig
	Logging  LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port     int
	Host     string
	UseHTTPS bool
	CertFile string
	KeyFile  string
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	EncryptionKey string // AES-256 ключ для шифрования credentials пар в БД
	AdminKeyHash  string // bcrypt-хеш админского ключа для защищенных endpoints
}

// RelayConfig - настройки ядра синхронизации сигналов
type RelayConfig struct {
	// Очередь команд
	QueueDepth      int           // глубина FIFO очереди на агента
	DeliveryTimeout time.Duration // окно доставки: delivered без ack снова становится eligible

	// Живость агентов
	HeartbeatGrace time.Duration // без heartbeat дольше этого окна агент считается offline

	// Баланс
	BalanceMaxAge      time.Duration // потолок возраста баланса (условие push по времени)
	BalanceDriftPct    float64       // относительный порог изменения balance/equity, %
	BalanceAdviceCache time.Duration // срок клиентского кэша ответа balance-update-needed

	// История
	HistoryRetention int // сколько последних записей хранить

	// Rate limiting: только admission на входе, внутри relay блокировок нет
	SignalRatePerSec  float64 // сигналы master-агентов
	CommandRatePerSec float64 // poll/ack slave-агентов
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnvAsInt("SERVER_PORT", 8080),
			Host:     getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS: getEnvAsBool("USE_HTTPS", false),
			CertFile: getEnv("CERT_FILE", ""),
			KeyFile:  getEnv("KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "copytrade"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Security: SecurityConfig{
			EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
			AdminKeyHash:  getEnv("ADMIN_KEY_HASH", ""),
		},
		Relay: RelayConfig{
			QueueDepth:      getEnvAsInt("QUEUE_DEPTH", 50),
			DeliveryTimeout: getEnvAsDuration("DELIVERY_TIMEOUT", 30*time.Second),

			HeartbeatGrace: getEnvAsDuration("HEARTBEAT_GRACE", 90*time.Second),

			BalanceMaxAge:      getEnvAsDuration("BALANCE_MAX_AGE", 5*time.Minute),
			BalanceDriftPct:    getEnvAsFloat("BALANCE_DRIFT_PCT", 0.5),
			BalanceAdviceCache: getEnvAsDuration("BALANCE_ADVICE_CACHE", 60*time.Second),

			HistoryRetention: getEnvAsInt("HISTORY_RETENTION", 1000),

			SignalRatePerSec:  getEnvAsFloat("SIGNAL_RATE_PER_SEC", 20),
			CommandRatePerSec: getEnvAsFloat("COMMAND_RATE_PER_SEC", 50),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Валидация критичных параметров безопасности
	if err := cfg.validateSecurity(); err != nil {
		return nil, err
	}

	// Валидация числовых диапазонов
	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateSecurity проверяет параметры безопасности
func (c *Config) validateSecurity() error {
	// ENCRYPTION_KEY обязателен для шифрования credentials пар
	if c.Security.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required for encrypting pair credentials")
	}

	if len(c.Security.EncryptionKey) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}

	// ADMIN_KEY_HASH обязателен: без него admin endpoints недоступны
	if c.Security.AdminKeyHash == "" {
		return fmt.Errorf("ADMIN_KEY_HASH is required to protect admin endpoints")
	}

	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	// Валидация портов
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	// Очередь: хотя бы одна команда, разумный потолок
	if c.Relay.QueueDepth < 1 {
		return fmt.Errorf("QUEUE_DEPTH must be positive, got %d", c.Relay.QueueDepth)
	}

	if c.Relay.QueueDepth > 1000 {
		return fmt.Errorf("QUEUE_DEPTH should not exceed 1000, got %d", c.Relay.QueueDepth)
	}

	// Таймауты должны быть положительными
	if c.Relay.DeliveryTimeout <= 0 {
		return fmt.Errorf("DELIVERY_TIMEOUT must be positive, got %v", c.Relay.DeliveryTimeout)
	}

	if c.Relay.HeartbeatGrace <= 0 {
		return fmt.Errorf("HEARTBEAT_GRACE must be positive, got %v", c.Relay.HeartbeatGrace)
	}

	if c.Relay.BalanceMaxAge <= 0 {
		return fmt.Errorf("BALANCE_MAX_AGE must be positive, got %v", c.Relay.BalanceMaxAge)
	}

	if c.Relay.BalanceDriftPct <= 0 {
		return fmt.Errorf("BALANCE_DRIFT_PCT must be positive, got %v", c.Relay.BalanceDriftPct)
	}

	if c.Relay.HistoryRetention < 1 {
		return fmt.Errorf("HISTORY_RETENTION must be positive, got %d", c.Relay.HistoryRetention)
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
