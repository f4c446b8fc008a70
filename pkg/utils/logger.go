package utils

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logger.go - настройка логирования
//
// Назначение:
// Инициализация структурированного логирования на zap.
//
// Формат json предназначен для production (агрегация логов),
// console - для локальной разработки. Уровень и формат приходят
// из конфигурации (LOG_LEVEL, LOG_FORMAT).

// InitLogger создает и настраивает logger.
//
// Параметры:
//   - level: debug, info, warn, error
//   - format: json или console
//
// Созданный logger устанавливается глобальным (zap.ReplaceGlobals),
// чтобы пакеты без явной зависимости могли писать через zap.L().
func InitLogger(level, format string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("unknown log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch format {
	case "console":
		cfg = zap.NewDevelopmentConfig()
	case "json", "":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	zap.ReplaceGlobals(logger)
	return logger, nil
}
