package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Config задает политику повторов.
//
// Экспоненциальный backoff с jitter:
// delay = min(InitialDelay * Multiplier^attempt + jitter, MaxDelay)
//
// Jitter размазывает повторы во времени: после рестарта relay
// агенты не должны ломиться к нему синхронными волнами.
type Config struct {
	// MaxRetries - число попыток, включая первую.
	// 0 или отрицательное = без ограничения.
	MaxRetries int

	// InitialDelay - задержка перед вторым заходом (default 100ms)
	InitialDelay time.Duration

	// MaxDelay - потолок задержки (default 30s)
	MaxDelay time.Duration

	// Multiplier - множитель экспоненты (default 2.0)
	Multiplier float64

	// JitterFactor - доля случайной вариации задержки, 0..1 (default 0.1)
	JitterFactor float64

	// RetryIf решает, имеет ли смысл повтор для данной ошибки.
	// nil = IsRetryable: ошибки, обернутые Permanent, не повторяются.
	RetryIf func(error) bool

	// OnRetry вызывается перед каждым повтором (логирование)
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig - общий профиль: 4 попытки, 100ms/200ms/400ms
func DefaultConfig() Config {
	return Config{
		MaxRetries:   4,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// AggressiveConfig - для подтверждений исполнения (ack): потерянный
// ack приводит к повторной доставке команды, поэтому пробуем чаще
// и дольше. 6 попыток: 50ms/100ms/200ms/400ms/800ms.
func AggressiveConfig() Config {
	return Config{
		MaxRetries:   6,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// ConservativeConfig - для некритичных отчетов (снимки баланса):
// 3 попытки, 500ms/1s. Устаревший снимок уедет следующим циклом.
func ConservativeConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.2,
	}
}

// NetworkConfig - для торговых событий через нестабильную сеть:
// 4 попытки с длинными паузами 1s/2s/4s.
func NetworkConfig() Config {
	return Config{
		MaxRetries:   4,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.2,
	}
}

// validate подставляет значения по умолчанию
func (c *Config) validate() {
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.JitterFactor < 0 {
		c.JitterFactor = 0
	}
	if c.JitterFactor > 1 {
		c.JitterFactor = 1
	}
	if c.RetryIf == nil {
		c.RetryIf = IsRetryable
	}
}

// calculateDelay вычисляет задержку перед попыткой attempt+2
func (c *Config) calculateDelay(attempt int) time.Duration {
	delay := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))

	if delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}

	if c.JitterFactor > 0 {
		jitter := delay * c.JitterFactor * (rand.Float64()*2 - 1)
		delay += jitter
	}

	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}

// Do выполняет операцию с повторами по конфигурации.
// Возвращает nil при успехе либо последнюю ошибку.
//
//	err := retry.Do(ctx, func() error {
//	    return client.SubmitEvent(ctx, event)
//	}, retry.NetworkConfig())
func Do(ctx context.Context, operation func() error, cfg Config) error {
	_, err := DoWithResult(ctx, func() (struct{}, error) {
		return struct{}{}, operation()
	}, cfg)
	return err
}

// DoWithResult - Do для операций, возвращающих значение
func DoWithResult[T any](ctx context.Context, operation func() (T, error), cfg Config) (T, error) {
	cfg.validate()

	var lastErr error
	var zero T

	for attempt := 0; cfg.MaxRetries <= 0 || attempt < cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, ctx.Err()
		default:
		}

		result, err := operation()
		if err == nil {
			return result, nil
		}

		lastErr = err

		if !cfg.RetryIf(err) {
			return zero, err
		}

		// Последняя попытка не ждет
		if cfg.MaxRetries > 0 && attempt >= cfg.MaxRetries-1 {
			break
		}

		delay := cfg.calculateDelay(attempt)

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, delay)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, lastErr
		}
	}

	return zero, lastErr
}

// RetryableError помечает ошибку признаком повторяемости
type RetryableError interface {
	error
	Retryable() bool
}

// IsRetryable - фильтр повторов по умолчанию.
//
// Не повторяются: ошибки контекста, ошибки с Retryable() == false
// (в том числе обернутые Permanent). Все остальное повторяется.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var retryable RetryableError
	if errors.As(err, &retryable) {
		return retryable.Retryable()
	}

	type temporary interface {
		Temporary() bool
	}
	var temp temporary
	if errors.As(err, &temp) {
		return temp.Temporary()
	}

	return true
}

// PermanentError оборачивает ошибку, повтор которой бессмыслен
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

func (e *PermanentError) Retryable() bool {
	return false
}

// Permanent помечает ошибку как неповторяемую.
// Отказ relay по 4xx не лечится повтором: пока не исправлена
// конфигурация, каждый заход кончится так же.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// TemporaryError оборачивает заведомо временную ошибку
type TemporaryError struct {
	Err error
}

func (e *TemporaryError) Error() string {
	return e.Err.Error()
}

func (e *TemporaryError) Unwrap() error {
	return e.Err
}

func (e *TemporaryError) Retryable() bool {
	return true
}

func (e *TemporaryError) Temporary() bool {
	return true
}

// Temporary помечает ошибку как временную
func Temporary(err error) error {
	if err == nil {
		return nil
	}
	return &TemporaryError{Err: err}
}
