package ratelimit

import (
	"context"
	"sync"
	"time"
)

// RateLimiter - token bucket для admission-контроля входящего трафика relay.
//
// Ведро наполняется с постоянной скоростью rate токенов/сек до потолка
// burst; каждый запрос потребляет один токен. Burst важен для master-
// агентов: закрытие корзины позиций рождает пачку событий за один проход
// reconciler, и она должна пройти целиком.
//
// Использование:
//
//	limiter := NewRateLimiter(20, 40) // 20 событий/сек, всплеск до 40
//	if limiter.Allow() { ... }        // неблокирующая проверка
type RateLimiter struct {
	rate       float64 // токенов в секунду
	burst      float64 // ёмкость ведра
	tokens     float64
	lastRefill time.Time
	mu         sync.Mutex
}

// NewRateLimiter создаёт token bucket.
// rate <= 0 заменяется на 10; burst <= 0 - на 2x rate.
func NewRateLimiter(rate, burst float64) *RateLimiter {
	if rate <= 0 {
		rate = 10
	}
	if burst <= 0 {
		burst = rate * 2
	}
	if burst < rate {
		burst = rate
	}

	return &RateLimiter{
		rate:       rate,
		burst:      burst,
		tokens:     burst, // стартуем с полным ведром
		lastRefill: time.Now(),
	}
}

// refill пополняет токены пропорционально прошедшему времени.
// Вызывается только под mu.
func (rl *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(rl.lastRefill).Seconds()

	rl.tokens += elapsed * rl.rate
	if rl.tokens > rl.burst {
		rl.tokens = rl.burst
	}

	rl.lastRefill = now
}

// Allow потребляет токен, если он есть. Не блокирует: admission
// на входе relay отвечает 429 сразу, а не придерживает агента.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()

	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}

	return false
}

// Wait блокирует до получения токена или отмены контекста.
// HTTP-входы relay этим не пользуются; оставлен для фоновых задач,
// которым допустимо ждать (например, массовая рассылка команд).
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		rl.mu.Lock()
		rl.refill()

		if rl.tokens >= 1 {
			rl.tokens--
			rl.mu.Unlock()
			return nil
		}

		waitTime := time.Duration((1 - rl.tokens) / rl.rate * float64(time.Second))
		rl.mu.Unlock()

		select {
		case <-time.After(waitTime):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Tokens возвращает текущий остаток токенов (мониторинг)
func (rl *RateLimiter) Tokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	return rl.tokens
}

// Rate возвращает скорость пополнения, токенов/сек
func (rl *RateLimiter) Rate() float64 {
	return rl.rate
}

// Burst возвращает ёмкость ведра
func (rl *RateLimiter) Burst() float64 {
	return rl.burst
}

// MultiLimiter держит независимые лимитеры по категориям трафика.
// Сигналы master-агентов и poll/ack slave-агентов лимитируются
// раздельно: шторм событий одного потока не душит другой.
type MultiLimiter struct {
	limiters map[string]*RateLimiter
	mu       sync.RWMutex
}

// NewMultiLimiter создаёт пустой MultiLimiter
func NewMultiLimiter() *MultiLimiter {
	return &MultiLimiter{
		limiters: make(map[string]*RateLimiter),
	}
}

// Add регистрирует лимитер категории
func (ml *MultiLimiter) Add(category string, rate, burst float64) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	ml.limiters[category] = NewRateLimiter(rate, burst)
}

// Allow потребляет токен категории.
// Незарегистрированная категория не лимитируется.
func (ml *MultiLimiter) Allow(category string) bool {
	ml.mu.RLock()
	limiter, ok := ml.limiters[category]
	ml.mu.RUnlock()

	if !ok {
		return true
	}

	return limiter.Allow()
}

// Wait ожидает токен категории
func (ml *MultiLimiter) Wait(ctx context.Context, category string) error {
	ml.mu.RLock()
	limiter, ok := ml.limiters[category]
	ml.mu.RUnlock()

	if !ok {
		return nil
	}

	return limiter.Wait(ctx)
}

// Get возвращает лимитер категории (nil, если не зарегистрирован)
func (ml *MultiLimiter) Get(category string) *RateLimiter {
	ml.mu.RLock()
	defer ml.mu.RUnlock()
	return ml.limiters[category]
}
