package middleware

import (
	"net/http"

	"copytrade/pkg/ratelimit"
)

// Категории rate limiting на входе relay
const (
	CategorySignal  = "signal"
	CategoryCommand = "command"
)

// NewAPILimiter собирает лимитер входящего трафика.
// Сигналы и командный трафик агентов лимитируются независимо:
// шторм master-событий не должен душить poll/ack slave-агентов.
func NewAPILimiter(signalRate, commandRate float64) *ratelimit.MultiLimiter {
	ml := ratelimit.NewMultiLimiter()
	ml.Add(CategorySignal, signalRate, signalRate*2)
	ml.Add(CategoryCommand, commandRate, commandRate*2)
	return ml
}

// RateLimit - admission-контроль: превышение отвечает 429 сразу,
// запросы внутри relay никогда не ждут токенов
func RateLimit(limiter *ratelimit.MultiLimiter, category string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(category) {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
