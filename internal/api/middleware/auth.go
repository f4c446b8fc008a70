package middleware

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"copytrade/pkg/crypto"
)

// AdminAuth - middleware для защиты административных endpoints
// (управление парами, очистка журналов, просмотр агентов).
//
// Ключ администратора передается в заголовке:
//
//	Authorization: Bearer <admin key>
//
// В конфигурации relay хранится только bcrypt-хеш ключа
// (ADMIN_KEY_HASH); открытый ключ сервер не знает.
//
// Агентские endpoints (signal, poll/ack, heartbeat) этим middleware
// не защищаются: агенты аутентифицируются pair credential.
func AdminAuth(adminKeyHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := bearerToken(r)
			if key == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if err := crypto.VerifyKey(key, adminKeyHash); err != nil {
				zap.L().Warn("admin auth rejected",
					zap.String("remote", r.RemoteAddr),
					zap.String("path", r.URL.Path))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken извлекает токен из заголовка Authorization
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
