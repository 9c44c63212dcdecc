package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

// AdminTokenHeader - альтернатива параметру ?token= для скриптов
const AdminTokenHeader = "X-Admin-Token"

// ExtractToken достает статический токен из запроса.
//
// Порядок поиска:
// 1. query-параметр token (cron-сервисы, браузер, websocket)
// 2. заголовок X-Admin-Token
// 3. заголовок Authorization: Bearer <token>
func ExtractToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if token := r.Header.Get(AdminTokenHeader); token != "" {
		return token
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

// TokenAuth - middleware для endpoints со статическим токеном
//
// Назначение:
// Защищает /cron, /admin, /api/v1/* и /ws/stream.
// Токены задаются в конфигурации (CRON_TOKEN, ADMIN_PANEL_TOKEN).
//
// Безопасность:
// - Использует constant-time сравнение для предотвращения timing attacks
// - Пустой ожидаемый токен запрещает доступ полностью
//
// deny формирует ответ 403; nil дает JSON {"error":"forbidden"}.
func TokenAuth(expected string, deny http.HandlerFunc) mux.MiddlewareFunc {
	if deny == nil {
		deny = forbiddenJSON
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractToken(r)
			if expected == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
				deny(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func forbiddenJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	w.Write([]byte(`{"error":"forbidden"}` + "\n"))
}
