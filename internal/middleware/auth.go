// Package middleware содержит HTTP middleware для сервиса биллинга.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"net/http"
	"strings"
)

type contextKey string

const operatorKey contextKey = "operator"

const bearerPrefix = "Bearer "

// AdminAuth проверяет токен администратора в заголовке Authorization.
type AdminAuth struct {
	token []byte
}

// NewAdminAuth создаёт проверку токена. Пустой токен отключает проверку.
func NewAdminAuth(token string) *AdminAuth {
	return &AdminAuth{token: []byte(token)}
}

// Enabled сообщает, включена ли проверка токена.
func (a *AdminAuth) Enabled() bool {
	return len(a.token) > 0
}

// Middleware пропускает запрос, только если передан верный токен, и сохраняет имя оператора в контексте.
func (a *AdminAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, bearerPrefix) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		if !a.valid(strings.TrimPrefix(header, bearerPrefix)) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		operator := r.Header.Get("X-Operator")
		if operator == "" {
			operator = "admin"
		}

		ctx := context.WithValue(r.Context(), operatorKey, operator)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// valid сравнивает HMAC-дайджесты токенов за постоянное время.
func (a *AdminAuth) valid(token string) bool {
	return hmac.Equal(a.digest([]byte(token)), a.digest(a.token))
}

func (a *AdminAuth) digest(b []byte) []byte {
	mac := hmac.New(sha256.New, a.token)
	mac.Write(b)
	return mac.Sum(nil)
}

// GetOperatorFromContext извлекает имя оператора из контекста запроса.
func GetOperatorFromContext(ctx context.Context) (string, bool) {
	op, ok := ctx.Value(operatorKey).(string)
	return op, ok
}
