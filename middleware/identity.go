package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

type contextKey string

const playerContextKey contextKey = "player_id"

// Имя claim с идентификатором игрока, выданным Identity Provider.
const jwtClaimPlayerID = "player_id"

var (
	ErrTokenMissing = errors.New("bearer token is required")
	ErrTokenInvalid = errors.New("invalid token")
)

// Identity resolves the player id of a request from an HS256 bearer token.
// With an empty secret it is a no-op and handlers fall back to the playerId
// sent by the client. Browsers cannot set headers on a websocket upgrade, so
// the token may also come in the "token" query parameter.
func Identity(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		key := []byte(secret)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				http.Error(w, ErrTokenMissing.Error(), http.StatusUnauthorized)
				return
			}

			playerID, err := ParsePlayerToken(raw, key)
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), playerContextKey, playerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// ParsePlayerToken проверяет токен и возвращает его claim player_id.
func ParsePlayerToken(raw string, key []byte) (string, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", ErrTokenInvalid
	}

	switch v := claims[jwtClaimPlayerID].(type) {
	case string:
		if v != "" {
			return v, nil
		}
	case float64:
		// числовые id из старых токенов
		if v == float64(int64(v)) && v > 0 {
			return fmt.Sprintf("%d", int64(v)), nil
		}
	}
	return "", fmt.Errorf("%w: missing '%s' claim", ErrTokenInvalid, jwtClaimPlayerID)
}

// PlayerIDFromContext возвращает id, установленный Identity, если он есть.
func PlayerIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(playerContextKey).(string)
	return id, ok && id != ""
}

// WithPlayerID stores a resolved player id; used by tests and by callers
// that authenticate by other means.
func WithPlayerID(ctx context.Context, playerID string) context.Context {
	return context.WithValue(ctx, playerContextKey, playerID)
}
