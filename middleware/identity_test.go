package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signed(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func echoPlayer() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := PlayerIDFromContext(r.Context())
		if !ok {
			id = "anonymous"
		}
		_, _ = w.Write([]byte(id))
	})
}

func TestIdentityWithoutSecretPassesThrough(t *testing.T) {
	rec := httptest.NewRecorder()
	Identity("")(echoPlayer()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", rec.Body.String())
}

func TestIdentityResolvesPlayer(t *testing.T) {
	token := signed(t, jwt.MapClaims{"player_id": "alice", "exp": time.Now().Add(time.Hour).Unix()}, testSecret)
	h := Identity(testSecret)(echoPlayer())

	tests := []struct {
		name string
		req  *http.Request
	}{
		{"header", func() *http.Request {
			r := httptest.NewRequest(http.MethodPost, "/api/v1/join", nil)
			r.Header.Set("Authorization", "Bearer "+token)
			return r
		}()},
		{"query", httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, tt.req)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "alice", rec.Body.String())
		})
	}
}

func TestIdentityRejectsBadTokens(t *testing.T) {
	h := Identity(testSecret)(echoPlayer())

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"wrong secret", signed(t, jwt.MapClaims{"player_id": "alice"}, "other")},
		{"expired", signed(t, jwt.MapClaims{"player_id": "alice", "exp": time.Now().Add(-time.Minute).Unix()}, testSecret)},
		{"no claim", signed(t, jwt.MapClaims{"sub": "alice"}, testSecret)},
		{"garbage", "not-a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.token != "" {
				r.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, r)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestNumericPlayerClaim(t *testing.T) {
	id, err := ParsePlayerToken(signed(t, jwt.MapClaims{"player_id": 42}, testSecret), []byte(testSecret))
	require.NoError(t, err)
	assert.Equal(t, "42", id)
}
