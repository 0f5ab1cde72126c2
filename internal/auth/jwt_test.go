package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initTestSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	require.NoError(t, Init())
}

func TestTokenRoundTrip(t *testing.T) {
	initTestSecret(t)

	token, err := GenerateToken("u-1", "ana@example.com", "Ana", "operator")
	require.NoError(t, err)

	claims, err := ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "ana@example.com", claims.Email)
	assert.Equal(t, "operator", claims.Role)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	initTestSecret(t)

	_, err := ValidateToken("not-a-token")
	assert.Error(t, err)
}

func TestMiddlewarePropagatesClaims(t *testing.T) {
	initTestSecret(t)

	token, err := GenerateToken("u-2", "joao@example.com", "Joao", "admin")
	require.NoError(t, err)

	var got *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := GetClaimsFromContext(r.Context())
		require.True(t, ok)
		got = claims
	})

	req := httptest.NewRequest(http.MethodGet, "/api/invoices", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	JWTMiddleware(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, "joao@example.com", got.Email)
}

func TestMiddlewareRejectsMissingHeader(t *testing.T) {
	initTestSecret(t)

	req := httptest.NewRequest(http.MethodGet, "/api/invoices", nil)
	rec := httptest.NewRecorder()
	JWTMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run without a token")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetClaimsFromContextMissing(t *testing.T) {
	_, ok := GetClaimsFromContext(context.Background())
	assert.False(t, ok)
}
