package controller

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadwise-backend/config"
)

func testController() *Controller {
	return New(config.Config{
		ServiceName:      "leadwise-backend",
		JWTSecret:        "test-secret-0123456789",
		TokenExpiryHours: 24,
		AdminEmail:       "admin@example.com",
	}, nil, nil, nil)
}

func TestCreateTokenRoundTrip(t *testing.T) {
	c := testController()
	user := UserRecord{
		ID:         "6a7f9f1e-0000-0000-0000-000000000001",
		Email:      "owner@acme.test",
		Plan:       PlanPro,
		IsVerified: true,
	}

	signed, exp, err := c.createToken(user)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), exp, time.Minute)

	claims := &TokenClaims{}
	tok, err := jwt.ParseWithClaims(signed, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("test-secret-0123456789"), nil
	})
	require.NoError(t, err)
	require.True(t, tok.Valid)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, user.Email, claims.Email)
	assert.Equal(t, PlanPro, claims.Plan)
	assert.True(t, claims.IsVerified)
}

func TestCreateTokenEmbedsEffectivePlan(t *testing.T) {
	c := testController()

	t.Run("expired plan is issued as free", func(t *testing.T) {
		user := UserRecord{
			ID: "u1", Email: "owner@acme.test", Plan: PlanAgency, IsVerified: true,
		}
		user.PlanExpiresAt.Valid = true
		user.PlanExpiresAt.Time = time.Now().Add(-time.Hour)

		signed, _, err := c.createToken(user)
		require.NoError(t, err)
		claims := parseTestToken(t, signed)
		assert.Equal(t, PlanFree, claims.Plan)
	})

	t.Run("admin is issued as agency", func(t *testing.T) {
		user := UserRecord{ID: "u2", Email: "admin@example.com", Plan: PlanFree, IsVerified: true}
		signed, _, err := c.createToken(user)
		require.NoError(t, err)
		claims := parseTestToken(t, signed)
		assert.Equal(t, PlanAgency, claims.Plan)
	})
}

func parseTestToken(t *testing.T, signed string) *TokenClaims {
	t.Helper()
	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(signed, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("test-secret-0123456789"), nil
	})
	require.NoError(t, err)
	return claims
}

func TestAuthenticateUserRejectsBadCredentials(t *testing.T) {
	c := testController()

	t.Run("missing header is 401", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
		_, _, status, err := c.AuthenticateUser(r)
		require.Error(t, err)
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("garbage token is 403", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
		r.Header.Set("Authorization", "Bearer not-a-token")
		_, _, status, err := c.AuthenticateUser(r)
		require.Error(t, err)
		assert.Equal(t, http.StatusForbidden, status)
	})

	t.Run("token signed with another secret is 403", func(t *testing.T) {
		other := New(config.Config{JWTSecret: "another-secret", TokenExpiryHours: 1}, nil, nil, nil)
		signed, _, err := other.createToken(UserRecord{ID: "u1", Email: "x@y.test", Plan: PlanFree, IsVerified: true})
		require.NoError(t, err)

		r := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
		r.Header.Set("Authorization", "Bearer "+signed)
		_, _, status, err := c.AuthenticateUser(r)
		require.Error(t, err)
		assert.Equal(t, http.StatusForbidden, status)
	})
}

func TestIsAdminEmail(t *testing.T) {
	c := testController()
	assert.True(t, c.isAdminEmail("admin@example.com"))
	assert.True(t, c.isAdminEmail("  ADMIN@Example.com "))
	assert.False(t, c.isAdminEmail("user@example.com"))

	unconfigured := New(config.Config{}, nil, nil, nil)
	assert.False(t, unconfigured.isAdminEmail(""))
}

func TestGenerateWidgetKey(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		key := generateWidgetKey()
		assert.Regexp(t, `^wk_[0-9a-f]{32}$`, key)
		assert.False(t, seen[key], "widget keys must not repeat")
		seen[key] = true
	}
}
