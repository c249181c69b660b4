package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STR", `"quoted"`)
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "forty two")
	t.Setenv("TEST_BOOL", "yes")
	t.Setenv("TEST_LIST", " a , b ,, c ")

	assert.Equal(t, "quoted", getEnv("TEST_STR", "x"))
	assert.Equal(t, "fallback", getEnv("TEST_UNSET", "fallback"))

	assert.Equal(t, 42, getEnvInt("TEST_INT", 0))
	assert.Equal(t, 7, getEnvInt("TEST_BAD_INT", 7))
	assert.Equal(t, 7, getEnvInt("TEST_UNSET", 7))

	assert.True(t, getEnvBool("TEST_BOOL", false))
	assert.True(t, getEnvBool("TEST_UNSET", true))

	assert.Equal(t, []string{"a", "b", "c"}, getEnvList("TEST_LIST", nil))
	assert.Equal(t, []string{"*"}, getEnvList("TEST_UNSET", []string{"*"}))
}

func TestBuildDatabaseURL(t *testing.T) {
	local := buildDatabaseURL("localhost", 5432, "leadwise", "postgres", "pw")
	assert.Contains(t, local, "postgres://postgres:pw@localhost:5432/leadwise")
	assert.Contains(t, local, "sslmode=disable")

	remote := buildDatabaseURL("db.prod.internal", 5432, "leadwise", "app", "pw")
	assert.Contains(t, remote, "sslmode=require")
}

func TestApplyDefaultSSLMode(t *testing.T) {
	t.Run("existing sslmode is kept", func(t *testing.T) {
		url := "postgres://u:p@db.example.com:5432/app?sslmode=verify-full"
		assert.Equal(t, url, applyDefaultSSLMode(url))
	})
	t.Run("local host gets disable", func(t *testing.T) {
		out := applyDefaultSSLMode("postgres://u:p@127.0.0.1:5432/app")
		assert.Contains(t, out, "sslmode=disable")
	})
	t.Run("remote host gets require", func(t *testing.T) {
		out := applyDefaultSSLMode("postgres://u:p@db.example.com:5432/app")
		assert.Contains(t, out, "sslmode=require")
	})
}

func TestIsLocalHost(t *testing.T) {
	assert.True(t, isLocalHost("localhost"))
	assert.True(t, isLocalHost("127.0.0.1"))
	assert.True(t, isLocalHost("::1"))
	assert.True(t, isLocalHost(""))
	assert.False(t, isLocalHost("db.internal"))
}

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "leadwise-backend", cfg.ServiceName)
	assert.Equal(t, 72, cfg.TokenExpiryHours)
	assert.Equal(t, 5, cfg.FollowUpDelayMinutes)
	assert.Equal(t, 30, cfg.FollowUpPollIntervalSec)
	assert.Equal(t, 60, cfg.PublicRatePerMin)
	assert.NotEmpty(t, cfg.JWTSecret, "development fills in a generated secret")
	assert.Contains(t, cfg.DBURL, "postgres://")
}

func TestLoadExplicitDBPartsWinOverURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://x:y@ignored:5432/other")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_NAME", "leadwise_prod")

	cfg := Load()
	assert.Contains(t, cfg.DBURL, "db.internal")
	assert.Contains(t, cfg.DBURL, "leadwise_prod")
	assert.NotContains(t, cfg.DBURL, "ignored")
}
