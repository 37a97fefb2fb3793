package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Load_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, time.Hour, cfg.SweepInterval)
	assert.Equal(t, 4, cfg.SweepWorkers)
	assert.Equal(t, 5, cfg.TxMaxAttempts)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
}

func Test_Load_FromEnv(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("SWEEP_INTERVAL", "15m")
	t.Setenv("SWEEP_WORKERS", "2")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 15*time.Minute, cfg.SweepInterval)
	assert.Equal(t, 2, cfg.SweepWorkers)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func Test_Load_RejectsBadWorkers(t *testing.T) {
	t.Setenv("SWEEP_WORKERS", "0")
	_, err := Load()
	assert.Error(t, err)
}

func Test_DSN(t *testing.T) {
	c := Config{DBHost: "db", DBUser: "u", DBPassword: "p", DBName: "lib", DBPort: "5432"}
	assert.Equal(t, "host=db user=u password=p dbname=lib port=5432 sslmode=disable", c.DSN())

	c.DatabaseURL = "postgres://x"
	assert.Equal(t, "postgres://x", c.DSN())
}

func Test_LoadEnv_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("LIB_TEST_ONLY=yes\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("LIB_TEST_ONLY") })

	LoadEnv(path)
	assert.Equal(t, "yes", os.Getenv("LIB_TEST_ONLY"))

	// missing files are ignored
	LoadEnv(filepath.Join(t.TempDir(), "nope.env"))
}
