package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("PAYMENT_CHECK_DELAY", "")
	t.Setenv("VNP_TEST_MODE", "")

	cfg := LoadConfig()
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 15*time.Minute, cfg.PaymentCheckDelay)
	assert.True(t, cfg.VNPay.TestMode)
	assert.Equal(t, 10, cfg.MaxPriority)
}

func TestLoadConfig_Overrides(t *testing.T) {
	secretFile := filepath.Join(t.TempDir(), "vnp_secret")
	require.NoError(t, os.WriteFile(secretFile, []byte("file-secret\n"), 0o600))

	t.Setenv("VNP_HASH_SECRET_FILE", secretFile)
	t.Setenv("VNP_HASH_SECRET", "env-secret")
	t.Setenv("VNP_TMNCODE", "DEMO1234")
	t.Setenv("VNP_TEST_MODE", "false")
	t.Setenv("PAYMENT_CHECK_DELAY", "30s")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("CORS_ORIGINS", "https://shop.example, https://admin.example")

	cfg := LoadConfig()
	assert.Equal(t, "file-secret", cfg.VNPay.Secret)
	assert.Equal(t, "DEMO1234", cfg.VNPay.MerchantCode)
	assert.False(t, cfg.VNPay.TestMode)
	assert.Equal(t, 30*time.Second, cfg.PaymentCheckDelay)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, []string{"https://shop.example", "https://admin.example"}, cfg.CORSOrigins)
}

func TestGetEnvFromFile_MissingFileFallsBack(t *testing.T) {
	t.Setenv("JWT_SECRET_FILE", filepath.Join(t.TempDir(), "missing"))
	t.Setenv("JWT_SECRET", "from-env")
	assert.Equal(t, "from-env", getEnvFromFile("JWT_SECRET_FILE", "JWT_SECRET", "default"))
}
