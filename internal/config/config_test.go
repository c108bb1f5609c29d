package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "foodcart", cfg.ServiceName)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, StoreMemory, cfg.CartStore)
	assert.Equal(t, "cart", cfg.CartStorageKey)
	assert.Equal(t, 10*time.Second, cfg.BackendTimeout)
	assert.Equal(t, 2*time.Minute, cfg.PaymentPollMaxWait)
	assert.False(t, cfg.KafkaEnabled())
}

func TestLoad_Environment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CART_STORE", "Redis")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("PAYMENT_POLL_INTERVAL", "500ms")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreRedis, cfg.CartStore)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 500*time.Millisecond, cfg.PaymentPollInterval)
	assert.True(t, cfg.KafkaEnabled())
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("BACKEND_URL=http://backend.test/api\nBACKEND_TIMEOUT=3s\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("BACKEND_URL")
		os.Unsetenv("BACKEND_TIMEOUT")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://backend.test/api", cfg.BackendURL)
	assert.Equal(t, 3*time.Second, cfg.BackendTimeout)
}

func TestLoad_Rejects(t *testing.T) {
	chdir(t, t.TempDir())

	t.Setenv("CART_STORE", "postgres")
	_, err := Load()
	assert.ErrorContains(t, err, "POSTGRES_DSN")

	t.Setenv("CART_STORE", "etcd")
	_, err = Load()
	assert.ErrorContains(t, err, "unknown CART_STORE")
}

// chdir changes the working directory for the duration of the test,
// standing in for testing.T.Chdir on toolchains older than Go 1.24.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
