package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp keeps Load from picking up a .env in the package directory.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)
	for _, k := range []string{"CONFIG_FILE", "PORT", "RENTAL_STORE", "RENTAL_MAX_UPDATE_ATTEMPTS", "RENTAL_CLIENT_TIMEOUT"} {
		t.Setenv(k, "")
	}

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "8082", cfg.Port)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.ClientTimeout)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "rental.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "9000"
store: postgres
time_zone: Europe/Berlin
max_update_attempts: 9
client_timeout: 2s
`), 0o600))
	t.Setenv("PORT", "9100")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9100", cfg.Port, "env wins over file")
	assert.Equal(t, StorePostgres, cfg.Store)
	assert.Equal(t, 9, cfg.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.ClientTimeout)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())
}

func TestLoad_DotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("RENTAL_MAX_UPDATE_ATTEMPTS=7\n"), 0o600))
	// Setenv restores the variable at cleanup; godotenv only fills unset ones.
	t.Setenv("RENTAL_MAX_UPDATE_ATTEMPTS", "")
	require.NoError(t, os.Unsetenv("RENTAL_MAX_UPDATE_ATTEMPTS"))
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxAttempts)
}

func TestLoad_MissingFileIsIgnored(t *testing.T) {
	chdirTemp(t)
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.NoError(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	chdirTemp(t)

	t.Setenv("RENTAL_STORE", "redis")
	_, err := Load("")
	assert.ErrorContains(t, err, "unknown store")

	t.Setenv("RENTAL_STORE", "memory")
	t.Setenv("RENTAL_TIME_ZONE", "Mars/Olympus")
	_, err = Load("")
	assert.ErrorContains(t, err, "time zone")
}

func TestLoad_TrustedProxies(t *testing.T) {
	chdirTemp(t)
	t.Setenv("GATEWAY_TRUSTED_PROXIES", "10.0.0.0/8, 192.168.1.7,")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.7"}, cfg.TrustedProxies)
}
