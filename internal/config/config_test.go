package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evcraddock/property-sync/internal/store"
)

// isolate points HOME and the working directory at temp dirs and clears
// PSYNC_* variables that would leak in from the developer's shell.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())
	for _, k := range []string{"PSYNC_STORE_URI", "PSYNC_LOOKUP_API_KEY", "PSYNC_LOG_LEVEL", "PSYNC_SERVER_PORT", "PSYNC_SERVER_API_TOKEN", "PSYNC_STORE_TIMEOUT"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	return home
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, store.DefaultURI, cfg.Store.URI)
	assert.Equal(t, "property_data", cfg.Store.Collection)
	assert.Equal(t, 10*time.Second, cfg.Store.Timeout)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Server.APIToken)
	assert.Empty(t, cfg.File)
}

func TestLoadFromEnv(t *testing.T) {
	isolate(t)
	t.Setenv("PSYNC_STORE_URI", "sqlite:///tmp/psync.db")
	t.Setenv("PSYNC_LOOKUP_API_KEY", "X1-env")
	t.Setenv("PSYNC_STORE_TIMEOUT", "3s")
	t.Setenv("PSYNC_SERVER_API_TOKEN", "psk_env")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite:///tmp/psync.db", cfg.Store.URI)
	assert.Equal(t, "X1-env", cfg.Lookup.APIKey)
	assert.Equal(t, 3*time.Second, cfg.Store.Timeout)
	assert.Equal(t, "psk_env", cfg.Server.APIToken)
}

func TestLoadEmptyURIMeansDefault(t *testing.T) {
	isolate(t)
	t.Setenv("PSYNC_STORE_URI", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, store.DefaultURI, cfg.Store.URI)
}

func TestLoadFromDotEnv(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile(".env", []byte("PSYNC_LOOKUP_API_KEY=X1-dotenv\nPSYNC_LOG_LEVEL=debug\n"), 0o600))
	require.NoError(t, os.WriteFile(".env.local", []byte("PSYNC_LOOKUP_API_KEY=X1-local\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("PSYNC_LOOKUP_API_KEY")
		_ = os.Unsetenv("PSYNC_LOG_LEVEL")
	})

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "X1-local", cfg.Lookup.APIKey)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestWriteAndLoad(t *testing.T) {
	home := isolate(t)

	path, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "psync", "config.yaml"), path)

	want := Defaults()
	want.Store.URI = "sqlite://" + filepath.Join(home, "data.db")
	want.Lookup.APIKey = "X1-file"
	want.Lookup.CacheTTL = time.Minute
	want.Server.APIToken = "psk_file"
	require.NoError(t, Write(path, want))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, path, cfg.File)
	assert.Equal(t, want.Store.URI, cfg.Store.URI)
	assert.Equal(t, "X1-file", cfg.Lookup.APIKey)
	assert.Equal(t, time.Minute, cfg.Lookup.CacheTTL)
	assert.Equal(t, "psk_file", cfg.Server.APIToken)
}

func TestLoadExplicitMissingFile(t *testing.T) {
	isolate(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestStoreOptions(t *testing.T) {
	cfg := Defaults()
	opts := cfg.StoreOptions()
	assert.Equal(t, store.Config{
		URI:        store.DefaultURI,
		Database:   store.DefaultDatabase,
		Collection: store.DefaultCollection,
		Timeout:    10 * time.Second,
	}, opts)
	assert.Len(t, cfg.LookupOptions(), 4)
}
