package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveThenLoadRoundTrip(t *testing.T) {
	t.Setenv("PORT", "")
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Server.Port = 9000
	cfg.Geocode.City = "Sertãozinho"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, loaded.Server.Port)
	assert.Equal(t, "Sertãozinho", loaded.Geocode.City)
	assert.Equal(t, cfg.Dispatch, loaded.Dispatch)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server.Port, cfg.Server.Port)
}

func TestDatabaseDSN(t *testing.T) {
	tests := []struct {
		name       string
		url, path  string
		wantDriver string
		wantDSN    string
	}{
		{"postgres url", "postgres://u:p@db/motofrete", "", "postgres", "postgres://u:p@db/motofrete"},
		{"postgresql url", "postgresql://u:p@db/motofrete", "", "postgres", "postgresql://u:p@db/motofrete"},
		{"plain url is sqlite", "data/other.db", "", "sqlite3", "data/other.db"},
		{"path fallback", "", "data/motofrete.db", "sqlite3", "data/motofrete.db"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{Database: DatabaseConfig{URL: tt.url, Path: tt.path}}
			driver, dsn := c.DatabaseDSN()
			assert.Equal(t, tt.wantDriver, driver)
			assert.Equal(t, tt.wantDSN, dsn)
		})
	}
}
