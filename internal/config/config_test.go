package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sku", cfg.Feed.SKUColumn)
	assert.Equal(t, "quantity", cfg.Feed.QuantityColumn)
	assert.Equal(t, 120*time.Second, cfg.Feed.FetchTimeout)
	assert.Equal(t, 100, cfg.Sync.BatchSize)
	assert.Equal(t, MissingSKUIgnore, cfg.Sync.MissingSKUAction)
	assert.Equal(t, "hourly", cfg.Sync.Interval)
	assert.Equal(t, 30*time.Minute, cfg.Sync.RunLeaseTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.License.GracePeriod)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.Server.Port = -1 },
			wantErr: "invalid server port",
		},
		{
			name:    "zero batch size",
			mutate:  func(c *Config) { c.Sync.BatchSize = 0 },
			wantErr: "batch size must be positive",
		},
		{
			name:    "unknown missing SKU action",
			mutate:  func(c *Config) { c.Sync.MissingSKUAction = "delete" },
			wantErr: "invalid missing SKU action",
		},
		{
			name:    "empty license API URL",
			mutate:  func(c *Config) { c.License.APIURL = "" },
			wantErr: "license API URL",
		},
		{
			name:    "non-positive grace period",
			mutate:  func(c *Config) { c.License.GracePeriod = 0 },
			wantErr: "grace period must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateForcesJSONFormat(t *testing.T) {
	cfg := Default()
	cfg.Logging.Format = "text"

	require.NoError(t, cfg.validate())
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 9090
feed:
  url: https://feeds.example.com/stock.csv
  sku_column: article
sync:
  missing_sku_action: zero
  interval: 15min
`)
	require.NoError(t, os.WriteFile(path, content, 0644))

	cfg, err := loadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "https://feeds.example.com/stock.csv", cfg.Feed.URL)
	assert.Equal(t, "article", cfg.Feed.SKUColumn)
	// Unset fields keep their defaults
	assert.Equal(t, "quantity", cfg.Feed.QuantityColumn)
	assert.Equal(t, MissingSKUZero, cfg.Sync.MissingSKUAction)
}

func TestLoadFromFileInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0644))

	_, err := loadFromFile(path)
	assert.Error(t, err)
}
