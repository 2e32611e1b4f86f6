package settings

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"stocksync/internal/config"
)

// Settings are the runtime knobs mutable through the API, as opposed to
// the process configuration which is fixed at startup.
type Settings struct {
	FeedURL           string    `json:"feed_url"`
	SKUColumn         string    `json:"sku_column"`
	QuantityColumn    string    `json:"quantity_column"`
	DisableSSLVerify  bool      `json:"disable_ssl_verify"`
	MissingSKUAction  string    `json:"missing_sku_action"`
	Interval          string    `json:"interval"`
	Enabled           bool      `json:"enabled"`
	DisabledByLicense bool      `json:"disabled_by_license"`
	LastSyncAt        time.Time `json:"last_sync_at,omitempty"`
	WatchdogBeatAt    time.Time `json:"watchdog_beat_at,omitempty"`
}

const schema = `
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

const (
	keyFeedURL           = "feed_url"
	keySKUColumn         = "sku_column"
	keyQuantityColumn    = "quantity_column"
	keyDisableSSLVerify  = "disable_ssl_verify"
	keyMissingSKUAction  = "missing_sku_action"
	keyInterval          = "interval"
	keyEnabled           = "enabled"
	keyDisabledByLicense = "disabled_by_license"
	keyLastSyncAt        = "last_sync_at"
	keyWatchdogBeatAt    = "watchdog_beat_at"
)

// Store persists runtime settings in the application database
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates the settings table if needed and seeds missing keys
// from the startup configuration. Existing values are never overwritten.
func NewStore(db *sqlx.DB, cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{db: db, logger: logger.With(slog.String("component", "settings_store"))}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create settings table: %w", err)
	}

	seed := map[string]string{
		keyFeedURL:           cfg.Feed.URL,
		keySKUColumn:         cfg.Feed.SKUColumn,
		keyQuantityColumn:    cfg.Feed.QuantityColumn,
		keyDisableSSLVerify:  formatBool(cfg.Feed.DisableSSL),
		keyMissingSKUAction:  cfg.Sync.MissingSKUAction,
		keyInterval:          cfg.Sync.Interval,
		keyEnabled:           formatBool(false),
		keyDisabledByLicense: formatBool(false),
		keyLastSyncAt:        "",
		keyWatchdogBeatAt:    "",
	}
	for key, value := range seed {
		if _, err := db.Exec(
			`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO NOTHING`,
			key, value,
		); err != nil {
			return nil, fmt.Errorf("failed to seed setting %s: %w", key, err)
		}
	}

	return s, nil
}

// Load reads the full settings snapshot
func (s *Store) Load(ctx context.Context) (Settings, error) {
	rows := []struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}{}
	if err := s.db.SelectContext(ctx, &rows, `SELECT key, value FROM settings`); err != nil {
		return Settings{}, fmt.Errorf("failed to load settings: %w", err)
	}

	values := make(map[string]string, len(rows))
	for _, row := range rows {
		values[row.Key] = row.Value
	}

	return Settings{
		FeedURL:           values[keyFeedURL],
		SKUColumn:         values[keySKUColumn],
		QuantityColumn:    values[keyQuantityColumn],
		DisableSSLVerify:  parseBool(values[keyDisableSSLVerify]),
		MissingSKUAction:  values[keyMissingSKUAction],
		Interval:          values[keyInterval],
		Enabled:           parseBool(values[keyEnabled]),
		DisabledByLicense: parseBool(values[keyDisabledByLicense]),
		LastSyncAt:        parseTime(values[keyLastSyncAt]),
		WatchdogBeatAt:    parseTime(values[keyWatchdogBeatAt]),
	}, nil
}

// SaveFeedConfig updates the feed source bindings in one transaction
func (s *Store) SaveFeedConfig(ctx context.Context, feedURL, skuColumn, quantityColumn string, disableSSL bool) error {
	return s.setAll(ctx, map[string]string{
		keyFeedURL:          feedURL,
		keySKUColumn:        skuColumn,
		keyQuantityColumn:   quantityColumn,
		keyDisableSSLVerify: formatBool(disableSSL),
	})
}

// SetMissingSKUAction updates the missing-SKU policy
func (s *Store) SetMissingSKUAction(ctx context.Context, action string) error {
	return s.set(ctx, keyMissingSKUAction, action)
}

// SetInterval updates the recurring sync cadence
func (s *Store) SetInterval(ctx context.Context, interval string) error {
	return s.set(ctx, keyInterval, interval)
}

// SetEnabled flips the sync master switch
func (s *Store) SetEnabled(ctx context.Context, enabled bool) error {
	return s.set(ctx, keyEnabled, formatBool(enabled))
}

// SetDisabledByLicense records whether the license check turned sync off
func (s *Store) SetDisabledByLicense(ctx context.Context, disabled bool) error {
	return s.set(ctx, keyDisabledByLicense, formatBool(disabled))
}

// SetLastSyncAt records the completion time of the most recent run
func (s *Store) SetLastSyncAt(ctx context.Context, at time.Time) error {
	return s.set(ctx, keyLastSyncAt, formatTime(at))
}

// Heartbeat records the watchdog's last pass
func (s *Store) Heartbeat(ctx context.Context, at time.Time) error {
	return s.set(ctx, keyWatchdogBeatAt, formatTime(at))
}

func (s *Store) set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to store setting %s: %w", key, err)
	}
	return nil
}

func (s *Store) setAll(ctx context.Context, values map[string]string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin settings update: %w", err)
	}
	defer tx.Rollback()

	for key, value := range values {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO settings (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			key, value,
		); err != nil {
			return fmt.Errorf("failed to store setting %s: %w", key, err)
		}
	}
	return tx.Commit()
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func parseBool(value string) bool {
	return value == "1"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
