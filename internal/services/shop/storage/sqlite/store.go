package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/opshop/guildshop/internal/platform/storage/sqlitemigrate"
	"github.com/opshop/guildshop/internal/services/shop/storage"
	"github.com/opshop/guildshop/internal/services/shop/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists shop state in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

var (
	_ storage.InviteStore      = (*Store)(nil)
	_ storage.AttributionStore = (*Store)(nil)
	_ storage.AccountStore     = (*Store)(nil)
	_ storage.ReputationStore  = (*Store)(nil)
	_ storage.EconomyStore     = (*Store)(nil)
	_ storage.SettingsStore    = (*Store)(nil)
	_ storage.CatalogStore     = (*Store)(nil)
	_ storage.TicketStore      = (*Store)(nil)
)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite shop store, creating the parent directory when needed,
// and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	dsn := cleanPath + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(context.Background(), sqlDB, migrations.FS, "."); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

func (s *Store) nowUTC() time.Time {
	return s.now().UTC()
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func nullString(value string) sql.NullString {
	value = strings.TrimSpace(value)
	return sql.NullString{String: value, Valid: value != ""}
}
