package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/floorboard/internal/kvstore"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const defaultBusyTimeout = 5 * time.Second

var errMissingPath = errors.New("database path is required")

// SQLiteConfig describes the SQLite file backing the key-value store.
type SQLiteConfig struct {
	Path        string
	BusyTimeout time.Duration
	Clock       func() time.Time
	Logger      *zap.Logger
}

// OpenSQLite opens the database, creates the kv_entries and db_migrations tables and
// applies pending migrations.
func OpenSQLite(cfg SQLiteConfig) (*gorm.DB, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errMissingPath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	busyTimeout := cfg.BusyTimeout
	if busyTimeout <= 0 {
		busyTimeout = defaultBusyTimeout
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds())).Error; err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	if err := db.AutoMigrate(&kvstore.Entry{}, &migrationRecord{}); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	applied, err := applyMigrations(db, cfg.Clock, logger)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	logger.Info("database initialized",
		zap.String("path", path),
		zap.Int("migrations_applied", len(applied)))

	return db, nil
}
