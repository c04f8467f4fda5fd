package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/floorboard/internal/kvstore"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationPurgeBlankEntries  = "2026-10-18_purge_blank_kv_entries"
	migrationBackfillEntryStamp = "2026-10-18_backfill_kv_updated_at"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationStep func(tx *gorm.DB, now time.Time) error

type migrationDefinition struct {
	name  string
	apply migrationStep
}

// kvMigrations run in order; each one is recorded in db_migrations in the same
// transaction that applies it.
var kvMigrations = []migrationDefinition{
	{name: migrationPurgeBlankEntries, apply: purgeBlankEntries},
	{name: migrationBackfillEntryStamp, apply: backfillEntryStamp},
}

func applyMigrations(db *gorm.DB, clock func() time.Time, logger *zap.Logger) ([]string, error) {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var applied []string
	for _, migration := range kvMigrations {
		ran := false
		err := db.Transaction(func(tx *gorm.DB) error {
			var record migrationRecord
			lookup := tx.Where("name = ?", migration.name).Take(&record).Error
			if lookup == nil {
				return nil
			}
			if !errors.Is(lookup, gorm.ErrRecordNotFound) {
				return lookup
			}
			now := clock().UTC()
			if err := migration.apply(tx, now); err != nil {
				return err
			}
			ran = true
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: now.Unix()}).Error
		})
		if err != nil {
			return applied, fmt.Errorf("migration %s: %w", migration.name, err)
		}
		if ran {
			applied = append(applied, migration.name)
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return applied, nil
}

// purgeBlankEntries drops zero-length values left by interrupted writes.
func purgeBlankEntries(tx *gorm.DB, _ time.Time) error {
	return tx.Where("length(entry_value) = 0").Delete(&kvstore.Entry{}).Error
}

// backfillEntryStamp stamps rows written without an update time.
func backfillEntryStamp(tx *gorm.DB, now time.Time) error {
	return tx.Model(&kvstore.Entry{}).
		Where("updated_at_ms <= 0").
		Update("updated_at_ms", now.UnixMilli()).Error
}
