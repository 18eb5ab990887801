package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/quillbin/quillbin/internal/pastes"
)

const (
	migrationRepairVersionFloor  = "2026-07-12_repair_current_version_floor"
	migrationNormalizeEmptySlugs = "2026-07-12_normalize_empty_custom_slugs"
	migrationClearOrphanHistory  = "2026-08-02_clear_history_flag_without_versioning"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationRepairVersionFloor, apply: repairCurrentVersionFloor},
		{name: migrationNormalizeEmptySlugs, apply: normalizeEmptyCustomSlugs},
		{name: migrationClearOrphanHistory, apply: clearHistoryFlagWithoutVersioning},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Rows written before version bookkeeping landed can carry a zero version.
func repairCurrentVersionFloor(db *gorm.DB) error {
	return db.Model(&pastes.Paste{}).
		Where("current_version < 1").
		Update("current_version", 1).Error
}

// Empty-string slugs defeat the unique index; they belong as NULL.
func normalizeEmptyCustomSlugs(db *gorm.DB) error {
	return db.Model(&pastes.Paste{}).
		Where("custom_slug = ''").
		Update("custom_slug", nil).Error
}

// version_history_visible implies versioning_enabled.
func clearHistoryFlagWithoutVersioning(db *gorm.DB) error {
	return db.Model(&pastes.Paste{}).
		Where("version_history_visible = ? AND versioning_enabled = ?", true, false).
		Update("version_history_visible", false).Error
}
