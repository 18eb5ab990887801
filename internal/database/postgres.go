package database

import (
	"fmt"

	"go.uber.org/zap"
	postgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/quillbin/quillbin/internal/pastes"
	"github.com/quillbin/quillbin/internal/users"
)

// OpenPostgres establishes a Postgres connection and performs schema
// migrations.
func OpenPostgres(dsn string, logger *zap.Logger) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized")
	}

	return db, nil
}

// Migrate runs AutoMigrate for all persisted models followed by the named
// data migrations. Split out so tests can run it against sqlite.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(
		&users.User{},
		&pastes.Paste{},
		&pastes.PasteVersion{},
		&pastes.PasteInvite{},
		&pastes.PasteView{},
		&migrationRecord{},
	); err != nil {
		return err
	}
	return applyMigrations(db, logger)
}
