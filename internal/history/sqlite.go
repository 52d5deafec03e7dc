package history

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/skinscan/skinscan/internal/conf"
	"github.com/skinscan/skinscan/internal/errors"
	"github.com/skinscan/skinscan/internal/logger"
)

const dbDirPermissions = 0o750

// SQLiteStore implements Interface on a local sqlite file.
type SQLiteStore struct {
	DataStore
	Settings *conf.Settings
}

func validateSQLiteConfig(settings *conf.Settings) error {
	if settings.History.SQLite.Path == "" {
		return errors.ValidationError("sqlite path must not be empty")
	}
	return nil
}

// Open creates the database directory if needed, opens the file in WAL
// mode and migrates the schema.
func (store *SQLiteStore) Open() error {
	if err := validateSQLiteConfig(store.Settings); err != nil {
		return err
	}

	path := store.Settings.History.SQLite.Path
	dsn := path
	if path != ":memory:" {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000"
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, dbDirPermissions); err != nil {
				return errors.New(fmt.Errorf("failed to create database directory: %w", err)).
					Component("history").
					Category(errors.CategoryFileIO).
					Context("path", dir).
					Build()
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return dbError(fmt.Errorf("failed to open SQLite database: %w", err), "open")
	}

	// One writer at a time avoids SQLITE_BUSY under concurrent saves.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}

	store.DB = db
	if err := store.migrate(); err != nil {
		return err
	}

	GetLogger().Info("History store opened",
		logger.String("backend", "sqlite"),
		logger.String("path", path))
	return nil
}
