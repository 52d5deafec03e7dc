package history

import (
	"fmt"
	"net"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/skinscan/skinscan/internal/conf"
	"github.com/skinscan/skinscan/internal/errors"
	"github.com/skinscan/skinscan/internal/logger"
)

const (
	mysqlMaxOpenConns    = 10
	mysqlConnMaxLifetime = 30 * time.Minute
)

// MySQLStore implements Interface on a MySQL server.
type MySQLStore struct {
	DataStore
	Settings *conf.Settings
}

func validateMySQLConfig(settings *conf.Settings) error {
	m := settings.History.MySQL
	var missing []string
	if m.Host == "" {
		missing = append(missing, "host")
	}
	if m.Database == "" {
		missing = append(missing, "database")
	}
	if m.Username == "" {
		missing = append(missing, "username")
	}
	if len(missing) > 0 {
		return errors.ValidationError(fmt.Sprintf("mysql settings missing: %v", missing))
	}
	return nil
}

// DSN builds the driver connection string. Times are stored in UTC.
func DSN(m *conf.MySQLSettings) string {
	port := m.Port
	if port == "" {
		port = "3306"
	}
	cfg := mysqldriver.NewConfig()
	cfg.User = m.Username
	cfg.Passwd = m.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(m.Host, port)
	cfg.DBName = m.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// Open connects and migrates the schema.
func (store *MySQLStore) Open() error {
	if err := validateMySQLConfig(store.Settings); err != nil {
		return err
	}

	m := store.Settings.History.MySQL
	db, err := gorm.Open(mysql.Open(DSN(&m)), gormConfig())
	if err != nil {
		GetLogger().Error("Failed to open MySQL database",
			logger.String("host", m.Host),
			logger.String("port", m.Port),
			logger.String("database", m.Database),
			logger.Error(err))
		return dbError(fmt.Errorf("failed to open MySQL database: %w", err), "open")
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(mysqlMaxOpenConns)
		sqlDB.SetConnMaxLifetime(mysqlConnMaxLifetime)
	}

	store.DB = db
	if err := store.migrate(); err != nil {
		return err
	}

	GetLogger().Info("History store opened",
		logger.String("backend", "mysql"),
		logger.String("host", m.Host),
		logger.String("database", m.Database))
	return nil
}
