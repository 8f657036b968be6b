package database

import (
	"time"

	"example.com/backstage/allegro/config"
	"example.com/backstage/allegro/internal/models"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the write database and, when configured, a read-only replica.
// Without a replica DSN the write handle is returned for both.
func Connect(cfg config.DatabaseConfig) (*gorm.DB, *gorm.DB, error) {
	db, err := open(cfg.DSN, cfg)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to write database")
	}

	if cfg.ReadOnlyDSN == "" {
		return db, db, nil
	}

	readOnlyDB, err := open(cfg.ReadOnlyDSN, cfg)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to read-only database")
	}

	return db, readOnlyDB, nil
}

// Migrate runs the schema migrations against the write database
func Migrate(db *gorm.DB) error {
	return models.SetupModels(db)
}

// Close closes the underlying connection pools
func Close(dbs ...*gorm.DB) error {
	seen := make(map[*gorm.DB]bool)
	for _, db := range dbs {
		if db == nil || seen[db] {
			continue
		}
		seen[db] = true

		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		if err := sqlDB.Close(); err != nil {
			return err
		}
	}
	return nil
}

func open(dsn string, cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logLevel(cfg.LogLevel)),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get underlying DB connection")
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}

func logLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
