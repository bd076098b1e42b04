package db

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sujalbistaa/stickyboard/internal/models"
)

// DefaultURL is used when DATABASE_URL is empty.
const DefaultURL = "sqlite://stickyboard.db"

// Open connects to the database named by url, which must start with
// "postgres://" or "sqlite://".
func Open(url string, log *slog.Logger) (*gorm.DB, error) {
	if log == nil {
		log = slog.Default()
	}
	if url == "" {
		url = DefaultURL
		log.Info("DATABASE_URL not set, using default",
			"event", "db_default_url",
			"module", "internal/db",
			"layer", "platform",
			"url", url,
		)
	}

	var dialector gorm.Dialector
	sqliteMode := false
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		dialector = postgres.Open(url)
	case strings.HasPrefix(url, "sqlite://"):
		dialector = sqlite.Open(strings.TrimPrefix(url, "sqlite://"))
		sqliteMode = true
	default:
		return nil, fmt.Errorf("invalid database url %q: must start with postgres:// or sqlite://", url)
	}

	database, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := database.DB()
	if err != nil {
		return nil, fmt.Errorf("resolve sql db handle: %w", err)
	}
	if sqliteMode {
		// SQLite has no row locks; one connection serializes every
		// read-modify-write transaction.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info("database connection established",
		"event", "db_connected",
		"module", "internal/db",
		"layer", "platform",
		"sqlite", sqliteMode,
	)
	return database, nil
}

// Migrate creates or updates the tables of every collection.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(&models.Message{}, &models.Comment{}, &models.ViolationReport{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func Close(database *gorm.DB) error {
	if database == nil {
		return nil
	}
	sqlDB, err := database.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
