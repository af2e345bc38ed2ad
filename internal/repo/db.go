// Package repo is the GORM persistence layer: connection setup, the generic
// Repository with optimistic concurrency, and per-request sessions.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-service-shell/internal/config"
	"github.com/tbourn/go-service-shell/internal/domain"
)

// Open connects to the database selected by cfg.Database.Driver, installs
// the OpenTelemetry plugin when tracing is enabled, and returns the handle.
func Open(cfg config.Config) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Database.Driver {
	case "postgres":
		db, err = OpenPostgres(cfg.Database.DSN(), cfg.Database.LogSQL)
	case "sqlite", "":
		db, err = OpenSQLite(cfg.Database.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.OTEL.Enabled {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// Connection-scoped PRAGMAs live in the DSN so every pooled connection
// gets them.
const sqlitePragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)" +
	"&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

type poolLimits struct {
	maxOpen, maxIdle      int
	idleTime, maxLifetime time.Duration
}

var (
	sqlitePool   = poolLimits{maxOpen: 10, maxIdle: 10, idleTime: 5 * time.Minute, maxLifetime: 30 * time.Minute}
	postgresPool = poolLimits{maxOpen: 25, maxIdle: 10, idleTime: 5 * time.Minute, maxLifetime: 30 * time.Minute}
)

func (p poolLimits) apply(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(p.maxOpen)
	sqlDB.SetMaxIdleConns(p.maxIdle)
	sqlDB.SetConnMaxIdleTime(p.idleTime)
	sqlDB.SetConnMaxLifetime(p.maxLifetime)
	return nil
}

// OpenSQLite opens or creates the database file at path. The parent
// directory must exist. A path that already carries query parameters is
// used as given.
func OpenSQLite(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
	}
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?" + sqlitePragmas
	}
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(false))
	if err != nil {
		return nil, err
	}
	return db, sqlitePool.apply(db)
}

// OpenPostgres connects through the pgx-backed GORM driver. SQL statements
// are logged at info level when logSQL is set.
func OpenPostgres(dsn string, logSQL bool) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), gormConfig(logSQL))
	if err != nil {
		return nil, err
	}
	return db, postgresPool.apply(db)
}

// gormConfig routes GORM's logger through the global zerolog logger.
func gormConfig(logSQL bool) *gorm.Config {
	level := logger.Warn
	if logSQL {
		level = logger.Info
	}
	l := log.Logger.With().Str("component", "gorm").Logger()
	return &gorm.Config{
		Logger: logger.New(&l, logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		}),
	}
}

// AutoMigrate creates or updates the schema of every persisted entity.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Project{},
		&domain.Task{},
	)
}
