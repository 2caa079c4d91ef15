// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping for SQLite (pure
// Go driver) and PostgreSQL, schema migrations and the startup schema
// capability check.
package repo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/color-report-engine/internal/domain"
)

// SchemaVersion is the schema this binary migrates to and expects.
const SchemaVersion = 1

// ErrSchemaTooNew is returned by EnsureSchema when the database was migrated
// by a newer binary.
var ErrSchemaTooNew = errors.New("database schema is newer than this binary")

// ErrSchemaMissing is returned by EnsureSchema when migrations have not been
// applied or a required column is absent.
var ErrSchemaMissing = errors.New("database schema is missing or incomplete")

// Options selects and tunes the database connection.
type Options struct {
	Driver       string // sqlite|postgres
	Path         string // SQLite file path
	DSN          string // PostgreSQL DSN
	MaxOpenConns int
	Tracing      bool // install the GORM OpenTelemetry plugin
}

// Open connects using opts and configures the pool.
func Open(opts Options) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch strings.ToLower(opts.Driver) {
	case "", "sqlite":
		db, err = OpenSQLite(opts.Path)
	case "postgres":
		db, err = OpenPostgres(opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported DB driver %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}

	if opts.MaxOpenConns > 0 {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
			sqlDB.SetMaxIdleConns(opts.MaxOpenConns)
		}
	}
	if opts.Tracing {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// OpenSQLite opens (or creates) a SQLite database. PRAGMAs are passed in the
// DSN so that every pooled connection gets them.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." && !strings.HasPrefix(path, "file:") {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := path + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	return db, nil
}

// OpenPostgres opens a PostgreSQL database.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres DSN is empty")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	return db, nil
}

// Models lists every persisted type, in dependency order.
func Models() []any {
	return []any{
		&domain.Session{},
		&domain.Report{},
		&domain.Image{},
		&domain.CreditAccount{},
		&domain.CreditLogEntry{},
		&domain.ValidatorQuota{},
		&domain.Outfit{},
		&domain.UnresolvedPayment{},
		&domain.Idempotency{},
		&domain.SchemaMeta{},
	}
}

// AutoMigrate applies the schema and stamps schema_meta with SchemaVersion.
// It refuses to run against a database stamped by a newer binary.
func AutoMigrate(db *gorm.DB) error {
	if v, err := currentVersion(db); err == nil && v > SchemaVersion {
		return fmt.Errorf("%w: database=%d binary=%d", ErrSchemaTooNew, v, SchemaVersion)
	}
	if err := db.AutoMigrate(Models()...); err != nil {
		return err
	}
	meta := domain.SchemaMeta{ID: 1, Version: SchemaVersion, UpdatedAt: time.Now().UTC()}
	return db.Save(&meta).Error
}

// requiredColumns are the columns the services rely on. A database that
// lacks any of them was created by an older, unmigrated deployment.
var requiredColumns = map[any][]string{
	&domain.Report{}:         {"status", "payload", "image_hash", "recovery_sent_at", "paid_at", "analyzed_at", "processing_at"},
	&domain.Image{}:          {"object_key"},
	&domain.CreditLogEntry{}: {"external_id", "session_id"},
	&domain.ValidatorQuota{}: {"validator_times"},
}

// EnsureSchema is the startup capability check: the database must carry the
// exact schema version of this binary and every required column.
func EnsureSchema(ctx context.Context, db *gorm.DB) error {
	v, err := currentVersion(db.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaMissing, err)
	}
	if v > SchemaVersion {
		return fmt.Errorf("%w: database=%d binary=%d", ErrSchemaTooNew, v, SchemaVersion)
	}
	if v < SchemaVersion {
		return fmt.Errorf("%w: database=%d binary=%d, run migrations", ErrSchemaMissing, v, SchemaVersion)
	}
	m := db.WithContext(ctx).Migrator()
	for model, cols := range requiredColumns {
		for _, col := range cols {
			if !m.HasColumn(model, col) {
				return fmt.Errorf("%w: %T.%s", ErrSchemaMissing, model, col)
			}
		}
	}
	return nil
}

func currentVersion(db *gorm.DB) (int, error) {
	if !db.Migrator().HasTable(&domain.SchemaMeta{}) {
		return 0, errors.New("schema_meta table not found")
	}
	var meta domain.SchemaMeta
	if err := db.First(&meta, "id = ?", 1).Error; err != nil {
		return 0, err
	}
	return meta.Version, nil
}
