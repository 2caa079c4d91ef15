package repo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tbourn/color-report-engine/internal/domain"
)

func TestOpenSQLite_ErrorOnBadPath(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "does-not-exist", "app.db")

	db, err := OpenSQLite(bad)
	if err == nil || db != nil {
		t.Fatalf("expected error opening %q, got db=%v err=%v", bad, db, err)
	}
	lower := strings.ToLower(err.Error())
	if !(os.IsNotExist(err) ||
		strings.Contains(lower, "unable to open database file") ||
		strings.Contains(lower, "no such file or directory") ||
		strings.Contains(lower, "out of memory")) {
		t.Fatalf("unexpected error opening %q: %v", bad, err)
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	if _, err := Open(Options{Driver: "oracle"}); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
	if _, err := Open(Options{Driver: "postgres", DSN: " "}); err == nil {
		t.Fatalf("expected error for empty postgres DSN")
	}
}

func TestOpen_MigrateAndEnsureSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.db")
	db, err := Open(Options{Driver: "sqlite", Path: path, MaxOpenConns: 4, Tracing: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })

	ctx := context.Background()
	if err := EnsureSchema(ctx, db); !errors.Is(err, ErrSchemaMissing) {
		t.Fatalf("EnsureSchema before migrate = %v; want ErrSchemaMissing", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	if err := EnsureSchema(ctx, db); err != nil {
		t.Fatalf("EnsureSchema after migrate: %v", err)
	}
	if sqlDB.Stats().MaxOpenConnections != 4 {
		t.Fatalf("MaxOpenConnections = %d; want 4", sqlDB.Stats().MaxOpenConnections)
	}

	// Foreign keys are enabled on every pooled connection.
	var fk int
	if err := db.Raw("PRAGMA foreign_keys").Scan(&fk).Error; err != nil || fk != 1 {
		t.Fatalf("foreign_keys = %d (err=%v); want 1", fk, err)
	}
}

func TestEnsureSchema_RejectsNewerDatabase(t *testing.T) {
	db := newTestDB(t)
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	db.Model(&domain.SchemaMeta{}).Where("id = 1").Update("version", SchemaVersion+1)

	if err := EnsureSchema(context.Background(), db); !errors.Is(err, ErrSchemaTooNew) {
		t.Fatalf("EnsureSchema = %v; want ErrSchemaTooNew", err)
	}
	if err := AutoMigrate(db); !errors.Is(err, ErrSchemaTooNew) {
		t.Fatalf("AutoMigrate = %v; want ErrSchemaTooNew", err)
	}
}

func TestEnsureSchema_DetectsMissingColumn(t *testing.T) {
	db := newTestDB(t)
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	if err := db.Migrator().DropColumn(&domain.Image{}, "object_key"); err != nil {
		t.Fatalf("drop column: %v", err)
	}
	err := EnsureSchema(context.Background(), db)
	if !errors.Is(err, ErrSchemaMissing) || !strings.Contains(err.Error(), "object_key") {
		t.Fatalf("EnsureSchema = %v; want ErrSchemaMissing naming object_key", err)
	}
}
