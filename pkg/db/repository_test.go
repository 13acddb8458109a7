package db

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smith3v/vocab-battle/pkg/config"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func openMemoryDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		t.Fatalf("failed to open sqlite database: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("failed to access underlying DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		if err := sqlDB.Close(); err != nil {
			t.Fatalf("failed to close database: %v", err)
		}
	})
	return gdb
}

func TestMigrateCreatesEveryTable(t *testing.T) {
	gdb := openMemoryDB(t)
	if err := Migrate(gdb); err != nil {
		t.Fatalf("Migrate returned error: %v", err)
	}
	for _, model := range AllModels() {
		if !gdb.Migrator().HasTable(model) {
			t.Fatalf("expected table for %T", model)
		}
	}
	if !gdb.Migrator().HasIndex(&LearningPart{}, "idx_learning_part_topic_number") {
		t.Fatalf("expected unique index on learning parts")
	}
	// Running twice must be a no-op.
	if err := Migrate(gdb); err != nil {
		t.Fatalf("second Migrate returned error: %v", err)
	}
	if err := Migrate(nil); err != nil {
		t.Fatalf("Migrate(nil) returned error: %v", err)
	}
}

func TestDialectorFor(t *testing.T) {
	if _, err := dialectorFor(config.DatabaseConfig{Driver: "sqlite"}); err == nil {
		t.Fatalf("expected error for sqlite without a path")
	}
	if _, err := dialectorFor(config.DatabaseConfig{Driver: "mysql"}); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}

	path := filepath.Join(t.TempDir(), "nested", "vocab.db")
	d, err := dialectorFor(config.DatabaseConfig{Driver: "SQLite", Path: path})
	if err != nil {
		t.Fatalf("dialectorFor returned error: %v", err)
	}
	if d.Name() != "sqlite" {
		t.Fatalf("expected sqlite dialector, got %q", d.Name())
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Fatalf("expected parent directory to be created: %v", err)
	}

	d, err = dialectorFor(config.DatabaseConfig{Host: "db", Port: 5432})
	if err != nil || d.Name() != "postgres" {
		t.Fatalf("expected postgres by default, got %v err=%v", d, err)
	}
}

func TestPostgresDSN(t *testing.T) {
	dsn := postgresDSN(config.DatabaseConfig{
		Host: "db", User: "vocab", Password: "secret", DBName: "battle", Port: 5433, SSLMode: "disable",
	})
	for _, part := range []string{"host=db", "user=vocab", "password=secret", "dbname=battle", "port=5433", "sslmode=disable"} {
		if !strings.Contains(dsn, part) {
			t.Fatalf("expected %q in dsn %q", part, dsn)
		}
	}
}

func TestInitDBWithSqliteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.db")
	if err := InitDB(config.DatabaseConfig{Driver: "sqlite", Path: path}); err != nil {
		t.Fatalf("InitDB returned error: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := DB.DB(); err == nil {
			sqlDB.Close()
		}
		DB = nil
	})
	if !DB.Migrator().HasTable(&FriendBattle{}) {
		t.Fatalf("expected InitDB to migrate the schema")
	}
}
