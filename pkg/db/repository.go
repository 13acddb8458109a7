// pkg/db/repository.go
package db

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/smith3v/vocab-battle/pkg/config"
	"github.com/smith3v/vocab-battle/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Export DB variable
var DB *gorm.DB

func InitDB(cfg config.DatabaseConfig) error {
	logCfg := config.AppConfig.Logging
	gormLogger, gormErr := newQueryLogger(logCfg.GormLevel, time.Duration(logCfg.SlowQueryMs)*time.Millisecond)
	if gormErr != nil {
		logger.Error("invalid gorm log level", "value", logCfg.GormLevel, "error", gormErr)
	}

	dialector, err := dialectorFor(cfg)
	if err != nil {
		logger.Error("failed to prepare database dialector", "driver", cfg.Driver, "error", err)
		return err
	}
	gdb, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger})
	if err != nil {
		logger.Error("failed to connect to database", "driver", cfg.Driver, "error", err)
		return err
	}
	if err := Migrate(gdb); err != nil {
		logger.Error("failed to auto-migrate database", "error", err)
		return err
	}
	DB = gdb
	return nil
}

func Migrate(gdb *gorm.DB) error {
	if gdb == nil {
		return nil
	}
	return gdb.AutoMigrate(AllModels()...)
}

func dialectorFor(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "postgres":
		return postgres.Open(postgresDSN(cfg)), nil
	case "sqlite":
		path := cfg.Path
		if path == "" {
			return nil, fmt.Errorf("sqlite driver requires database.path")
		}
		if path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, err
			}
		}
		return sqlite.Open(path), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func postgresDSN(cfg config.DatabaseConfig) string {
	return "host=" + cfg.Host +
		" user=" + cfg.User +
		" password=" + cfg.Password +
		" dbname=" + cfg.DBName +
		" port=" + strconv.Itoa(cfg.Port) +
		" sslmode=" + cfg.SSLMode
}
