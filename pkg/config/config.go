package config

import (
	"strings"
	"time"

	"github.com/smith3v/vocab-battle/pkg/logger"
	"github.com/spf13/viper"
)

type Config struct {
	Database     DatabaseConfig     `mapstructure:"database"`
	Telegram     TelegramConfig     `mapstructure:"telegram"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Content      ContentConfig      `mapstructure:"content"`
	FriendBattle FriendBattleConfig `mapstructure:"friend_battle"`
	Maintenance  MaintenanceConfig  `mapstructure:"maintenance"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Port     int    `mapstructure:"port"`
	SSLMode  string `mapstructure:"sslmode"`
	// Path is the sqlite database file.
	Path string `mapstructure:"path"`
}

type TelegramConfig struct {
	Token    string  `mapstructure:"token"`
	AdminIDs []int64 `mapstructure:"admin_ids"`
}

type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	File      string `mapstructure:"file"`
	Format    string `mapstructure:"format"`
	GormLevel string `mapstructure:"gorm_level"`
	// SlowQueryMs is the threshold above which queries are logged as slow.
	SlowQueryMs int `mapstructure:"slow_query_ms"`
}

type ContentConfig struct {
	PartSize           int  `mapstructure:"part_size"`
	SessionCount       int  `mapstructure:"session_count"`
	SessionSize        int  `mapstructure:"session_size"`
	RefreshDistractors bool `mapstructure:"refresh_distractors"`
}

type FriendBattleConfig struct {
	TTLHours int `mapstructure:"ttl_hours"`
	// PlayTTLHours bounds how long a started battle can be finished.
	PlayTTLHours int `mapstructure:"play_ttl_hours"`
}

func (c FriendBattleConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

func (c FriendBattleConfig) PlayTTL() time.Duration {
	return time.Duration(c.PlayTTLHours) * time.Hour
}

type MaintenanceConfig struct {
	SweepIntervalMinutes    int `mapstructure:"sweep_interval_minutes"`
	RegenerateIntervalHours int `mapstructure:"regenerate_interval_hours"`
}

type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

var AppConfig Config

const envPrefix = "VOCAB"

func setDefaults(v *viper.Viper) {
	// Every key needs a default so AutomaticEnv can override keys the file omits.
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "data/vocab-battle.db")

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.admin_ids", []int64{})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.gorm_level", "warn")
	v.SetDefault("logging.slow_query_ms", 200)

	v.SetDefault("content.part_size", 15)
	v.SetDefault("content.session_count", 10)
	v.SetDefault("content.session_size", 10)
	v.SetDefault("content.refresh_distractors", false)

	v.SetDefault("friend_battle.ttl_hours", 24)
	v.SetDefault("friend_battle.play_ttl_hours", 48)

	v.SetDefault("maintenance.sweep_interval_minutes", 60)
	v.SetDefault("maintenance.regenerate_interval_hours", 0)

	v.SetDefault("metrics.listen", "")
}

// LoadConfig reads a JSON config file into AppConfig. Any key can be
// overridden from the environment as VOCAB_<SECTION>_<KEY>.
func LoadConfig(filename string) error {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(filename)
	v.SetConfigType("json")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		logger.Error("failed to read config file", "file", filename, "error", err)
		return err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		logger.Error("failed to decode config file", "file", filename, "error", err)
		return err
	}

	AppConfig = cfg
	return nil
}
