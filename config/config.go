package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Security    SecurityConfig    `mapstructure:"security"`
	Progression ProgressionConfig `mapstructure:"progression"`
	Audit       AuditConfig       `mapstructure:"audit"`
}

type ServerConfig struct {
	Port  int  `mapstructure:"port"`
	Debug bool `mapstructure:"debug"`
	// AdminKey guards /api/admin. Empty disables admin routes.
	AdminKey string `mapstructure:"admin_key"`
	// ServiceKey is shared with collaborator services posting events.
	ServiceKey string   `mapstructure:"service_key"`
	AdminIPs   []string `mapstructure:"admin_ips"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // memory | sqlite | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
}

type SecurityConfig struct {
	JWTSecret      string  `mapstructure:"jwt_secret"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

type ProgressionConfig struct {
	// Timezone fixes the calendar used for daily/weekly mission cycles.
	Timezone           string        `mapstructure:"timezone"`
	CatalogPath        string        `mapstructure:"catalog_path"`
	LeaderboardRefresh time.Duration `mapstructure:"leaderboard_refresh"`
	LeaderboardSize    int           `mapstructure:"leaderboard_size"`
	SettleInterval     time.Duration `mapstructure:"settle_interval"`
	XP                 XPConfig      `mapstructure:"xp"`
}

// XPConfig is the XP awarded per accepted event kind.
type XPConfig struct {
	MaterialCompleted    int64 `mapstructure:"material_completed"`
	AssignmentSubmitted  int64 `mapstructure:"assignment_submitted"`
	AssignmentGraded     int64 `mapstructure:"assignment_graded"`
	PerfectScore         int64 `mapstructure:"perfect_score"`
	ForumPost            int64 `mapstructure:"forum_post"`
	ForumReply           int64 `mapstructure:"forum_reply"`
	CourseCompleted      int64 `mapstructure:"course_completed"`
	QuizPointsPerCorrect int64 `mapstructure:"quiz_points_per_correct"`
}

type AuditConfig struct {
	Buffer        int           `mapstructure:"buffer"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// Location resolves the configured timezone, falling back to UTC when unset.
func (p ProgressionConfig) Location() (*time.Location, error) {
	if p.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(p.Timezone)
}

// DefaultXP returns the stock XP table.
func DefaultXP() XPConfig {
	return XPConfig{
		MaterialCompleted:    50,
		AssignmentSubmitted:  10,
		AssignmentGraded:     30,
		PerfectScore:         50,
		ForumPost:            10,
		ForumReply:           5,
		CourseCompleted:      200,
		QuizPointsPerCorrect: 10,
	}
}

// Load reads config from the given YAML file path. A .env file in the working
// directory is applied first, and PROGRESSION_* environment variables win over
// both. A missing YAML file is not an error; defaults are used.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, err
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("PROGRESSION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	xp := DefaultXP()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.admin_key", "")
	v.SetDefault("server.service_key", "")
	v.SetDefault("server.admin_ips", []string{})
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/progression.db")
	v.SetDefault("database.mysql_dsn", "")
	v.SetDefault("database.mysql_max_open", 50)
	v.SetDefault("database.mysql_max_idle", 10)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("security.jwt_secret", "")
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)
	v.SetDefault("progression.timezone", "UTC")
	v.SetDefault("progression.catalog_path", "")
	v.SetDefault("progression.leaderboard_refresh", "1m")
	v.SetDefault("progression.leaderboard_size", 100)
	v.SetDefault("progression.settle_interval", "5m")
	v.SetDefault("progression.xp.material_completed", xp.MaterialCompleted)
	v.SetDefault("progression.xp.assignment_submitted", xp.AssignmentSubmitted)
	v.SetDefault("progression.xp.assignment_graded", xp.AssignmentGraded)
	v.SetDefault("progression.xp.perfect_score", xp.PerfectScore)
	v.SetDefault("progression.xp.forum_post", xp.ForumPost)
	v.SetDefault("progression.xp.forum_reply", xp.ForumReply)
	v.SetDefault("progression.xp.course_completed", xp.CourseCompleted)
	v.SetDefault("progression.xp.quiz_points_per_correct", xp.QuizPointsPerCorrect)
	v.SetDefault("audit.buffer", 1024)
	v.SetDefault("audit.batch_size", 100)
	v.SetDefault("audit.flush_interval", "2s")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
