// Package config loads service configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/scoutline/orchestrator/internal/browseruse"
	"github.com/scoutline/orchestrator/internal/db"
	"github.com/scoutline/orchestrator/internal/discovery"
	"github.com/scoutline/orchestrator/internal/firecrawl"
	"github.com/scoutline/orchestrator/internal/tracing"
)

// Workflow caps: per-request concurrency above MaxConcurrency is rejected
// at the API boundary.
const (
	DefaultCandidateConcurrency = 5
	MaxCandidateConcurrency     = 25
)

// ServiceConfig holds the HTTP surface settings.
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Port        int    `mapstructure:"port"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

// RedisConfig holds the lookup cache settings.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// WorkflowConfig holds orchestration defaults.
type WorkflowConfig struct {
	DefaultConcurrency int `mapstructure:"default_concurrency"`
	MaxConcurrency     int `mapstructure:"max_concurrency"`
	DefaultTotalPages  int `mapstructure:"default_total_pages"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the full service configuration.
type Config struct {
	Service    ServiceConfig     `mapstructure:"service"`
	Database   db.Config         `mapstructure:"database"`
	Redis      RedisConfig       `mapstructure:"redis"`
	BrowserUse browseruse.Config `mapstructure:"browseruse"`
	Firecrawl  firecrawl.Config  `mapstructure:"firecrawl"`
	Discovery  discovery.Config  `mapstructure:"discovery"`
	Workflow   WorkflowConfig    `mapstructure:"workflow"`
	Tracing    tracing.Config    `mapstructure:"tracing"`
	Logging    LoggingConfig     `mapstructure:"logging"`
}

// Load reads configuration from CONFIG_PATH (default
// /app/config/orchestrator.yaml). Environment variables override file values
// with a SCOUT_ prefix and underscores for nesting, e.g.
// SCOUT_BROWSERUSE_API_KEY.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "/app/config/orchestrator.yaml"
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine; env vars and defaults carry the config.
		if _, ok := err.(*os.PathError); !ok {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every known key; AutomaticEnv only sees keys viper
// already knows about, so secrets get an empty default here.
func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "scoutline-orchestrator")
	v.SetDefault("service.port", 8081)
	v.SetDefault("service.metrics_port", 2112)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "scout")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "scoutline")
	v.SetDefault("database.ssl_mode", "require")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_ttl", 24*time.Hour)

	v.SetDefault("browseruse.base_url", "")
	v.SetDefault("browseruse.api_key", "")
	v.SetDefault("browseruse.default_max_steps", 0)
	v.SetDefault("browseruse.sessions_per_minute", 0)

	v.SetDefault("firecrawl.base_url", "")
	v.SetDefault("firecrawl.api_key", "")
	v.SetDefault("firecrawl.search_limit", 0)

	v.SetDefault("discovery.command", "uv")
	v.SetDefault("discovery.args", []string{"run", "python", "scraper.py"})
	v.SetDefault("discovery.work_dir", "")
	v.SetDefault("discovery.credential_profile_id", "")

	v.SetDefault("workflow.default_concurrency", DefaultCandidateConcurrency)
	v.SetDefault("workflow.max_concurrency", MaxCandidateConcurrency)
	v.SetDefault("workflow.default_total_pages", 1)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "scoutline-orchestrator")
	v.SetDefault("tracing.otlp_endpoint", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
