package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var ErrInvalidConfig = errors.New("invalid config")

const EnvPrefix = "MEARTH"

type Config struct {
	HTTP       HTTPConfig       `mapstructure:"http"`
	Log        LogConfig        `mapstructure:"log"`
	Store      StoreConfig      `mapstructure:"store"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Loop       LoopConfig       `mapstructure:"loop"`
	Decision   DecisionConfig   `mapstructure:"decision"`
	Poster     PosterConfig     `mapstructure:"poster"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Sinks      SinksConfig      `mapstructure:"sinks"`
	RulesFile  string           `mapstructure:"rules_file"`
	MapFile    string           `mapstructure:"map_file"`
	Rules      RulesOverlay     `mapstructure:"rules"`
	Register   RegisterConfig   `mapstructure:"register"`
	Agents     []AgentConfig    `mapstructure:"agents"`
}

type HTTPConfig struct {
	Addr     string `mapstructure:"addr"`
	FeedAddr string `mapstructure:"feed_addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StoreConfig struct {
	Driver        string `mapstructure:"driver"`
	DSN           string `mapstructure:"dsn"`
	MigrationsDir string `mapstructure:"migrations_dir"`
}

type CacheConfig struct {
	Driver   string `mapstructure:"driver"`
	RedisURL string `mapstructure:"redis_url"`
	Prefix   string `mapstructure:"prefix"`
}

type RetryConfig struct {
	Initial     time.Duration `mapstructure:"initial"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	MaxElapsed  time.Duration `mapstructure:"max_elapsed"`
}

type LoopConfig struct {
	IntervalMin      time.Duration `mapstructure:"interval_min"`
	IntervalMax      time.Duration `mapstructure:"interval_max"`
	DecisionTimeout  time.Duration `mapstructure:"decision_timeout"`
	VisibilityRadius float64       `mapstructure:"visibility_radius"`
	Seed             uint64        `mapstructure:"seed"`
	Retry            RetryConfig   `mapstructure:"retry"`
}

type LLMConfig struct {
	Endpoint    string        `mapstructure:"endpoint"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	PersonaDir  string        `mapstructure:"persona_dir"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Temperature float64       `mapstructure:"temperature"`
}

type DecisionConfig struct {
	Source string    `mapstructure:"source"`
	LLM    LLMConfig `mapstructure:"llm"`
}

type PosterConfig struct {
	Kind       string `mapstructure:"kind"`
	WebhookURL string `mapstructure:"webhook_url"`
}

type SettlementConfig struct {
	Kind     string `mapstructure:"kind"`
	Endpoint string `mapstructure:"endpoint"`
}

type SinksConfig struct {
	ArchivePath string `mapstructure:"archive_path"`
	JournalPath string `mapstructure:"journal_path"`
	NatsURL     string `mapstructure:"nats_url"`
	NatsSubject string `mapstructure:"nats_subject"`
}

type RegisterConfig struct {
	InitialTokens uint64 `mapstructure:"initial_tokens"`
	SpawnArea     int    `mapstructure:"spawn_area"`
}

// AgentConfig seeds an agent at startup. A nil position spawns on a random
// plain cell.
type AgentConfig struct {
	ID        string  `mapstructure:"id"`
	Name      string  `mapstructure:"name"`
	Character string  `mapstructure:"character"`
	X         *int    `mapstructure:"x"`
	Y         *int    `mapstructure:"y"`
	Tokens    *uint64 `mapstructure:"tokens"`
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.feed_addr", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.migrations_dir", "./migrations")
	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.prefix", "mearth/")
	v.SetDefault("loop.interval_min", 30*time.Minute)
	v.SetDefault("loop.interval_max", 60*time.Minute)
	v.SetDefault("loop.decision_timeout", 60*time.Second)
	v.SetDefault("loop.visibility_radius", 5.0)
	v.SetDefault("loop.retry.initial", time.Second)
	v.SetDefault("loop.retry.max_delay", 5*time.Minute)
	v.SetDefault("loop.retry.max_attempts", 0)
	v.SetDefault("loop.retry.max_elapsed", 0)
	v.SetDefault("decision.source", "scripted")
	v.SetDefault("decision.llm.persona_dir", "./characters")
	v.SetDefault("decision.llm.timeout", 60*time.Second)
	v.SetDefault("decision.llm.temperature", 0.7)
	v.SetDefault("poster.kind", "log")
	v.SetDefault("settlement.kind", "none")
	v.SetDefault("sinks.nats_subject", "mearth.events")
	v.SetDefault("register.initial_tokens", 1000)
	v.SetDefault("register.spawn_area", 30)
}

// Load reads an optional config file plus MEARTH_* environment variables.
// Nested keys map to env names with dots replaced by underscores, so
// loop.interval_min becomes MEARTH_LOOP_INTERVAL_MIN.
func Load(v *viper.Viper, path string) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Loop.IntervalMin <= 0 || c.Loop.IntervalMax < c.Loop.IntervalMin {
		return fmt.Errorf("%w: loop interval [%s, %s]", ErrInvalidConfig, c.Loop.IntervalMin, c.Loop.IntervalMax)
	}
	if c.Loop.Retry.MaxAttempts < 0 {
		return fmt.Errorf("%w: loop.retry.max_attempts must not be negative", ErrInvalidConfig)
	}
	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Store.DSN) == "" {
			return fmt.Errorf("%w: store.dsn is required for postgres", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store driver %q", ErrInvalidConfig, c.Store.Driver)
	}
	switch c.Cache.Driver {
	case "memory", "store":
	case "redis":
		if strings.TrimSpace(c.Cache.RedisURL) == "" {
			return fmt.Errorf("%w: cache.redis_url is required for redis", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown cache driver %q", ErrInvalidConfig, c.Cache.Driver)
	}
	switch c.Decision.Source {
	case "scripted":
	case "llm":
		if strings.TrimSpace(c.Decision.LLM.Endpoint) == "" {
			return fmt.Errorf("%w: decision.llm.endpoint is required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown decision source %q", ErrInvalidConfig, c.Decision.Source)
	}
	switch c.Poster.Kind {
	case "log", "feed":
	case "webhook":
		if strings.TrimSpace(c.Poster.WebhookURL) == "" {
			return fmt.Errorf("%w: poster.webhook_url is required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown poster kind %q", ErrInvalidConfig, c.Poster.Kind)
	}
	switch c.Settlement.Kind {
	case "none":
	case "rpc":
		if strings.TrimSpace(c.Settlement.Endpoint) == "" {
			return fmt.Errorf("%w: settlement.endpoint is required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown settlement kind %q", ErrInvalidConfig, c.Settlement.Kind)
	}
	return nil
}
