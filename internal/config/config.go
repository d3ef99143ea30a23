// Package config loads the twin's layered configuration: defaults, then a
// YAML file, then TWIN_* environment variables, then command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Allreality/my-twin/internal/assembler"
	"github.com/Allreality/my-twin/internal/embedding"
	"github.com/Allreality/my-twin/internal/emotion"
	"github.com/Allreality/my-twin/internal/ingest"
	"github.com/Allreality/my-twin/internal/turn"
	"github.com/Allreality/my-twin/internal/workmem"
)

// Config is the full twin configuration.
type Config struct {
	DB            string              `mapstructure:"db"`
	Subject       string              `mapstructure:"subject"`
	Personality   PersonalityConfig   `mapstructure:"personality"`
	Emotion       emotion.Params      `mapstructure:"emotion"`
	WorkingMemory WorkingMemoryConfig `mapstructure:"working_memory"`
	Semantic      SemanticConfig      `mapstructure:"semantic"`
	Embedding     embedding.Config    `mapstructure:"embedding"`
	Assembler     AssemblerConfig     `mapstructure:"assembler"`
	Turn          TurnConfig          `mapstructure:"turn"`
	Ingest        IngestConfig        `mapstructure:"ingest"`
	Log           LogConfig           `mapstructure:"log"`
}

// PersonalityConfig locates the descriptor file and selects a mode.
type PersonalityConfig struct {
	File string `mapstructure:"file"`
	Mode string `mapstructure:"mode"`
}

// WorkingMemoryConfig selects and sizes the working memory backend.
type WorkingMemoryConfig struct {
	Backend      string        `mapstructure:"backend"` // sqlite | redis | memory
	MaxTurns     int           `mapstructure:"max_turns"`
	IdleTTL      time.Duration `mapstructure:"idle_ttl"`
	SummaryChars int           `mapstructure:"summary_chars"`
	Redis        RedisConfig   `mapstructure:"redis"`
}

// RedisConfig holds connection settings for the Redis backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// SemanticConfig selects the semantic memory backend.
type SemanticConfig struct {
	Backend string `mapstructure:"backend"` // sqlite | memory
}

// AssemblerConfig sizes the context payload.
type AssemblerConfig struct {
	Budget       int    `mapstructure:"budget"`
	Memories     int    `mapstructure:"memories"`
	SummaryTurns int    `mapstructure:"summary_turns"`
	Tokenizer    string `mapstructure:"tokenizer"` // chars | cl100k
}

// TurnConfig configures the post-processor and its scorers.
type TurnConfig struct {
	ImportanceThreshold float64       `mapstructure:"importance_threshold"`
	Scorer              string        `mapstructure:"scorer"` // rules | openai
	ScorerModel         string        `mapstructure:"scorer_model"`
	APIKey              string        `mapstructure:"api_key"`
	BaseURL             string        `mapstructure:"url"`
	Timeout             time.Duration `mapstructure:"timeout"`
}

// IngestConfig configures bulk knowledge loading.
type IngestConfig struct {
	Workers    int     `mapstructure:"workers"`
	Importance float64 `mapstructure:"importance"`
	MaxChars   int     `mapstructure:"max_chars"`
}

// LogConfig configures logrus output.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // text | json
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// New returns a viper instance with every default registered, so that
// TWIN_* environment variables resolve for every key.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("db", "")
	v.SetDefault("subject", "default")
	v.SetDefault("personality.file", "")
	v.SetDefault("personality.mode", "")
	v.SetDefault("emotion.decay_rate", emotion.DefaultDecayRate)
	v.SetDefault("emotion.max_decay", emotion.DefaultMaxDecay)
	v.SetDefault("emotion.momentum", emotion.DefaultMomentum)
	v.SetDefault("working_memory.backend", "")
	v.SetDefault("working_memory.max_turns", workmem.DefaultMaxTurns)
	v.SetDefault("working_memory.idle_ttl", workmem.DefaultIdleTTL)
	v.SetDefault("working_memory.summary_chars", workmem.DefaultSummaryChars)
	v.SetDefault("working_memory.redis.addr", "localhost:6379")
	v.SetDefault("working_memory.redis.password", "")
	v.SetDefault("working_memory.redis.db", 0)
	v.SetDefault("working_memory.redis.prefix", workmem.DefaultRedisPrefix)
	v.SetDefault("semantic.backend", "sqlite")
	v.SetDefault("embedding.provider", "hash")
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.url", "")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.dims", 0)
	v.SetDefault("embedding.rate_limit", 0)
	v.SetDefault("embedding.burst", 1)
	v.SetDefault("embedding.timeout", 30*time.Second)
	v.SetDefault("assembler.budget", assembler.DefaultBudget)
	v.SetDefault("assembler.memories", assembler.DefaultMemories)
	v.SetDefault("assembler.summary_turns", assembler.DefaultSummaryTurns)
	v.SetDefault("assembler.tokenizer", "chars")
	v.SetDefault("turn.importance_threshold", turn.DefaultImportanceThreshold)
	v.SetDefault("turn.scorer", "rules")
	v.SetDefault("turn.scorer_model", turn.DefaultScorerModel)
	v.SetDefault("turn.api_key", "")
	v.SetDefault("turn.url", "")
	v.SetDefault("turn.timeout", turn.DefaultScorerTimeout)
	v.SetDefault("ingest.workers", ingest.DefaultWorkers)
	v.SetDefault("ingest.importance", ingest.DefaultImportance)
	v.SetDefault("ingest.max_chars", ingest.DefaultMaxChars)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)

	v.SetEnvPrefix("TWIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration into v. An explicit path must exist; without one
// twin.yaml is looked up in the working directory and ~/.twin, and a
// missing file is not an error. A .env file in the working directory is
// loaded first so API keys can live outside the config file.
func Load(v *viper.Viper, path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv("TWIN_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("twin")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".twin"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.DB == "" {
		home, _ := os.UserHomeDir()
		cfg.DB = filepath.Join(home, ".twin", "twin.db")
	}
	cfg.DB = expandHome(cfg.DB)
	cfg.Personality.File = expandHome(cfg.Personality.File)
	cfg.Log.File = expandHome(cfg.Log.File)
	if cfg.WorkingMemory.Backend == "" {
		cfg.WorkingMemory.Backend = "memory"
		if cfg.Semantic.Backend == "sqlite" {
			cfg.WorkingMemory.Backend = "sqlite"
		}
	}
	if cfg.Subject == "" {
		cfg.Subject = "default"
	}
	if cfg.Embedding.APIKey == "" && cfg.Embedding.Provider == "openai" {
		cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Turn.APIKey == "" && cfg.Turn.Scorer == "openai" {
		cfg.Turn.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Embedding.Timeout <= 0 {
		cfg.Embedding.Timeout = 30 * time.Second
	}
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Validate rejects unknown backend names and out-of-range parameters.
func (c *Config) Validate() error {
	switch c.WorkingMemory.Backend {
	case "memory", "redis", "sqlite":
	default:
		return fmt.Errorf("working_memory.backend: unknown backend %q", c.WorkingMemory.Backend)
	}
	switch c.Semantic.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("semantic.backend: unknown backend %q", c.Semantic.Backend)
	}
	switch c.Turn.Scorer {
	case "rules", "openai":
	default:
		return fmt.Errorf("turn.scorer: unknown scorer %q", c.Turn.Scorer)
	}
	if m := c.Emotion.Momentum; m < 0 || m > 1 {
		return fmt.Errorf("emotion.momentum: %v outside [0,1]", m)
	}
	if c.Emotion.DecayRate < 0 || c.Emotion.MaxDecay < 0 {
		return errors.New("emotion: decay_rate and max_decay must not be negative")
	}
	if t := c.Turn.ImportanceThreshold; t < 0 || t > 1 {
		return fmt.Errorf("turn.importance_threshold: %v outside [0,1]", t)
	}
	return nil
}
