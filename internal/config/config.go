package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App       App       `mapstructure:"app"`
	Discord   Discord   `mapstructure:"discord"`
	AI        AI        `mapstructure:"ai"`
	Database  Database  `mapstructure:"database"`
	Scoring   Scoring   `mapstructure:"scoring"`
	Retriever Retriever `mapstructure:"retriever"`
	Pipeline  Pipeline  `mapstructure:"pipeline"`
	Scheduler Scheduler `mapstructure:"scheduler"`
	Logging   Logging   `mapstructure:"logging"`
}

// App holds general application configuration.
type App struct {
	Debug bool `mapstructure:"debug"`
}

// Discord holds chat-platform configuration.
type Discord struct {
	Token          string `mapstructure:"token"`
	CommandTimeout string `mapstructure:"command_timeout"`
	FetchLimit     int    `mapstructure:"fetch_limit"` // Message history fetch size for on-demand commands
}

// AI holds text-completion and embedding configuration.
type AI struct {
	Gemini GeminiConfig `mapstructure:"gemini"`
}

// GeminiConfig holds Google Gemini configuration.
type GeminiConfig struct {
	APIKey         string  `mapstructure:"api_key"`
	Model          string  `mapstructure:"model"`
	EmbeddingModel string  `mapstructure:"embedding_model"`
	Timeout        string  `mapstructure:"timeout"`
	MaxTokens      int32   `mapstructure:"max_tokens"`
	Temperature    float32 `mapstructure:"temperature"`
}

// Database holds Postgres configuration. The same database backs the
// configuration store, dispatch records, and the pgvector message index.
type Database struct {
	URL          string `mapstructure:"url"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// Scoring is the single tunable table for the controversy scorer. All
// weights and caps live here rather than spread through scorer logic.
type Scoring struct {
	ReplyVelocityWeight  float64 `mapstructure:"reply_velocity_weight"`
	ReplyVelocityCap     float64 `mapstructure:"reply_velocity_cap"` // Replies per hour, capped
	ReactionWeight       float64 `mapstructure:"reaction_weight"`
	NegativeWeight       float64 `mapstructure:"negative_weight"` // Extra weight for disagreement reactions
	KeywordIncrement     float64 `mapstructure:"keyword_increment"`
	KeywordCap           float64 `mapstructure:"keyword_cap"`
	MinVelocityWindowMin int     `mapstructure:"min_velocity_window_min"` // Floor on the age used for velocity, minutes
}

// Retriever holds candidate-selection tunables.
type Retriever struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	MaxClusters         int     `mapstructure:"max_clusters"`
	WindowHours         int     `mapstructure:"window_hours"`
	MinMessages         int     `mapstructure:"min_messages"` // Below this the run short-circuits
}

// Pipeline holds stage-chain tunables.
type Pipeline struct {
	StageTimeout  string `mapstructure:"stage_timeout"`
	MaxRetries    int    `mapstructure:"max_retries"`
	RetryBackoff  string `mapstructure:"retry_backoff"` // Base backoff, doubled per attempt
	RunBudget     string `mapstructure:"run_budget"`    // Total wall-clock budget per community run
	MaxStories    int    `mapstructure:"max_stories"`
	MaxQuoteChars int    `mapstructure:"max_quote_chars"`
}

// Scheduler holds due-community polling configuration.
type Scheduler struct {
	PollInterval   string `mapstructure:"poll_interval"`
	MaxConcurrent  int    `mapstructure:"max_concurrent"`
	IngestOnDemand bool   `mapstructure:"ingest_on_demand"` // Ingest the window at run start instead of relying on continuous ingestion only
}

// Logging holds logging configuration.
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var globalConfig *Config

// Load loads the configuration from .env, config file, and environment.
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".snitch")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary.
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// setDefaults sets default configuration values.
func setDefaults() {
	// App defaults
	viper.SetDefault("app.debug", false)

	// Discord defaults
	viper.SetDefault("discord.command_timeout", "25s")
	viper.SetDefault("discord.fetch_limit", 30)

	// AI defaults
	viper.SetDefault("ai.gemini.model", "gemini-flash-lite-latest")
	viper.SetDefault("ai.gemini.embedding_model", "gemini-embedding-001")
	viper.SetDefault("ai.gemini.timeout", "30s")
	viper.SetDefault("ai.gemini.max_tokens", 2048)
	viper.SetDefault("ai.gemini.temperature", 0.7)

	// Database defaults
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)

	// Scoring defaults
	viper.SetDefault("scoring.reply_velocity_weight", 0.5)
	viper.SetDefault("scoring.reply_velocity_cap", 10.0)
	viper.SetDefault("scoring.reaction_weight", 0.1)
	viper.SetDefault("scoring.negative_weight", 0.3)
	viper.SetDefault("scoring.keyword_increment", 0.25)
	viper.SetDefault("scoring.keyword_cap", 1.0)
	viper.SetDefault("scoring.min_velocity_window_min", 10)

	// Retriever defaults
	viper.SetDefault("retriever.similarity_threshold", 0.82)
	viper.SetDefault("retriever.max_clusters", 3)
	viper.SetDefault("retriever.window_hours", 24)
	viper.SetDefault("retriever.min_messages", 5)

	// Pipeline defaults
	viper.SetDefault("pipeline.stage_timeout", "30s")
	viper.SetDefault("pipeline.max_retries", 2)
	viper.SetDefault("pipeline.retry_backoff", "2s")
	viper.SetDefault("pipeline.run_budget", "2m")
	viper.SetDefault("pipeline.max_stories", 5)
	viper.SetDefault("pipeline.max_quote_chars", 200)

	// Scheduler defaults
	viper.SetDefault("scheduler.poll_interval", "5m")
	viper.SetDefault("scheduler.max_concurrent", 4)
	viper.SetDefault("scheduler.ingest_on_demand", true)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// bindEnvironmentVariables sets up flexible environment variable binding.
func bindEnvironmentVariables() {
	bindEnvKeys("discord.token", []string{
		"DISCORD_TOKEN",
		"DISCORD_BOT_TOKEN",
	})

	bindEnvKeys("ai.gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})

	bindEnvKeys("database.url", []string{
		"DATABASE_URL",
		"POSTGRES_URL",
	})
}

// bindEnvKeys binds the first set environment variable to a viper key.
func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

// validateConfig checks durations and bounds so bad values fail at startup
// rather than mid-run.
func validateConfig(config *Config) error {
	for name, value := range map[string]string{
		"discord.command_timeout": config.Discord.CommandTimeout,
		"ai.gemini.timeout":       config.AI.Gemini.Timeout,
		"pipeline.stage_timeout":  config.Pipeline.StageTimeout,
		"pipeline.retry_backoff":  config.Pipeline.RetryBackoff,
		"pipeline.run_budget":     config.Pipeline.RunBudget,
		"scheduler.poll_interval": config.Scheduler.PollInterval,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %q", name, value)
		}
	}

	if config.Retriever.SimilarityThreshold <= 0 || config.Retriever.SimilarityThreshold >= 1 {
		return fmt.Errorf("retriever.similarity_threshold must be in (0, 1), got %f", config.Retriever.SimilarityThreshold)
	}
	if config.Scheduler.MaxConcurrent < 1 {
		return fmt.Errorf("scheduler.max_concurrent must be at least 1")
	}
	return nil
}

// Duration parses a duration config value that validateConfig has already
// checked. Falls back to def if parsing fails anyway.
func Duration(value string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}
