package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/ajitpratap0/graphnet/internal/models"
)

const (
	// DefaultChunkSize is the default character count per text chunk.
	DefaultChunkSize = 1000

	// DefaultChunkOverlap is the default character overlap between adjacent chunks.
	DefaultChunkOverlap = 200

	// DefaultMinConfidence is the default extraction confidence floor.
	DefaultMinConfidence = 0.3

	// DefaultMaxEntitiesPerChunk caps extraction candidates per chunk.
	DefaultMaxEntitiesPerChunk = 25
)

// Config holds all configuration for graphnet.
type Config struct {
	Neo4j    Neo4jConfig    `mapstructure:"neo4j"`
	Claude   ClaudeConfig   `mapstructure:"claude"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Query    QueryConfig    `mapstructure:"query"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	API      APIConfig      `mapstructure:"api"`
}

// Neo4jConfig holds graph database connection settings. An empty URI selects
// the embedded in-memory store instead of Neo4j.
type Neo4jConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// ClaudeConfig holds Anthropic Claude API settings.
type ClaudeConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// String returns a safe representation of ClaudeConfig with the API key masked.
func (c ClaudeConfig) String() string {
	return fmt.Sprintf("ClaudeConfig{APIKey:%s, Model:%s}", maskAPIKey(c.APIKey), c.Model)
}

// maskAPIKey shows first 4 + last 4 chars, replacing the middle with asterisks.
func maskAPIKey(key string) string {
	const visible = 4
	if len(key) <= visible*2 {
		return "***"
	}
	return key[:visible] + "****" + key[len(key)-visible:]
}

// PipelineConfig holds chunking and extraction settings.
type PipelineConfig struct {
	ChunkSize           int     `mapstructure:"chunk_size"`
	ChunkOverlap        int     `mapstructure:"chunk_overlap"`
	MinConfidence       float64 `mapstructure:"min_confidence"`
	MaxEntitiesPerChunk int     `mapstructure:"max_entities_per_chunk"`
	Concurrency         int     `mapstructure:"concurrency"`
	TimeoutSeconds      int     `mapstructure:"timeout_seconds"`
}

// QueryConfig holds query execution settings.
type QueryConfig struct {
	MaxResults int `mapstructure:"max_results"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	AuthToken  string `mapstructure:"auth_token"`
}

// Load reads configuration from file and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("neo4j.uri", "")
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.password", "")
	v.SetDefault("neo4j.database", "neo4j")

	v.SetDefault("claude.model", "claude-haiku-4-5-20251001")

	v.SetDefault("pipeline.chunk_size", DefaultChunkSize)
	v.SetDefault("pipeline.chunk_overlap", DefaultChunkOverlap)
	v.SetDefault("pipeline.min_confidence", DefaultMinConfidence)
	v.SetDefault("pipeline.max_entities_per_chunk", DefaultMaxEntitiesPerChunk)
	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("pipeline.timeout_seconds", 60)

	v.SetDefault("query.max_results", 25)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("api.listen_addr", ":8080")
	v.SetDefault("api.auth_token", "")

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(homeDir(), ".graphnet"))
	v.AddConfigPath(".")

	// Environment variables
	v.SetEnvPrefix("GRAPHNET")
	v.AutomaticEnv()

	// Map specific env vars
	_ = v.BindEnv("claude.api_key", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("neo4j.uri", "GRAPHNET_NEO4J_URI")
	_ = v.BindEnv("neo4j.username", "GRAPHNET_NEO4J_USERNAME")
	_ = v.BindEnv("neo4j.password", "GRAPHNET_NEO4J_PASSWORD")
	_ = v.BindEnv("api.listen_addr", "GRAPHNET_API_LISTEN_ADDR")
	_ = v.BindEnv("api.auth_token", "GRAPHNET_API_AUTH_TOKEN")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is OK — use defaults + env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that configuration fields are consistent. Violations are
// fatal and reported before any processing starts.
func (c *Config) Validate() error {
	if c.Pipeline.ChunkSize <= 0 {
		return fmt.Errorf("%w: pipeline.chunk_size must be greater than 0", models.ErrConfiguration)
	}
	if c.Pipeline.ChunkOverlap < 0 {
		return fmt.Errorf("%w: pipeline.chunk_overlap must be >= 0", models.ErrConfiguration)
	}
	if c.Pipeline.ChunkOverlap >= c.Pipeline.ChunkSize {
		return fmt.Errorf("%w: pipeline.chunk_overlap (%d) must be less than pipeline.chunk_size (%d)",
			models.ErrConfiguration, c.Pipeline.ChunkOverlap, c.Pipeline.ChunkSize)
	}
	if c.Pipeline.MinConfidence < 0 || c.Pipeline.MinConfidence > 1 {
		return fmt.Errorf("%w: pipeline.min_confidence must be between 0 and 1", models.ErrConfiguration)
	}
	if c.Pipeline.MaxEntitiesPerChunk <= 0 {
		return fmt.Errorf("%w: pipeline.max_entities_per_chunk must be greater than 0", models.ErrConfiguration)
	}
	if c.Pipeline.Concurrency <= 0 {
		return fmt.Errorf("%w: pipeline.concurrency must be greater than 0", models.ErrConfiguration)
	}
	if c.Pipeline.TimeoutSeconds <= 0 {
		return fmt.Errorf("%w: pipeline.timeout_seconds must be greater than 0", models.ErrConfiguration)
	}
	if c.Query.MaxResults <= 0 {
		return fmt.Errorf("%w: query.max_results must be greater than 0", models.ErrConfiguration)
	}
	if c.Neo4j.URI != "" && c.Neo4j.Username == "" {
		return fmt.Errorf("%w: neo4j.username must not be empty when neo4j.uri is set", models.ErrConfiguration)
	}
	return nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
