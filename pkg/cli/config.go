package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

const (
	// DefaultBaseDir is the base configuration directory name
	DefaultBaseDir = ".retrieva"
	// DefaultConfigFile is the default configuration filename
	DefaultConfigFile = "config.yaml"
)

// Metadata backends.
const (
	BackendBadger = "badger"
	BackendBolt   = "bolt"
	BackendMemory = "memory"
)

// Storage backends.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// Config is the retrieva configuration file.
type Config struct {
	// DataDir holds metadata and local snapshots. Default ~/.retrieva/data.
	DataDir string `json:"data_dir,omitempty" yaml:"data_dir,omitempty"`

	Metadata   MetadataConfig   `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Storage    StorageConfig    `json:"storage,omitempty" yaml:"storage,omitempty"`
	Embedder   EmbedderConfig   `json:"embedder,omitempty" yaml:"embedder,omitempty"`
	Generation GenerationConfig `json:"generation,omitempty" yaml:"generation,omitempty"`
	Chunk      ChunkConfig      `json:"chunk,omitempty" yaml:"chunk,omitempty"`
	Server     ServerConfig     `json:"server,omitempty" yaml:"server,omitempty"`
	Search     SearchConfig     `json:"search,omitempty" yaml:"search,omitempty"`

	// configPath is the path to the config file
	configPath string
}

// MetadataConfig selects where the session table is kept.
type MetadataConfig struct {
	// Backend is badger (default), bolt or memory.
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty"`
}

// StorageConfig selects where session snapshots are written.
type StorageConfig struct {
	// Backend is local (default) or s3.
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty"`

	Bucket          string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Prefix          string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Region          string `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint        string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	PathStyle       bool   `json:"path_style,omitempty" yaml:"path_style,omitempty"`
	AccessKeyID     string `json:"access_key_id,omitempty" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty" yaml:"secret_access_key,omitempty"`
}

// EmbedderConfig configures the process-wide embedder.
type EmbedderConfig struct {
	// Provider is hash (default), openai or dashscope.
	Provider  string `json:"provider,omitempty" yaml:"provider,omitempty"`
	Model     string `json:"model,omitempty" yaml:"model,omitempty"`
	Dimension int    `json:"dimension,omitempty" yaml:"dimension,omitempty"`
	BaseURL   string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	APIKey    string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
}

// GenerationConfig configures answer generation. Keys usually come from
// GEMINI_API_KEY and OPENAI_API_KEY.
type GenerationConfig struct {
	GeminiAPIKey string `json:"gemini_api_key,omitempty" yaml:"gemini_api_key,omitempty"`
	GeminiModel  string `json:"gemini_model,omitempty" yaml:"gemini_model,omitempty"`
	OpenAIAPIKey string `json:"openai_api_key,omitempty" yaml:"openai_api_key,omitempty"`
	OpenAIModel  string `json:"openai_model,omitempty" yaml:"openai_model,omitempty"`

	// MaxRetries bounds Gemini attempts on quota errors.
	MaxRetries int `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
}

// ChunkConfig configures document splitting. Zero means the ingest default.
type ChunkConfig struct {
	Size    int `json:"size,omitempty" yaml:"size,omitempty"`
	Overlap int `json:"overlap,omitempty" yaml:"overlap,omitempty"`
}

// ServerConfig configures `retrieva serve`.
type ServerConfig struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

// SearchConfig configures retrieval.
type SearchConfig struct {
	K int `json:"k,omitempty" yaml:"k,omitempty"`
}

// DefaultAddr is the listen address when none is configured.
const DefaultAddr = ":8000"

// LoadConfig loads or creates ~/.retrieva/config.yaml.
func LoadConfig() (*Config, error) {
	return LoadConfigWithPath("")
}

// LoadConfigWithPath loads configuration from a custom path
func LoadConfigWithPath(customPath string) (*Config, error) {
	configPath := customPath
	if configPath == "" {
		paths, err := NewPaths()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = paths.ConfigFile()
	}

	// Ensure config directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	cfg := &Config{configPath: configPath}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Create empty config file
			return cfg, cfg.Save()
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.configPath = configPath

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves the configuration to disk
func (c *Config) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Path returns the config file path
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the config directory path
func (c *Config) Dir() string {
	return filepath.Dir(c.configPath)
}

// Validate checks backend names and numeric settings.
func (c *Config) Validate() error {
	switch c.Metadata.Backend {
	case "", BackendBadger, BackendBolt, BackendMemory:
	default:
		return fmt.Errorf("unknown metadata backend %q", c.Metadata.Backend)
	}
	switch c.Storage.Backend {
	case "", StorageLocal:
	case StorageS3:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Chunk.Size < 0 || c.Chunk.Overlap < 0 {
		return fmt.Errorf("chunk size and overlap must not be negative")
	}
	if c.Search.K < 0 {
		return fmt.Errorf("search.k must not be negative")
	}
	return nil
}

// ApplyEnv overrides settings from the environment. Only non-empty
// variables take effect.
//
//	RETRIEVA_DATA_DIR   data_dir
//	GEMINI_API_KEY      generation.gemini_api_key
//	OPENAI_API_KEY      generation.openai_api_key, and embedder.api_key for openai
//	DASHSCOPE_API_KEY   embedder.api_key for dashscope
//	AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY, AWS_REGION
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.DataDir, "RETRIEVA_DATA_DIR")
	set(&c.Generation.GeminiAPIKey, "GEMINI_API_KEY")
	set(&c.Generation.OpenAIAPIKey, "OPENAI_API_KEY")
	set(&c.Storage.AccessKeyID, "AWS_ACCESS_KEY_ID")
	set(&c.Storage.SecretAccessKey, "AWS_SECRET_ACCESS_KEY")
	set(&c.Storage.Region, "AWS_REGION")

	if c.Embedder.APIKey == "" {
		switch c.Embedder.Provider {
		case "openai":
			set(&c.Embedder.APIKey, "OPENAI_API_KEY")
		case "dashscope":
			set(&c.Embedder.APIKey, "DASHSCOPE_API_KEY")
		}
	}
}

// ResolveDataDir returns DataDir, or the default under the config
// directory.
func (c *Config) ResolveDataDir() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	return filepath.Join(c.Dir(), "data")
}

// Redacted returns a copy safe for display, with secrets masked.
func (c *Config) Redacted() *Config {
	r := *c
	r.Embedder.APIKey = MaskAPIKey(c.Embedder.APIKey)
	r.Generation.GeminiAPIKey = MaskAPIKey(c.Generation.GeminiAPIKey)
	r.Generation.OpenAIAPIKey = MaskAPIKey(c.Generation.OpenAIAPIKey)
	r.Storage.SecretAccessKey = MaskAPIKey(c.Storage.SecretAccessKey)
	return &r
}

// MaskAPIKey masks the API key for display
func MaskAPIKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
