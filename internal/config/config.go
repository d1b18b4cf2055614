// Package config provides configuration loading and structs for the Kotae server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Upload     UploadConfig     `yaml:"upload"`
	Auth       AuthConfig       `yaml:"auth"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host                  string `yaml:"host"`
	Port                  int    `yaml:"port"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
}

// StorageConfig holds paths for the database and cached vector indices.
type StorageConfig struct {
	DatabasePath  string `yaml:"database_path"`
	IndexCacheDir string `yaml:"index_cache_dir"`
}

// UploadConfig holds upload handling settings.
type UploadConfig struct {
	Dir               string   `yaml:"dir"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
	MaxSizeMB         int      `yaml:"max_size_mb"`
}

// AuthConfig holds bearer-token verification settings.
type AuthConfig struct {
	JWKSURL                string `yaml:"jwks_url"`
	Issuer                 string `yaml:"issuer"`
	RefreshIntervalSeconds int    `yaml:"refresh_interval_seconds"`
}

// EmbeddingConfig holds embedding model settings.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // "ollama" or "openai"
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	CacheSize  int    `yaml:"cache_size"`
}

// GenerationConfig holds answer-generation model settings.
type GenerationConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// RetrievalConfig holds chunking and retrieval settings.
type RetrievalConfig struct {
	TopK         int    `yaml:"top_k"`
	Chunker      string `yaml:"chunker"` // "window" or "sentence"
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
}

// Load reads and parses the config file at path, expands paths, applies
// defaults, and fills API keys from the environment when unset.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.IndexCacheDir = expandPath(cfg.Storage.IndexCacheDir, configDir)
	cfg.Upload.Dir = expandPath(cfg.Upload.Dir, configDir)

	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = os.Getenv("KOTAE_EMBEDDING_API_KEY")
	}
	if cfg.Generation.APIKey == "" {
		cfg.Generation.APIKey = os.Getenv("KOTAE_GENERATION_API_KEY")
	}

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
