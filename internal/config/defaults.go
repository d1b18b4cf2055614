package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeoutSeconds == 0 {
		cfg.Server.RequestTimeoutSeconds = 90
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kotae/data/db/kotae.db"
	}
	if cfg.Storage.IndexCacheDir == "" {
		cfg.Storage.IndexCacheDir = "/usr/local/var/kotae/data/indices"
	}
	if cfg.Upload.Dir == "" {
		cfg.Upload.Dir = "/usr/local/var/kotae/data/uploads"
	}
	if cfg.Upload.AllowedExtensions == nil {
		cfg.Upload.AllowedExtensions = []string{".pdf", ".txt"}
	}
	if cfg.Upload.MaxSizeMB == 0 {
		cfg.Upload.MaxSizeMB = 32
	}
	if cfg.Auth.RefreshIntervalSeconds == 0 {
		cfg.Auth.RefreshIntervalSeconds = 3600
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "ollama"
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "http://localhost:11434"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "nomic-embed-text"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 768
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Generation.BaseURL == "" {
		cfg.Generation.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = "gpt-4o-mini"
	}
	if cfg.Generation.TimeoutSeconds == 0 {
		cfg.Generation.TimeoutSeconds = 60
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 3
	}
	if cfg.Retrieval.Chunker == "" {
		cfg.Retrieval.Chunker = "window"
	}
	if cfg.Retrieval.ChunkSize == 0 {
		cfg.Retrieval.ChunkSize = 200
	}
	if cfg.Retrieval.ChunkOverlap == 0 {
		cfg.Retrieval.ChunkOverlap = 40
	}
}
