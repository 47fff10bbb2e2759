package config

import "time"

// Reindex modes; the values match indexer.ReindexInPlace and indexer.ReindexSwap.
const (
	ReindexInPlace = "in_place"
	ReindexSwap    = "swap"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.StateBackend == "" {
		cfg.Storage.StateBackend = "sqlite"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/contentindex/data/state.db"
	}
	if cfg.Storage.IndexRoot == "" {
		cfg.Storage.IndexRoot = "/usr/local/var/contentindex/data/indexes"
	}
	if cfg.Indexing.MaxFieldsPerDocument == 0 {
		cfg.Indexing.MaxFieldsPerDocument = 64
	}
	if cfg.Indexing.Workers == 0 {
		cfg.Indexing.Workers = 4
	}
	if cfg.Reindex.Mode == "" {
		cfg.Reindex.Mode = ReindexInPlace
	}
	if cfg.Reindex.BatchSize == 0 {
		cfg.Reindex.BatchSize = 100
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 20
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 200
	}
	if cfg.Search.CandidateLimit == 0 {
		cfg.Search.CandidateLimit = 1000
	}
	if cfg.Search.CacheSize == 0 {
		cfg.Search.CacheSize = 1024
	}
	if cfg.Watch.Inbox != "" && cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 250 * time.Millisecond
	}
}
