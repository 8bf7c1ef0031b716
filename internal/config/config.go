// vnrec - VNDB Recommendation Engine
// Copyright 2026 vndb-tools
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vndb-tools/vnrec

// Package config defines the vnrec configuration and its loading rules.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then environment variables. See koanf.go for the loading mechanics.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the vnrec service.
type Config struct {
	Database  DatabaseConfig  `koanf:"database"`
	Server    ServerConfig    `koanf:"server"`
	VNDB      VNDBConfig      `koanf:"vndb"`
	Recommend RecommendConfig `koanf:"recommend"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// DatabaseConfig configures the DuckDB rating store.
type DatabaseConfig struct {
	// Path is the database file location. Empty means in-memory.
	Path string `koanf:"path"`

	// MaxMemory caps DuckDB memory usage (e.g. "1GB").
	MaxMemory string `koanf:"max_memory"`

	// Threads is the DuckDB thread count. 0 = runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`

	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// VNDBConfig configures the remote rating service client.
type VNDBConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	// Username and Password are optional; when set the login command
	// includes credentials.
	Username string `koanf:"username"`
	Password string `koanf:"password"`

	DialTimeout     time.Duration `koanf:"dial_timeout"`
	ExchangeTimeout time.Duration `koanf:"exchange_timeout"`

	// RequestsPerSecond throttles outbound commands. The public endpoint
	// drops sessions that exceed its command quota.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
}

// RecommendConfig configures the recommendation engine and its algorithms.
type RecommendConfig struct {
	// RebuildOnStartup triggers a pairwise-table rebuild when the service starts.
	RebuildOnStartup bool `koanf:"rebuild_on_startup"`

	// RebuildInterval is how often the pairwise tables are rebuilt.
	// Zero disables periodic rebuilds.
	RebuildInterval time.Duration `koanf:"rebuild_interval"`

	// DefaultLimit is the recommendation count when the caller omits one.
	DefaultLimit int `koanf:"default_limit"`

	// MaxLimit caps the per-request recommendation count.
	MaxLimit int `koanf:"max_limit"`

	// SimilarUserLimit caps the similar-user shortlist.
	SimilarUserLimit int `koanf:"similar_user_limit"`

	// MinTitleVotes is the aggregate vote count a title needs before it
	// participates in the pairwise tables.
	MinTitleVotes int `koanf:"min_title_votes"`

	// MinLift is the smallest co-vote lift persisted to the overlap table.
	MinLift float64 `koanf:"min_lift"`

	// MinPairVotes is the minimum paired votes for a regression fit.
	MinPairVotes int `koanf:"min_pair_votes"`

	// MinOverlap is the minimum stored overlap consulted at prediction time.
	MinOverlap int `koanf:"min_overlap"`

	// MinPredictedScore is the raw-score eligibility floor for regression
	// candidates (10-100 scale).
	MinPredictedScore float64 `koanf:"min_predicted_score"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for values that would misbehave at runtime.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive")
	}
	if c.VNDB.Host == "" {
		return fmt.Errorf("vndb.host must not be empty")
	}
	if c.VNDB.Port < 1 || c.VNDB.Port > 65535 {
		return fmt.Errorf("vndb.port %d out of range", c.VNDB.Port)
	}
	if c.VNDB.RequestsPerSecond <= 0 {
		return fmt.Errorf("vndb.requests_per_second must be positive")
	}
	if (c.VNDB.Username == "") != (c.VNDB.Password == "") {
		return fmt.Errorf("vndb.username and vndb.password must be set together")
	}
	if c.Recommend.DefaultLimit < 1 {
		return fmt.Errorf("recommend.default_limit must be at least 1")
	}
	if c.Recommend.MaxLimit < c.Recommend.DefaultLimit {
		return fmt.Errorf("recommend.max_limit %d below default_limit %d",
			c.Recommend.MaxLimit, c.Recommend.DefaultLimit)
	}
	if c.Recommend.SimilarUserLimit < 1 {
		return fmt.Errorf("recommend.similar_user_limit must be at least 1")
	}
	if c.Recommend.MinTitleVotes < 1 {
		return fmt.Errorf("recommend.min_title_votes must be at least 1")
	}
	if c.Recommend.MinLift < 0 {
		return fmt.Errorf("recommend.min_lift must not be negative")
	}
	if c.Recommend.MinPairVotes < 2 {
		return fmt.Errorf("recommend.min_pair_votes must be at least 2")
	}
	if c.Recommend.MinOverlap < 1 {
		return fmt.Errorf("recommend.min_overlap must be at least 1")
	}
	return nil
}
