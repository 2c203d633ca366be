// Package config provides hierarchical configuration loading for codenav.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the codenav service.
type Config struct {
	Server  Server  `yaml:"server"`
	LSP     LSP     `yaml:"lsp"`
	Cache   Cache   `yaml:"cache"`
	NATS    NATS    `yaml:"nats"`
	Logging Logging `yaml:"logging"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// LSP holds language server and protocol client configuration.
type LSP struct {
	Workspace         string        `yaml:"workspace"`          // root directory sent as rootUri
	DialTimeout       time.Duration `yaml:"dial_timeout"`       // TCP connect timeout
	RequestTimeout    time.Duration `yaml:"request_timeout"`    // default per-request timeout
	InitializeTimeout time.Duration `yaml:"initialize_timeout"` // extended timeout for the handshake
	ShutdownGrace     time.Duration `yaml:"shutdown_grace"`     // wait after SIGTERM before SIGKILL
	ReadPoll          time.Duration `yaml:"read_poll"`          // read deadline used to observe stop flags
	AutoInstall       bool          `yaml:"auto_install"`       // attempt install when a server binary is missing
	Servers           Servers       `yaml:"servers"`            // per-language command overrides
}

// Servers maps language ids to launch command overrides.
type Servers map[string][]string

// Cache holds query-result cache configuration.
type Cache struct {
	Enabled     bool          `yaml:"enabled"`
	L1MaxSizeMB int64         `yaml:"l1_max_size_mb"`
	TTL         time.Duration `yaml:"ttl"`
	L2Enabled   bool          `yaml:"l2_enabled"` // requires a reachable NATS server
	L2Bucket    string        `yaml:"l2_bucket"`
}

// NATS holds NATS JetStream configuration for the optional L2 cache.
type NATS struct {
	URL string `yaml:"url"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

// Defaults returns a Config with sensible default values for local use.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "8090",
			CORSOrigin: "http://localhost:3000",
		},
		LSP: LSP{
			Workspace:         ".",
			DialTimeout:       5 * time.Second,
			RequestTimeout:    10 * time.Second,
			InitializeTimeout: 30 * time.Second,
			ShutdownGrace:     500 * time.Millisecond,
			ReadPoll:          500 * time.Millisecond,
			AutoInstall:       false,
			Servers:           Servers{},
		},
		Cache: Cache{
			Enabled:     true,
			L1MaxSizeMB: 32,
			TTL:         30 * time.Second,
			L2Enabled:   false,
			L2Bucket:    "codenav-lsp",
		},
		NATS: NATS{
			URL: "nats://localhost:4222",
		},
		Logging: Logging{
			Level:   "info",
			Service: "codenav",
		},
	}
}
