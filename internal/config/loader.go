package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "codenav.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "CODENAV_PORT")
	setString(&cfg.Server.CORSOrigin, "CODENAV_CORS_ORIGIN")
	setString(&cfg.LSP.Workspace, "CODENAV_LSP_WORKSPACE")
	setDuration(&cfg.LSP.DialTimeout, "CODENAV_LSP_DIAL_TIMEOUT")
	setDuration(&cfg.LSP.RequestTimeout, "CODENAV_LSP_REQUEST_TIMEOUT")
	setDuration(&cfg.LSP.InitializeTimeout, "CODENAV_LSP_INITIALIZE_TIMEOUT")
	setDuration(&cfg.LSP.ShutdownGrace, "CODENAV_LSP_SHUTDOWN_GRACE")
	setDuration(&cfg.LSP.ReadPoll, "CODENAV_LSP_READ_POLL")
	setBool(&cfg.LSP.AutoInstall, "CODENAV_LSP_AUTO_INSTALL")
	setBool(&cfg.Cache.Enabled, "CODENAV_CACHE_ENABLED")
	setInt64(&cfg.Cache.L1MaxSizeMB, "CODENAV_CACHE_L1_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "CODENAV_CACHE_TTL")
	setBool(&cfg.Cache.L2Enabled, "CODENAV_CACHE_L2_ENABLED")
	setString(&cfg.Cache.L2Bucket, "CODENAV_CACHE_L2_BUCKET")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Logging.Level, "CODENAV_LOG_LEVEL")
	setString(&cfg.Logging.Service, "CODENAV_LOG_SERVICE")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.LSP.Workspace == "" {
		return errors.New("lsp.workspace is required")
	}
	if cfg.LSP.RequestTimeout <= 0 {
		return errors.New("lsp.request_timeout must be positive")
	}
	if cfg.LSP.InitializeTimeout < cfg.LSP.RequestTimeout {
		return errors.New("lsp.initialize_timeout must be >= lsp.request_timeout")
	}
	if cfg.LSP.ReadPoll <= 0 {
		return errors.New("lsp.read_poll must be positive")
	}
	if cfg.Cache.Enabled && cfg.Cache.L1MaxSizeMB < 1 {
		return errors.New("cache.l1_max_size_mb must be >= 1")
	}
	if cfg.Cache.L2Enabled && cfg.NATS.URL == "" {
		return errors.New("nats.url is required when cache.l2_enabled is set")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
