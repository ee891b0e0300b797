// Package config loads server configuration from a YAML file with environment
// overrides for deployment-sensitive values.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr   string
	DatabasePath string
	BlobRoot     string
	JWTSecret    string
	TokenTTL     time.Duration
	CallTimeout  time.Duration
}

// fileConfig is the YAML shape; durations are Go duration strings ("24h").
type fileConfig struct {
	ListenAddr   string `yaml:"listen_addr"`
	DatabasePath string `yaml:"database_path"`
	BlobRoot     string `yaml:"blob_root"`
	JWTSecret    string `yaml:"jwt_secret"`
	TokenTTL     string `yaml:"token_ttl"`
	CallTimeout  string `yaml:"call_timeout"`
}

func Default() Config {
	return Config{
		ListenAddr:   ":8090",
		DatabasePath: "platefeed.db",
		BlobRoot:     "blobs",
		TokenTTL:     24 * time.Hour,
		CallTimeout:  10 * time.Second,
	}
}

// Load reads the YAML file at path when it exists and applies env overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %q: %w", path, err)
		}
		var fc fileConfig
		if err := yaml.Unmarshal(raw, &fc); err != nil {
			return cfg, fmt.Errorf("config: parse %q: %w", path, err)
		}
		if fc.ListenAddr != "" {
			cfg.ListenAddr = fc.ListenAddr
		}
		if fc.DatabasePath != "" {
			cfg.DatabasePath = fc.DatabasePath
		}
		if fc.BlobRoot != "" {
			cfg.BlobRoot = fc.BlobRoot
		}
		if fc.JWTSecret != "" {
			cfg.JWTSecret = fc.JWTSecret
		}
		if fc.TokenTTL != "" {
			d, err := time.ParseDuration(fc.TokenTTL)
			if err != nil {
				return cfg, fmt.Errorf("config: token_ttl: %w", err)
			}
			cfg.TokenTTL = d
		}
		if fc.CallTimeout != "" {
			d, err := time.ParseDuration(fc.CallTimeout)
			if err != nil {
				return cfg, fmt.Errorf("config: call_timeout: %w", err)
			}
			cfg.CallTimeout = d
		}
	}

	if v := os.Getenv("PLATEFEED_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("PLATEFEED_DB_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("PLATEFEED_BLOB_ROOT"); v != "" {
		cfg.BlobRoot = v
	}
	if v := os.Getenv("PLATEFEED_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}

	if cfg.JWTSecret == "" {
		return cfg, fmt.Errorf("config: jwt secret is required")
	}
	return cfg, nil
}
