// Copyright (c) 2026 Vedvix
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TenantConfig holds mailbox credentials and storage settings for one tenant.
type TenantConfig struct {
	Alias          string `yaml:"alias"`
	Name           string `yaml:"name"`
	Provider       string `yaml:"provider"` // "graph" or "imap"
	MailboxAddress string `yaml:"mailbox_address"`
	StoragePrefix  string `yaml:"storage_prefix"`

	// Microsoft Graph (provider: graph)
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`

	// IMAP (provider: imap)
	IMAPHost     string `yaml:"imap_host"` // host:port, TLS
	IMAPUsername string `yaml:"imap_username"`
	IMAPPassword string `yaml:"imap_password"`
}

// StorageConfig selects and configures the blob store backend.
type StorageConfig struct {
	Type            string        // "local" or "gcs"
	LocalBasePath   string        // local: directory for uploads
	LocalBaseURL    string        // local: public base URL for download links
	GCSBucket       string        // gcs: bucket name
	CredentialsFile string        // gcs: optional service account key file
	URLExpiry       time.Duration // presigned URL lifetime
}

// ExtractionConfig points at the document-intelligence service.
type ExtractionConfig struct {
	BaseURL string
	Timeout time.Duration
}

// Config holds all configuration for the intake service.
type Config struct {
	Tenants []TenantConfig

	DatabaseURL string
	RedisURL    string

	Storage    StorageConfig
	Extraction ExtractionConfig

	// Polling
	PollInterval        time.Duration
	PollEnabled         bool
	MaxEmailsPerBatch   int
	ConfidenceThreshold float64

	// Ops / health server
	Port int
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Tenants []TenantConfig `yaml:"tenants"`
	Storage struct {
		Type            string `yaml:"type"`
		LocalBasePath   string `yaml:"local_base_path"`
		LocalBaseURL    string `yaml:"local_base_url"`
		GCSBucket       string `yaml:"gcs_bucket"`
		CredentialsFile string `yaml:"credentials_file"`
	} `yaml:"storage"`
	Extraction struct {
		URL string `yaml:"url"`
	} `yaml:"extraction"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "/app/config/config.yaml")
	return LoadFile(configPath)
}

// LoadFile reads configuration from the given YAML file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	// Expand ${VAR} references in the YAML
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	cfg := &Config{
		DatabaseURL: firstNonEmpty(raw.Database.URL, envOrDefault("DATABASE_URL", "postgres://localhost:5432/syncledger")),
		RedisURL:    firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		Storage: StorageConfig{
			Type:            firstNonEmpty(raw.Storage.Type, envOrDefault("STORAGE_TYPE", "local")),
			LocalBasePath:   firstNonEmpty(raw.Storage.LocalBasePath, envOrDefault("STORAGE_LOCAL_PATH", "./uploads")),
			LocalBaseURL:    firstNonEmpty(raw.Storage.LocalBaseURL, envOrDefault("STORAGE_LOCAL_URL", "http://localhost:8080/files")),
			GCSBucket:       firstNonEmpty(raw.Storage.GCSBucket, os.Getenv("STORAGE_GCS_BUCKET")),
			CredentialsFile: firstNonEmpty(raw.Storage.CredentialsFile, os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")),
			URLExpiry:       envOrDefaultDuration("STORAGE_URL_EXPIRY", time.Hour),
		},
		Extraction: ExtractionConfig{
			BaseURL: firstNonEmpty(raw.Extraction.URL, envOrDefault("EXTRACTION_SERVICE_URL", "http://localhost:8001")),
			Timeout: envOrDefaultDuration("EXTRACTION_TIMEOUT", 60*time.Second),
		},
		PollInterval:        envOrDefaultDuration("POLL_INTERVAL", 5*time.Minute),
		PollEnabled:         envOrDefaultBool("POLL_ENABLED", true),
		MaxEmailsPerBatch:   envOrDefaultInt("MAX_EMAILS_PER_BATCH", 50),
		ConfidenceThreshold: envOrDefaultFloat("CONFIDENCE_THRESHOLD", 0.87),
		Port:                envOrDefaultInt("PORT", 8080),
	}

	for _, t := range raw.Tenants {
		if t.Provider == "" {
			t.Provider = "graph"
		}

		// Skip tenants with incomplete credentials (commented out in YAML)
		switch t.Provider {
		case "graph":
			if t.TenantID == "" || t.ClientID == "" || t.ClientSecret == "" {
				continue
			}
		case "imap":
			if t.IMAPHost == "" || t.IMAPUsername == "" || t.IMAPPassword == "" {
				continue
			}
		default:
			return nil, fmt.Errorf("tenant %q: unknown mail provider %q", t.Alias, t.Provider)
		}

		if t.Alias == "" {
			return nil, fmt.Errorf("tenant with mailbox %q has no alias", t.MailboxAddress)
		}
		if t.StoragePrefix == "" {
			t.StoragePrefix = t.Alias
		}

		cfg.Tenants = append(cfg.Tenants, t)
	}

	if len(cfg.Tenants) == 0 {
		return nil, fmt.Errorf("no tenants configured, check config.yaml and environment variables")
	}

	if cfg.ConfidenceThreshold < 0 || cfg.ConfidenceThreshold > 1 {
		return nil, fmt.Errorf("CONFIDENCE_THRESHOLD must be in [0,1], got %v", cfg.ConfidenceThreshold)
	}

	return cfg, nil
}

// Tenant returns the tenant config with the given alias, or nil.
func (c *Config) Tenant(alias string) *TenantConfig {
	for i := range c.Tenants {
		if c.Tenants[i].Alias == alias {
			return &c.Tenants[i]
		}
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envOrDefaultBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
