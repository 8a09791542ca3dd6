// Package config loads and persists the YAML configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/airone01/isod/internal/safety"
)

// Config is the top-level configuration.
type Config struct {
	General GeneralConfig           `yaml:"general"`
	Distros map[string]DistroConfig `yaml:"distros"`
}

// GeneralConfig holds download behavior settings.
type GeneralConfig struct {
	MaxConcurrentDownloads int    `yaml:"max_concurrent_downloads"`
	PreferTorrents         bool   `yaml:"prefer_torrents"`
	VerifyChecksums        bool   `yaml:"verify_checksums"`
	ResumeDownloads        bool   `yaml:"resume_downloads"`
	OutputDirectory        string `yaml:"output_directory"`
	UserAgent              string `yaml:"user_agent"`
	HistoryDB              string `yaml:"history_db"`
}

// DistroConfig pins per-distro selections used when the command line leaves
// them unset.
type DistroConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Variant      string `yaml:"variant,omitempty"`
	Architecture string `yaml:"architecture,omitempty"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			MaxConcurrentDownloads: 3,
			VerifyChecksums:        true,
			ResumeDownloads:        true,
			OutputDirectory:        ".",
			UserAgent:              safety.DefaultUserAgent,
		},
		Distros: map[string]DistroConfig{
			"ubuntu": {Enabled: true, Variant: "desktop", Architecture: "amd64"},
			"fedora": {Enabled: true, Variant: "workstation", Architecture: "x86_64"},
		},
	}
}

// Load reads a config file from the given path. Missing keys keep their
// default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.General.MaxConcurrentDownloads <= 0 {
		cfg.General.MaxConcurrentDownloads = 1
	}
	return cfg, nil
}

// LoadOrDefault loads the file when it exists and otherwise returns defaults.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	return Load(path)
}

// Save writes the config to the given path, creating parent directories.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// FindConfigFile searches for a config file in standard locations.
func FindConfigFile() (string, error) {
	searchPaths := []string{
		"isod.yaml",
		"/etc/isod/isod.yaml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths,
			filepath.Join(home, ".config", "isod", "isod.yaml"),
		)
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", searchPaths)
}

// DefaultPath is where a fresh config gets written.
func DefaultPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "isod", "isod.yaml")
	}
	return "isod.yaml"
}

// DistroFor returns the pinned selections for a distro, if any.
func (c *Config) DistroFor(name string) (DistroConfig, bool) {
	dc, ok := c.Distros[name]
	return dc, ok
}

// HistoryDBPath resolves the history database location, defaulting next to
// the config file.
func (c *Config) HistoryDBPath() string {
	if c.General.HistoryDB != "" {
		return c.General.HistoryDB
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "isod", "history.db")
	}
	return "isod-history.db"
}
