package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config represents the global ~/.achat/config.toml.
type Config struct {
	DefaultSession string        `toml:"default_session"`
	Hub            HubConfig     `toml:"hub"`
	Log            LogConfig     `toml:"log"`
	History        HistoryConfig `toml:"history"`
}

// HubConfig locates the realtime hub and the file service.
type HubConfig struct {
	URL      string `toml:"url"`
	FilesURL string `toml:"files_url"`
	Token    string `toml:"token"`
}

// LogConfig controls the daemon log file and its rotation.
type LogConfig struct {
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// HistoryConfig tunes message paging.
type HistoryConfig struct {
	PageSize int `toml:"page_size"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Hub: HubConfig{
			URL:      "ws://localhost:8080/ws",
			FilesURL: "http://localhost:8080/files",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  20,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
		History: HistoryConfig{PageSize: 50},
	}
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithEnv reads the config file if present, then loads a .env file from
// the working directory if present, then applies ACHAT_* environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, err
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	ApplyEnv(cfg)
	return cfg, nil
}

// ApplyEnv overrides cfg with any ACHAT_* variables that are set.
func ApplyEnv(cfg *Config) {
	setString(&cfg.DefaultSession, "ACHAT_SESSION")
	setString(&cfg.Hub.URL, "ACHAT_HUB_URL")
	setString(&cfg.Hub.FilesURL, "ACHAT_FILES_URL")
	setString(&cfg.Hub.Token, "ACHAT_TOKEN")
	setString(&cfg.Log.Level, "ACHAT_LOG_LEVEL")
	setInt(&cfg.History.PageSize, "ACHAT_PAGE_SIZE")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
