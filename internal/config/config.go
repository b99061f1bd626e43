// Copyright (c) 2025, the sweepd contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/sweepd/sweepd/internal/domain"
)

// EnvPrefix is the prefix for environment variable overrides, e.g.
// SWEEPD__PORT, SWEEPD__STORAGE_ROOT.
const EnvPrefix = "SWEEPD__"

// AppConfig wraps the typed config and the viper instance that loaded it.
type AppConfig struct {
	Config *domain.Config

	viper *viper.Viper
	mu    sync.RWMutex
}

// New loads configuration from configPath (directory or file). A missing
// config file is not an error; defaults and environment overrides apply.
func New(configPath string, version string) (*AppConfig, error) {
	c := &AppConfig{
		viper: viper.New(),
	}
	c.defaults(version)

	if err := c.load(configPath); err != nil {
		return nil, err
	}
	if err := c.unmarshal(); err != nil {
		return nil, err
	}

	c.watch()
	return c, nil
}

func (c *AppConfig) defaults(version string) {
	c.Config = &domain.Config{
		Version:            version,
		Host:               "0.0.0.0",
		Port:               7733,
		BaseURL:            "/",
		LogLevel:           "INFO",
		LogMaxSize:         50,
		LogMaxBackups:      3,
		EnginePath:         "/usr/local/bin/czkawka_cli",
		StorageRoot:        "/storage",
		TrashDir:           "/config/trash",
		DefaultDirectories: []string{"/storage"},
		DefaultExclusions:  []string{},
	}

	c.viper.SetDefault("host", c.Config.Host)
	c.viper.SetDefault("port", c.Config.Port)
	c.viper.SetDefault("baseUrl", c.Config.BaseURL)
	c.viper.SetDefault("logLevel", c.Config.LogLevel)
	c.viper.SetDefault("logPath", c.Config.LogPath)
	c.viper.SetDefault("logMaxSize", c.Config.LogMaxSize)
	c.viper.SetDefault("logMaxBackups", c.Config.LogMaxBackups)
	c.viper.SetDefault("dataDir", c.Config.DataDir)
	c.viper.SetDefault("enginePath", c.Config.EnginePath)
	c.viper.SetDefault("storageRoot", c.Config.StorageRoot)
	c.viper.SetDefault("trashDir", c.Config.TrashDir)
	c.viper.SetDefault("defaultDirectories", c.Config.DefaultDirectories)
	c.viper.SetDefault("defaultExclusions", c.Config.DefaultExclusions)
}

// bindEnv maps each config key to its SWEEPD__ environment variable,
// converting camelCase keys to SCREAMING_SNAKE, e.g. storageRoot becomes
// SWEEPD__STORAGE_ROOT.
func (c *AppConfig) bindEnv() {
	for _, key := range []string{
		"host", "port", "baseUrl", "logLevel", "logPath", "logMaxSize",
		"logMaxBackups", "dataDir", "enginePath", "storageRoot", "trashDir",
	} {
		_ = c.viper.BindEnv(key, EnvPrefix+envName(key))
	}
}

func envName(key string) string {
	var b strings.Builder
	for _, r := range key {
		if r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

func (c *AppConfig) load(configPath string) error {
	c.viper.SetConfigType("toml")
	c.bindEnv()

	if configPath != "" {
		info, err := os.Stat(configPath)
		switch {
		case err == nil && info.IsDir():
			c.viper.SetConfigFile(filepath.Join(configPath, "config.toml"))
		default:
			c.viper.SetConfigFile(configPath)
		}
	} else {
		c.viper.SetConfigName("config")
		c.viper.AddConfigPath(".")
		c.viper.AddConfigPath("/config")
	}

	if err := c.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config read: %w", err)
	}

	return nil
}

func (c *AppConfig) unmarshal() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.viper.Unmarshal(c.Config); err != nil {
		return fmt.Errorf("config unmarshal: %w", err)
	}
	return nil
}

// watch reloads the config when the file changes on disk. Only keys that are
// safe to change at runtime take effect without a restart; the host/port and
// data dir are read once at startup.
func (c *AppConfig) watch() {
	if c.viper.ConfigFileUsed() == "" {
		return
	}

	c.viper.OnConfigChange(func(e fsnotify.Event) {
		log.Debug().Str("file", e.Name).Msg("Config file changed, reloading")
		if err := c.unmarshal(); err != nil {
			log.Error().Err(err).Msg("Failed to reload config")
		}
	})
	c.viper.WatchConfig()
}

// UserSettings is the subset of the configuration the HTTP API may update.
type UserSettings struct {
	DefaultDirectories []string `json:"defaultDirectories"`
	DefaultExclusions  []string `json:"defaultExclusions"`
	TrashDir           string   `json:"trashDir"`
}

// Settings returns a snapshot of the user-adjustable settings.
func (c *AppConfig) Settings() UserSettings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return UserSettings{
		DefaultDirectories: append([]string(nil), c.Config.DefaultDirectories...),
		DefaultExclusions:  append([]string(nil), c.Config.DefaultExclusions...),
		TrashDir:           c.Config.TrashDir,
	}
}

// UpdateSettings applies and persists the user-adjustable settings. When no
// config file is in use the update is applied in memory only.
func (c *AppConfig) UpdateSettings(s UserSettings) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s.TrashDir != "" && !filepath.IsAbs(s.TrashDir) {
		return fmt.Errorf("trashDir must be absolute: %s", s.TrashDir)
	}

	c.Config.DefaultDirectories = append([]string(nil), s.DefaultDirectories...)
	c.Config.DefaultExclusions = append([]string(nil), s.DefaultExclusions...)
	if s.TrashDir != "" {
		c.Config.TrashDir = s.TrashDir
	}

	c.viper.Set("defaultDirectories", c.Config.DefaultDirectories)
	c.viper.Set("defaultExclusions", c.Config.DefaultExclusions)
	c.viper.Set("trashDir", c.Config.TrashDir)

	if c.viper.ConfigFileUsed() == "" {
		return nil
	}
	if err := c.viper.WriteConfig(); err != nil {
		return fmt.Errorf("config write: %w", err)
	}
	return nil
}

// MergedExclusions combines the built-in exclusion patterns, the configured
// defaults, and the request-supplied extras.
func (c *AppConfig) MergedExclusions(extra []string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Config.MergedExclusions(extra)
}

// DatabasePath returns the sqlite database location: dataDir when set,
// otherwise next to the config file, otherwise the working directory.
func (c *AppConfig) DatabasePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.Config.DataDir != "" {
		return filepath.Join(c.Config.DataDir, "sweepd.db")
	}
	if used := c.viper.ConfigFileUsed(); used != "" {
		return filepath.Join(filepath.Dir(used), "sweepd.db")
	}
	return "sweepd.db"
}
