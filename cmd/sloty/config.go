package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tailscale/hujson"
)

var (
	errConfigFileNotFound = errors.New("config file not found")
	errConfigFileRead     = errors.New("cannot read config file")
	errConfigInvalid      = errors.New("invalid config file")
	errHistoryLimit       = errors.New("history_limit cannot be negative")
	errGCTimeout          = errors.New("gc_timeout must be a positive duration")
)

// Config holds all configuration options.
type Config struct {
	Prompt       string `json:"prompt,omitempty"`
	HistoryFile  string `json:"history_file,omitempty"`  //nolint:tagliatelle // snake_case for config file
	HistoryLimit int    `json:"history_limit,omitempty"` //nolint:tagliatelle // snake_case for config file
	GCTimeout    string `json:"gc_timeout,omitempty"`    //nolint:tagliatelle // snake_case for config file

	// gcTimeout is GCTimeout parsed by validateConfig.
	gcTimeout time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Prompt:       "sloty> ",
		HistoryFile:  "~/.sloty_history",
		HistoryLimit: 1000,
		GCTimeout:    "2s",
	}
}

// getGlobalConfigPath returns the path to the global config file.
// Uses $XDG_CONFIG_HOME/sloty/config.json if set, otherwise ~/.config/sloty/config.json.
// Returns empty string if home directory cannot be determined.
func getGlobalConfigPath(env map[string]string) string {
	if xdgConfig := env["XDG_CONFIG_HOME"]; xdgConfig != "" {
		return filepath.Join(xdgConfig, "sloty", "config.json")
	}

	home := homeDir(env)
	if home == "" {
		return ""
	}

	return filepath.Join(home, ".config", "sloty", "config.json")
}

func homeDir(env map[string]string) string {
	if home := env["HOME"]; home != "" {
		return home
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return home
}

// LoadConfig loads configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config, or the explicit config file via configPath (if non-empty).
//
// The returned path is the file that was loaded, empty if none.
func LoadConfig(configPath string, env map[string]string) (Config, string, error) {
	cfg := DefaultConfig()

	path := configPath
	mustExist := configPath != ""

	if path == "" {
		path = getGlobalConfigPath(env)
	}

	var loadedFrom string

	if path != "" {
		fileCfg, loaded, err := loadConfigFile(path, mustExist)
		if err != nil {
			return Config{}, "", err
		}

		if loaded {
			cfg = mergeConfig(cfg, fileCfg)
			loadedFrom = path
		}
	}

	cfg.HistoryFile = expandHome(cfg.HistoryFile, env)

	err := validateConfig(&cfg)
	if err != nil {
		if loadedFrom != "" {
			return Config{}, "", fmt.Errorf("%w %s: %w", errConfigInvalid, loadedFrom, err)
		}

		return Config{}, "", err
	}

	return cfg, loadedFrom, nil
}

// loadConfigFile loads a config file. If mustExist is false, missing files return zero config.
// Returns the config, whether the file was loaded, and any error.
func loadConfigFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is intentionally user-controlled
	if err != nil {
		if os.IsNotExist(err) {
			if mustExist {
				return Config{}, false, fmt.Errorf("%w: %s", errConfigFileNotFound, path)
			}

			return Config{}, false, nil
		}

		return Config{}, false, fmt.Errorf("%w: %s: %w", errConfigFileRead, path, err)
	}

	cfg, parseErr := parseConfig(data)
	if parseErr != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", errConfigInvalid, path, parseErr)
	}

	return cfg, true, nil
}

func parseConfig(data []byte) (Config, error) {
	// Standardize JSONC to JSON
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config

	unmarshalErr := json.Unmarshal(standardized, &cfg)
	if unmarshalErr != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", unmarshalErr)
	}

	return cfg, nil
}

func mergeConfig(base, overlay Config) Config {
	if overlay.Prompt != "" {
		base.Prompt = overlay.Prompt
	}

	if overlay.HistoryFile != "" {
		base.HistoryFile = overlay.HistoryFile
	}

	if overlay.HistoryLimit != 0 {
		base.HistoryLimit = overlay.HistoryLimit
	}

	if overlay.GCTimeout != "" {
		base.GCTimeout = overlay.GCTimeout
	}

	return base
}

func validateConfig(cfg *Config) error {
	if cfg.HistoryLimit < 0 {
		return errHistoryLimit
	}

	timeout, err := time.ParseDuration(cfg.GCTimeout)
	if err != nil || timeout <= 0 {
		return fmt.Errorf("%w: %q", errGCTimeout, cfg.GCTimeout)
	}

	cfg.gcTimeout = timeout

	return nil
}

// expandHome replaces a leading "~/" with the home directory.
func expandHome(path string, env map[string]string) string {
	rest, ok := strings.CutPrefix(path, "~/")
	if !ok {
		return path
	}

	home := homeDir(env)
	if home == "" {
		return path
	}

	return filepath.Join(home, rest)
}
