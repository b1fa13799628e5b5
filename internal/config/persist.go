package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

const (
	configDirName  = "restorepick"
	configFileName = "config.json"
)

func DefaultConfig() Config {
	return Config{
		Source:        SourceMock,
		APIBase:       "https://public-api.wordpress.com/wpcom/v2",
		SafeMode:      true,
		CacheListings: true,
		Theme:         "dark",
		LogLevel:      "info",
		Timeout:       30 * time.Second,
	}
}

func ConfigPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, configDirName, configFileName), nil
}

func LoadConfig() (Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), err
	}
	return LoadConfigFrom(path)
}

// LoadConfigFrom merges the stored file over the defaults. A missing file is
// not an error.
func LoadConfigFrom(path string) (Config, error) {
	config := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return config, err
	}
	var stored fileConfig
	if err := json.Unmarshal(data, &stored); err != nil {
		return config, err
	}
	return mergeConfig(config, stored), nil
}

func SaveConfig(config Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveConfigTo(path, config)
}

func SaveConfigTo(path string, config Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func mergeConfig(base Config, stored fileConfig) Config {
	merged := base
	if stored.Source != nil {
		merged.Source = parseSource(*stored.Source, base.Source)
	}
	if stored.APIBase != nil {
		merged.APIBase = *stored.APIBase
	}
	if stored.SiteID != nil {
		merged.SiteID = *stored.SiteID
	}
	if stored.RewindID != nil {
		merged.RewindID = *stored.RewindID
	}
	if stored.SnapshotDir != nil {
		merged.SnapshotDir = *stored.SnapshotDir
	}
	if stored.Destination != nil {
		merged.Destination = *stored.Destination
	}
	if stored.SafeMode != nil {
		merged.SafeMode = *stored.SafeMode
	}
	if stored.ShowHidden != nil {
		merged.ShowHidden = *stored.ShowHidden
	}
	if stored.CacheListings != nil {
		merged.CacheListings = *stored.CacheListings
	}
	if stored.Theme != nil {
		merged.Theme = *stored.Theme
	}
	if stored.LogLevel != nil {
		merged.LogLevel = *stored.LogLevel
	}
	if stored.LogFile != nil {
		merged.LogFile = *stored.LogFile
	}
	if stored.MetricsAddr != nil {
		merged.MetricsAddr = *stored.MetricsAddr
	}
	if stored.Timeout != nil && *stored.Timeout > 0 {
		merged.Timeout = time.Duration(*stored.Timeout)
	}
	return merged
}

func parseSource(value string, fallback Source) Source {
	switch Source(value) {
	case SourceRemote, SourceLocal, SourceMock:
		return Source(value)
	default:
		return fallback
	}
}
