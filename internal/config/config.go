package config

import (
	"errors"
	"fmt"
	"time"
)

type Source string

const (
	SourceRemote Source = "remote"
	SourceLocal  Source = "local"
	SourceMock   Source = "mock"
)

const TokenEnv = "RESTOREPICK_TOKEN"

type Config struct {
	Source        Source        `json:"source"`
	APIBase       string        `json:"apiBase"`
	SiteID        string        `json:"siteId"`
	RewindID      string        `json:"rewindId"`
	SnapshotDir   string        `json:"snapshotDir"`
	Destination   string        `json:"destination"`
	SafeMode      bool          `json:"safeMode"`
	ShowHidden    bool          `json:"showHidden"`
	CacheListings bool          `json:"cacheListings"`
	Theme         string        `json:"theme"`
	LogLevel      string        `json:"logLevel"`
	LogFile       string        `json:"logFile"`
	MetricsAddr   string        `json:"metricsAddr"`
	Timeout       time.Duration `json:"timeout"`
	Token         string        `json:"-"`
}

type fileConfig struct {
	Source        *string `json:"source"`
	APIBase       *string `json:"apiBase"`
	SiteID        *string `json:"siteId"`
	RewindID      *string `json:"rewindId"`
	SnapshotDir   *string `json:"snapshotDir"`
	Destination   *string `json:"destination"`
	SafeMode      *bool   `json:"safeMode"`
	ShowHidden    *bool   `json:"showHidden"`
	CacheListings *bool   `json:"cacheListings"`
	Theme         *string `json:"theme"`
	LogLevel      *string `json:"logLevel"`
	LogFile       *string `json:"logFile"`
	MetricsAddr   *string `json:"metricsAddr"`
	Timeout       *int64  `json:"timeout"`
}

var ErrIncomplete = errors.New("incomplete configuration")

// Validate reports what a source is missing before any request is made.
func (config Config) Validate() error {
	switch config.Source {
	case SourceRemote:
		if config.APIBase == "" || config.SiteID == "" || config.RewindID == "" {
			return fmt.Errorf("%w: remote source needs api base, site and rewind id", ErrIncomplete)
		}
		if config.Token == "" {
			return fmt.Errorf("%w: set %s for the remote source", ErrIncomplete, TokenEnv)
		}
	case SourceLocal:
		if config.SnapshotDir == "" {
			return fmt.Errorf("%w: local source needs a snapshot directory", ErrIncomplete)
		}
	case SourceMock:
	default:
		return fmt.Errorf("unknown source %q", config.Source)
	}
	return nil
}
