package config

import (
	"os"

	"github.com/spf13/pflag"
)

// ParseFlags applies command line overrides on top of base. The API token
// only ever comes from the environment.
func ParseFlags(base Config, args []string) (Config, error) {
	flags := pflag.NewFlagSet("restorepick", pflag.ContinueOnError)
	source := flags.StringP("source", "s", string(base.Source), "Listing source: remote, local or mock")
	apiBase := flags.String("api", base.APIBase, "Backup API base URL")
	siteID := flags.String("site", base.SiteID, "Site ID")
	rewindID := flags.StringP("rewind", "r", base.RewindID, "Backup snapshot (rewind) ID")
	snapshotDir := flags.StringP("snapshot-dir", "d", base.SnapshotDir, "Local snapshot directory for the local source")
	destination := flags.StringP("dest", "o", base.Destination, "Default restore/download destination")
	safeMode := flags.Bool("safe-mode", base.SafeMode, "Confirm before restoring and block critical destinations")
	showHidden := flags.Bool("show-hidden", base.ShowHidden, "Show hidden entries of local snapshots")
	cache := flags.Bool("cache", base.CacheListings, "Cache snapshot listings on disk")
	theme := flags.String("theme", base.Theme, "Color theme: dark or light")
	logLevel := flags.String("log-level", base.LogLevel, "Log level: debug, info, warn, error")
	logFile := flags.String("log-file", base.LogFile, "Log file path")
	metricsAddr := flags.String("metrics-addr", base.MetricsAddr, "Serve Prometheus metrics on this address")
	timeout := flags.Duration("timeout", base.Timeout, "Backup API request timeout")

	if err := flags.Parse(args); err != nil {
		return base, err
	}

	base.Source = parseSource(*source, base.Source)
	base.APIBase = *apiBase
	base.SiteID = *siteID
	base.RewindID = *rewindID
	base.SnapshotDir = *snapshotDir
	base.Destination = *destination
	base.SafeMode = *safeMode
	base.ShowHidden = *showHidden
	base.CacheListings = *cache
	base.Theme = *theme
	base.LogLevel = *logLevel
	base.LogFile = *logFile
	base.MetricsAddr = *metricsAddr
	base.Timeout = *timeout
	base.Token = os.Getenv(TokenEnv)
	return base, nil
}
