// Package config holds process-wide ambient settings for qconfig: the
// environment variables that seed the default path resolver, the
// idle-eviction window for the source cache, and the logger used
// throughout the other packages.
package config

import (
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

var (
	// UserHomeEnv, when set, overrides the directory qconfig treats as
	// the user's writable configuration root. Otherwise pathresolve
	// falls back to os.UserConfigDir.
	UserHomeEnv = "QCONFIG_HOME"

	// SystemHomeEnv, when set, overrides the directory qconfig treats
	// as the read-only system configuration root.
	SystemHomeEnv = "QCONFIG_SYSTEM_HOME"

	// CacheIdleWindow is how long a Source may sit unused in the
	// SourceCache before it is evicted. Spec floor is 5 minutes.
	CacheIdleWindow = 5 * time.Minute
)

func init() {
	if level := os.Getenv("QCONFIG_LOG_LEVEL"); level != "" {
		if parsed, err := log.ParseLevel(level); err == nil {
			log.SetLevel(parsed)
		} else {
			log.Warningf("config: ignoring invalid QCONFIG_LOG_LEVEL %q: %v", level, err)
		}
	}
}

// Logger is the package-wide logger. Every qconfig package logs through
// this instance (or a child created via WithField) so that log level and
// formatting stay consistent across the module.
var Logger = log.StandardLogger()
