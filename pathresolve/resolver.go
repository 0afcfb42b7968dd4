// Package pathresolve provides the default implementation of the
// external Resolver collaborator (spec.md §6.1): it maps a relative
// configuration name to an absolute path under either the user's
// writable configuration root or a read-only system configuration
// root. The core package only ever consumes the Resolver interface;
// this is the batteries-included default, grounded on the teacher's
// $MUSCLE_BASE / $HOME/lib/muscle fallback pattern in config/config.go,
// generalized to also resolve a distinct system root and dispatch on
// runtime.GOOS the way the teacher dispatches mount commands per OS.
package pathresolve

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/qconfig/qconfig/config"
)

// Resolver maps a relative configuration file name to an absolute
// path. Source consumes exactly this interface; it never inspects the
// environment itself.
type Resolver interface {
	UserPath(name string) string
	SystemPath(name string) string
}

// Default is the Resolver built from the process environment: user
// and system roots can each be overridden by an env var
// (config.UserHomeEnv / config.SystemHomeEnv), falling back to
// os.UserConfigDir and a platform-appropriate system directory.
type Default struct{}

func (Default) UserPath(name string) string {
	return filepath.Join(userRoot(), name)
}

func (Default) SystemPath(name string) string {
	return filepath.Join(systemRoot(), name)
}

func userRoot() string {
	if dir := os.Getenv(config.UserHomeEnv); dir != "" {
		return dir
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "qconfig")
	}
	return filepath.Join(os.ExpandEnv("$HOME"), ".config", "qconfig")
}

func systemRoot() string {
	if dir := os.Getenv(config.SystemHomeEnv); dir != "" {
		return dir
	}
	switch runtime.GOOS {
	case "darwin":
		return "/Library/Application Support/qconfig"
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "qconfig")
	default:
		return "/etc/xdg/qconfig"
	}
}
