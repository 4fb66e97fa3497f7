// Package version provides centralized version information for the
// billevents application.
//
// The version variables are set during build using ldflags:
//
//	-ldflags "-X billevents/internal/version.version=v1.0.0 -X billevents/internal/version.commit=abc123 -X billevents/internal/version.buildTime=2025-01-01T00:00:00Z"
package version

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// These variables are set via ldflags during build.
//
//nolint:gochecknoglobals // Required for build-time injection via ldflags.
var (
	version   string
	commit    string
	buildTime string
)

// ApplicationName is the name displayed in version output.
const ApplicationName = "BillEvents CLI"

// Default values used when version information is not available.
const (
	DefaultVersion   = "dev"
	DefaultCommit    = "unknown"
	DefaultBuildTime = "unknown"
)

// VersionInfo encapsulates version information with proper defaults.
type VersionInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// GetVersion returns the current version information, applying defaults for
// any build variable that was not injected.
func GetVersion() *VersionInfo {
	info := &VersionInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
	if info.Version == "" {
		info.Version = DefaultVersion
	}
	if info.Commit == "" {
		info.Commit = DefaultCommit
	}
	if info.BuildTime == "" {
		info.BuildTime = DefaultBuildTime
	}
	return info
}

// FormatShort returns a single-line output containing only the version number.
func (vi *VersionInfo) FormatShort() string {
	return vi.Version
}

// FormatFull returns a multi-line output with the application name, version,
// commit, and build time.
func (vi *VersionInfo) FormatFull() string {
	var builder strings.Builder
	builder.WriteString(ApplicationName)
	builder.WriteString("\n")
	builder.WriteString("Version: ")
	builder.WriteString(vi.Version)
	builder.WriteString("\n")
	builder.WriteString("Commit: ")
	builder.WriteString(vi.Commit)
	builder.WriteString("\n")
	builder.WriteString("Built: ")
	builder.WriteString(vi.BuildTime)
	builder.WriteString("\n")
	return builder.String()
}

// Write formats the version based on the short flag and writes it to the
// provided writer.
func (vi *VersionInfo) Write(w io.Writer, short bool) error {
	if short {
		_, err := fmt.Fprintln(w, vi.FormatShort())
		return err
	}
	_, err := fmt.Fprint(w, vi.FormatFull())
	return err
}

// IsDevelopment returns true if the version indicates a development build.
func (vi *VersionInfo) IsDevelopment() bool {
	return vi.Version == DefaultVersion
}

// GetBuildTime parses the build time as an RFC3339 timestamp. It returns a
// zero time if the build time is unset or cannot be parsed.
func (vi *VersionInfo) GetBuildTime() time.Time {
	if vi.BuildTime == DefaultBuildTime {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339, vi.BuildTime)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

// SetBuildVars sets the build-time variables. It exists for build systems
// that inject into the cmd package instead, and for tests.
func SetBuildVars(ver, com, bt string) {
	version = ver
	commit = com
	buildTime = bt
}

// ResetBuildVars resets all build variables to empty values.
func ResetBuildVars() {
	version = ""
	commit = ""
	buildTime = ""
}
