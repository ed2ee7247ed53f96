// Package version provides build version information for the application.
// This is a separate package so the API client can report it without
// importing cli.
package version

// Version is the build version string, set by ldflags during build.
// Format: vX.Y.Z or vX.Y.Z-dev for development builds.
var Version = "v0.1.0-dev"

// BuildTime is the build timestamp, set by ldflags during build.
var BuildTime = "unknown"

// UserAgent returns the User-Agent sent to HTTP record services.
func UserAgent() string {
	return "livelist/" + Version
}
