// Package version exposes build information stamped in with -ldflags.
package version

//nolint:revive // Overwritten at build time via -ldflags "-X ...".
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)
