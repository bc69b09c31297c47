package config

// Set at build time via -ldflags.
var (
	Version    = "dev"
	CommitHash = "n/a"
)
