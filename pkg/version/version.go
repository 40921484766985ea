// Package version holds the build version reported by the API.
package version

// Version is overridden at build time with -ldflags "-X fieldnav/pkg/version.Version=...".
var Version = "v0.1.0-dev"
