// Package version carries build metadata stamped in via -ldflags.
package version

var (
	// Version is the semantic version of this build.
	Version = "dev"

	// Commit is the git commit the binary was built from.
	Commit = "unknown"

	// BuildDate is the build timestamp in RFC 3339 form.
	BuildDate = "unknown"
)
