// Package version carries build identification injected at link time via
// -ldflags "-X ...".
package version

var (
	// Version is the release version, "dev" for local builds.
	Version = "dev"
	// GitSHA is the git commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String returns a single human-readable build identifier.
func String() string {
	return Version + " (" + GitSHA + ", " + BuildTime + ")"
}
