// Package version carries build metadata injected via -ldflags, e.g.
//
//	go build -ldflags "-X github.com/pysugar/oauth-service-hub/internal/version.Version=v0.2.0"
package version

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

// String renders the build metadata for startup logs.
func String() string {
	return Version + " (" + Commit + ", " + BuildTime + ")"
}
