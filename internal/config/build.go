package config

// Build metadata, stamped by the linker:
//
//	go build -ldflags "-X fairground/internal/config.version=1.2.3 \
//	    -X fairground/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X fairground/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// Unstamped builds (go run, local dev) keep the placeholder values.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo snapshots the stamped variables into a BuildInfo.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}
