// Package version carries build information, injected with
// -ldflags "-X github.com/yamaguchigo1923/claude-agent-sdk/pkg/version.Version=v1.2.3".
package version

//nolint:gochecknoglobals // ldflags targets
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String renders "v1.2.3 (abc1234, 2026-01-01)".
func String() string {
	return Version + " (" + Commit + ", " + Date + ")"
}
