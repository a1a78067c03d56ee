// Package version holds build metadata injected via ldflags.
package version

var (
	Version = "1.0.0"
	Commit  = "unknown"
	Date    = "unknown"
)

// String returns the version with a short commit suffix when one was set at
// build time.
func String() string {
	if Commit != "" && Commit != "unknown" {
		commit := Commit
		if len(commit) > 7 {
			commit = commit[:7]
		}
		return Version + "+" + commit
	}
	return Version
}
