package buildinfo

// These variables are set via -ldflags at build time:
//
//	-X 'github.com/m3rciful/rawbook/core/buildinfo.Version=v0.3.0'
//	-X 'github.com/m3rciful/rawbook/core/buildinfo.Commit=abcdef0'
//	-X 'github.com/m3rciful/rawbook/core/buildinfo.Date=2026-10-01T12:00:00Z'
var (
	// Version reports the semantic version or tag of the build.
	Version = "dev"
	// Commit reports the source control commit used for the build.
	Commit = "local"
	// Date reports the build timestamp in RFC3339 format.
	Date = ""
)

// String renders the build identity for CLI output.
func String() string {
	s := Version + " (" + Commit
	if Date != "" {
		s += ", " + Date
	}
	return s + ")"
}
