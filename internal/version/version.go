package version

// Name is the binary name reported by the version command.
const Name = "pricewatch"

var (
	// Version is the semantic version of the binary. Overridden at build time.
	Version = "dev"
	// Commit is the git commit hash. Overridden at build time.
	Commit = "unknown"
	// BuildDate is the build timestamp. Overridden at build time.
	BuildDate = "unknown"
)

// UserAgentTag identifies the tracker in outbound non-browser requests.
func UserAgentTag() string {
	return Name + "/" + Version
}
