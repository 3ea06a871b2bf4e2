package version

// Build metadata, overridden with -ldflags "-X" at release build time.
var (
	Version      = "0.1.0"         // Version of mg-setup
	Toolname     = "mg-setup-dev"  // Name of the tool
	Organization = "unknown"       // Organization that built the tool
	BuildDate    = "unknown"       // Date when the tool was built
	CommitSHA    = "unknown"       // Commit SHA of the tool
)
