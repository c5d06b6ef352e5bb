package version

// Overridden at build time via -ldflags.
var (
	Version = "0.3.0"
	Commit  = "dev"
)

const AppName = "inkybot"
