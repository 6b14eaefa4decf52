package build

var (
	// Version is the proxy's release version string, set by the linker at
	// build time via -ldflags; it defaults to "dev" for local builds.
	Version = "dev"

	// Release names the build configuration, overridden by the linker the
	// same way as Version: "standard", "dev", or "testing".
	Release = "standard"

	// DEBUG enables additional sanity checks and verbose logging; it must
	// never be true in a production build.
	DEBUG = false

	// IssuesURL is surfaced in crash logs so operators know where to file a
	// bug report.
	IssuesURL = "https://github.com/nexoedge-go/proxy/issues"
)
