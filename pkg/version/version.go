package version

// version is set at build time with -ldflags "-X github.com/cbodonnell/clash/pkg/version.version=..."
var version = "dev"

// Get returns the build version of the client.
func Get() string {
	return version
}
