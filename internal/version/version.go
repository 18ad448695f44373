// Package version carries the build version stamped in with -ldflags.
package version

import (
	"fmt"
	"regexp"
	"strings"
)

var version = "dev"

// String returns the build version for the current binary.
func String() string {
	return version
}

// ForTesting overrides the version string and returns a cleanup function
// that restores the original value. Must not be called concurrently.
func ForTesting(v string) func() {
	original := version
	version = v
	return func() { version = original }
}

// gitDescribeSuffix matches the trailing "-N-gHASH" added by git describe.
var gitDescribeSuffix = regexp.MustCompile(`-\d+-g[0-9a-f]+$`)

func normalizeVersion(v string) string {
	v = strings.TrimPrefix(v, "v")
	return gitDescribeSuffix.ReplaceAllString(v, "")
}

// FormatVersion adds a "v" prefix to release versions. "dev" and empty
// strings are returned as-is.
func FormatVersion(v string) string {
	if v == "" || v == "dev" {
		return v
	}
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// CheckMismatch compares the local build with the version reported by a
// running server. It returns a warning when they differ, or an empty string
// when they match or either side is a development build.
func CheckMismatch(serverVersion string) string {
	if serverVersion == "" || version == "" {
		return ""
	}
	local := version
	if local == "dev" || serverVersion == "dev" {
		return ""
	}
	if normalizeVersion(local) == normalizeVersion(serverVersion) {
		return ""
	}
	return fmt.Sprintf(
		"WARNING: voxflux %s talking to server %s, restart the server to pick up the new build",
		FormatVersion(local), FormatVersion(serverVersion),
	)
}
