package core

// Build metadata, injected with ldflags:
//
//	go build -ldflags "-X medreport/core.Version=$(git describe --tags --always)" .
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const ldflagsPackage = "medreport/core"

// GetVersion returns the application version string.
func GetVersion() string {
	return Version
}

// GetBuildTime returns the build timestamp.
func GetBuildTime() string {
	return BuildTime
}

// GetGitCommit returns the git commit hash.
func GetGitCommit() string {
	return GitCommit
}

// GetVersionInfo returns "version (built time, commit hash)".
func GetVersionInfo() string {
	return Version + " (built " + BuildTime + ", commit " + GitCommit + ")"
}

// BuildLdflags returns the -X flags that inject the given values. Empty
// values are omitted.
func BuildLdflags(version, buildTime, gitCommit string) string {
	var flags string
	for _, kv := range [][2]string{
		{"Version", version},
		{"BuildTime", buildTime},
		{"GitCommit", gitCommit},
	} {
		if kv[1] == "" {
			continue
		}
		if flags != "" {
			flags += " "
		}
		flags += "-X " + ldflagsPackage + "." + kv[0] + "=" + kv[1]
	}
	return flags
}
