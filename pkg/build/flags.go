// SPDX-License-Identifier: MIT
//
// Package build carries build metadata (name, version, commit, build time)
// injected at compile time via -ldflags. Development builds without ldflags
// fall back to defaults so the binary still runs.
package build

type ldFlags struct {
	Name    string
	Time    string
	Commit  string
	Version string
}

// Populated by -ldflags during compilation.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = &ldFlags{
		Name:    "pulse",
		Time:    "unknown",
		Commit:  "unknown",
		Version: "dev",
	}
)

// Initialize copies any ldflags-provided values into the build info,
// keeping the development defaults for anything not set.
func Initialize() {
	if buildName != "" {
		buildFlags.Name = buildName
	}
	if buildTime != "" {
		buildFlags.Time = buildTime
	}
	if buildCommit != "" {
		buildFlags.Commit = buildCommit
	}
	if buildVersion != "" {
		buildFlags.Version = buildVersion
	}
}

// GetBuildFlags returns the current build information. Safe to call before
// Initialize; you just get the development defaults.
func GetBuildFlags() *ldFlags {
	return buildFlags
}
