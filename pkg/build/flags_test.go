// SPDX-License-Identifier: MIT
package build

import (
	"os"
	"testing"
)

var (
	origName    string
	origTime    string
	origCommit  string
	origVersion string
	origFlags   ldFlags
)

func TestMain(m *testing.M) {
	origName = buildName
	origTime = buildTime
	origCommit = buildCommit
	origVersion = buildVersion
	origFlags = *buildFlags

	exitCode := m.Run()

	buildName = origName
	buildTime = origTime
	buildCommit = origCommit
	buildVersion = origVersion
	*buildFlags = origFlags

	os.Exit(exitCode)
}

func TestInitializeKeepsDefaultsWithoutLdflags(t *testing.T) {
	buildFlags = &ldFlags{Name: "pulse", Time: "unknown", Commit: "unknown", Version: "dev"}
	buildName, buildTime, buildCommit, buildVersion = "", "", "", ""

	Initialize()

	if buildFlags.Name != "pulse" || buildFlags.Version != "dev" {
		t.Errorf("defaults not preserved: %+v", buildFlags)
	}
}

func TestInitializeAppliesLdflags(t *testing.T) {
	buildFlags = &ldFlags{Name: "pulse", Time: "unknown", Commit: "unknown", Version: "dev"}
	buildName = "testapp"
	buildTime = "2025-04-13"
	buildCommit = "abcdef123"
	buildVersion = "v1.0.0"

	Initialize()

	if buildFlags.Name != "testapp" {
		t.Errorf("buildFlags.Name = %v, want testapp", buildFlags.Name)
	}
	if buildFlags.Time != "2025-04-13" {
		t.Errorf("buildFlags.Time = %v, want 2025-04-13", buildFlags.Time)
	}
	if buildFlags.Commit != "abcdef123" {
		t.Errorf("buildFlags.Commit = %v, want abcdef123", buildFlags.Commit)
	}
	if buildFlags.Version != "v1.0.0" {
		t.Errorf("buildFlags.Version = %v, want v1.0.0", buildFlags.Version)
	}
}

func TestGetBuildFlags(t *testing.T) {
	expected := ldFlags{Name: "testapp", Time: "t", Commit: "c", Version: "v"}
	buildFlags = &expected

	if flags := GetBuildFlags(); *flags != expected {
		t.Errorf("GetBuildFlags() = %+v, want %+v", flags, expected)
	}
}
