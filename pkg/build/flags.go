// SPDX-License-Identifier: MIT
//
// Package build provides functionality to manage and retrieve build information
// for a Go application. It allows embedding metadata such as the application
// name, build timestamp, Git commit hash, and semantic version into the binary
// at compile time using linker flags:
//
//	go build -ldflags "-X sigscope/pkg/build.buildVersion=0.3.0 ..."
package build

import (
	"errors"
	"fmt"
)

// ErrMissingFlag is returned by Initialize for every build flag that was not
// set at link time.
var ErrMissingFlag = errors.New("build flag is not set")

// Info describes the running binary.
type Info struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// Package-level variables for build information. These are populated by -ldflags
// during compilation. Default values of "unknown" are used during development.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = defaultInfo()
)

func defaultInfo() *Info {
	return &Info{
		Name:        "sigscope",
		Description: "Windowed spectrum analysis of recorded audio and I/Q captures",
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
	}
}

// Initialize copies the build information set via ldflags into the Info
// returned by GetBuildFlags. Flags that are missing keep their development
// defaults and are reported in the returned error; callers treat that as a
// development build rather than a failure.
func Initialize() error {
	var errs []error
	set := func(dst *string, v, name string) {
		if v == "" {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingFlag, name))
			return
		}
		*dst = v
	}

	set(&buildFlags.Name, buildName, "BuildName")
	set(&buildFlags.Time, buildTime, "BuildTime")
	set(&buildFlags.Commit, buildCommit, "BuildCommit")
	set(&buildFlags.Version, buildVersion, "BuildVersion")

	return errors.Join(errs...)
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *Info {
	return buildFlags
}

// String formats the version line printed by --version.
func (i *Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", i.Name, i.Version, i.Commit, i.Time)
}
