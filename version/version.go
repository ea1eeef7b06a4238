// Package version reports the DMS build identity, set at link time:
//
//	go build -ldflags "-X github.com/teranos/DMS/version.Version=v1.2.0 \
//	    -X github.com/teranos/DMS/version.CommitHash=$(git rev-parse HEAD)"
package version

import (
	"fmt"
	"runtime"

	"github.com/Masterminds/semver/v3"
)

var (
	CommitHash = "dev"
	BuildTime  = "unknown"
	Version    = "dev"
)

// Info is the build identity of the running binary
type Info struct {
	CommitHash string `json:"commit_hash" yaml:"commit_hash"`
	BuildTime  string `json:"build_time" yaml:"build_time"`
	Version    string `json:"version" yaml:"version"`
	GoVersion  string `json:"go_version" yaml:"go_version"`
	Platform   string `json:"platform" yaml:"platform"`
}

// Get returns the current build identity
func Get() Info {
	return Info{
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		Version:    Version,
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// IsRelease reports whether the binary was built from a semver tag
func (i Info) IsRelease() bool {
	_, err := semver.NewVersion(i.Version)
	return err == nil
}

// CompatibleWith reports whether a peer at version other speaks the same API:
// same major version, or same minor while the major is 0. Dev builds are
// compatible with everything.
func (i Info) CompatibleWith(other string) (bool, error) {
	if !i.IsRelease() {
		return true, nil
	}
	peer, err := semver.NewVersion(other)
	if err != nil {
		if other == "" || other == "dev" {
			return true, nil
		}
		return false, fmt.Errorf("invalid peer version %q: %w", other, err)
	}
	own := semver.MustParse(i.Version)

	bound := fmt.Sprintf("^%d.%d.0", own.Major(), own.Minor())
	if own.Major() > 0 {
		bound = fmt.Sprintf("^%d.0.0", own.Major())
	}
	constraint, err := semver.NewConstraint(bound)
	if err != nil {
		return false, fmt.Errorf("invalid version constraint %s: %w", bound, err)
	}
	return constraint.Check(peer), nil
}

func (i Info) String() string {
	v := "dev"
	if i.IsRelease() {
		v = i.Version
	}
	return fmt.Sprintf("dms %s (commit %s, built %s, %s %s)", v, i.Short(), i.BuildTime, i.GoVersion, i.Platform)
}

// Short returns the abbreviated commit hash
func (i Info) Short() string {
	if len(i.CommitHash) > 7 {
		return i.CommitHash[:7]
	}
	return i.CommitHash
}
