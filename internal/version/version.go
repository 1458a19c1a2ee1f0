// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
)

// set through -ldflags -X at build time
var (
	version   string
	buildTime string
	gitBranch string
	gitCommit string
)

type VersionInfo struct {
	Version   string
	BuildTime string
	GitBranch string
	GitCommit string

	GoVersion string
	GoOS      string
	GoArch    string
}

// Info returns the version information. Values not injected at build time
// are taken from the embedded VCS build settings when available.
func Info() VersionInfo {
	info := VersionInfo{
		Version:   version,
		BuildTime: buildTime,
		GitBranch: gitBranch,
		GitCommit: gitCommit,

		GoVersion: runtime.Version(),
		GoOS:      runtime.GOOS,
		GoArch:    runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.fillFromBuildInfo(bi)
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	return info
}

func (v *VersionInfo) fillFromBuildInfo(bi *debug.BuildInfo) {
	if v.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		v.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if v.GitCommit == "" {
				v.GitCommit = s.Value
			}
		case "vcs.time":
			if v.BuildTime == "" {
				v.BuildTime = s.Value
			}
		}
	}
}

// String is the --version output
func (v VersionInfo) String() string {
	return fmt.Sprintf("%s (commit: %s, branch: %s, built: %s, %s %s/%s)",
		v.Version, orUnknown(v.GitCommit), orUnknown(v.GitBranch), orUnknown(v.BuildTime),
		v.GoVersion, v.GoOS, v.GoArch)
}

// LogValue groups the version attributes in log records
func (v VersionInfo) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("version", v.Version),
		slog.String("commit", v.GitCommit),
		slog.String("branch", v.GitBranch),
		slog.String("built", v.BuildTime),
		slog.String("go", v.GoVersion),
	)
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
