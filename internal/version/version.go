package version

import (
	"runtime/debug"
	"strings"
)

var (
	Version = "0.1.0"
	Commit  = ""
)

// Resolve returns the release version, suffixed with the short VCS revision
// when the binary was built from a checkout (or Commit was set via ldflags).
func Resolve() string {
	return resolveVersion(Version, Commit, readRevision)
}

// UserAgent is sent on outbound requests made by the worker.
func UserAgent() string {
	return "voxserve/" + Resolve()
}

func resolveVersion(base, commit string, revision func() (string, bool)) string {
	if base == "" {
		base = "0.0.0"
	}

	rev := strings.TrimSpace(commit)
	dirty := false
	if rev == "" {
		var ok bool
		rev, ok = revision()
		if !ok {
			return base
		}
		dirty = strings.HasSuffix(rev, "+dirty")
		rev = strings.TrimSuffix(rev, "+dirty")
	}

	if len(rev) > 12 {
		rev = rev[:12]
	}
	if rev == "" {
		return base
	}

	suffix := rev
	if dirty {
		suffix += "-dirty"
	}
	return base + "+" + suffix
}

func readRevision() (string, bool) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", false
	}

	var rev string
	modified := false
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			rev = setting.Value
		case "vcs.modified":
			modified = setting.Value == "true"
		}
	}
	if rev == "" {
		return "", false
	}
	if modified {
		rev += "+dirty"
	}
	return rev, true
}
