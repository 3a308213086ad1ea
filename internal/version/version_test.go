package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func fakeRevision(rev string, ok bool) func() (string, bool) {
	return func() (string, bool) {
		return rev, ok
	}
}

func TestResolveVersion_NoBuildInfo(t *testing.T) {
	t.Parallel()
	got := resolveVersion("1.0.0", "", fakeRevision("", false))
	require.Equal(t, "1.0.0", got)
}

func TestResolveVersion_ShortensRevision(t *testing.T) {
	t.Parallel()
	got := resolveVersion("1.0.0", "", fakeRevision("0123456789abcdef0123", true))
	require.Equal(t, "1.0.0+0123456789ab", got)
}

func TestResolveVersion_DirtyTree(t *testing.T) {
	t.Parallel()
	got := resolveVersion("1.0.0", "", fakeRevision("abcdef+dirty", true))
	require.Equal(t, "1.0.0+abcdef-dirty", got)
}

func TestResolveVersion_LdflagsCommitWins(t *testing.T) {
	t.Parallel()
	got := resolveVersion("1.0.0", "feedbeef", fakeRevision("abcdef", true))
	require.Equal(t, "1.0.0+feedbeef", got)
}

func TestResolveVersion_EmptyBaseFallsBackToZero(t *testing.T) {
	t.Parallel()
	got := resolveVersion("", "", fakeRevision("", false))
	require.Equal(t, "0.0.0", got)
}

func TestUserAgentPrefix(t *testing.T) {
	t.Parallel()
	require.True(t, strings.HasPrefix(UserAgent(), "voxserve/"))
}
