package platform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultModelDirForLinuxWithXDG(t *testing.T) {
	t.Parallel()

	dir, err := DefaultModelDirFor("linux", "/home/dev", "/tmp/xdg-data", "")
	require.NoError(t, err)
	require.Equal(t, "/tmp/xdg-data/voxserve/models", dir)
}

func TestDefaultModelDirForLinuxWithoutXDG(t *testing.T) {
	t.Parallel()

	dir, err := DefaultModelDirFor("linux", "/home/dev", "", "")
	require.NoError(t, err)
	require.Equal(t, "/home/dev/.local/share/voxserve/models", dir)
}

func TestDefaultModelDirForMacOS(t *testing.T) {
	t.Parallel()

	dir, err := DefaultModelDirFor("darwin", "/Users/dev", "", "")
	require.NoError(t, err)
	require.Equal(t, "/Users/dev/Library/Application Support/voxserve/models", dir)
}

func TestDefaultModelDirPrefersMountedVolume(t *testing.T) {
	t.Parallel()

	volume := t.TempDir()
	dir, err := DefaultModelDirFor("linux", "/home/dev", "", volume)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(volume, "voxserve", "models"), dir)
}

func TestDefaultModelDirIgnoresMissingVolume(t *testing.T) {
	t.Parallel()

	dir, err := DefaultModelDirFor("linux", "/home/dev", "", filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	require.Equal(t, "/home/dev/.local/share/voxserve/models", dir)
}

func TestDefaultModelDirForUnsupportedOS(t *testing.T) {
	t.Parallel()

	_, err := DefaultModelDirFor("windows", "/Users/dev", "", "")
	require.Error(t, err)
}

func TestResolveScratchDirCreatesOverride(t *testing.T) {
	t.Parallel()

	want := filepath.Join(t.TempDir(), "scratch", "jobs")
	dir, err := ResolveScratchDir(want)
	require.NoError(t, err)
	require.Equal(t, want, dir)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}
