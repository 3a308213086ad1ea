package main

import (
	"errors"
	"testing"

	"github.com/fmueller/voxserve/internal/cli"
	"github.com/stretchr/testify/require"
)

func TestShouldPrintUsageHint(t *testing.T) {
	t.Parallel()

	require.True(t, shouldPrintUsageHint(errors.New("unknown command \"bad\" for \"voxserve\"")))
	require.True(t, shouldPrintUsageHint(errors.New("unknown flag: --oops")))
	require.True(t, shouldPrintUsageHint(errors.New("missing required job: pass --test-input or --test-input-file")))
	require.True(t, shouldPrintUsageHint(errors.New("if any flags in the group [test-input test-input-file] are set none of the others can be; [test-input test-input-file] were all set")))
	require.False(t, shouldPrintUsageHint(errors.New("provide one of: audio_url, audio_base64, or audio_path")))
	require.False(t, shouldPrintUsageHint(errors.New("download model \"small\": context deadline exceeded")))
	require.False(t, shouldPrintUsageHint(nil))
}

func TestHelpHintTarget(t *testing.T) {
	t.Parallel()

	root := cli.NewRootCmd()
	require.Equal(t, "voxserve", helpHintTarget(root, []string{"--badflag"}))
	require.Equal(t, "voxserve", helpHintTarget(root, []string{"badcmd"}))
	require.Equal(t, "voxserve run", helpHintTarget(root, []string{"run"}))
	require.Equal(t, "voxserve run", helpHintTarget(root, []string{"run", "--test-input-file", "job.json"}))
}
