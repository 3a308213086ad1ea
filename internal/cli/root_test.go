package cli

import (
	"bytes"
	"testing"

	"github.com/fmueller/voxserve/internal/whisper"
	"github.com/stretchr/testify/require"
)

func TestRootCommandRegistersCoreFlags(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()

	require.NotNil(t, cmd.PersistentFlags().Lookup("model"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("model-dir"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("scratch-dir"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("threads"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("auto-download"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("json"))
	require.Equal(t, "true", cmd.PersistentFlags().Lookup("auto-download").DefValue)
	require.NotNil(t, cmd.Flags().Lookup("poll-interval"))
	require.Equal(t, "1s", cmd.Flags().Lookup("poll-interval").DefValue)
	require.NotNil(t, cmd.Flags().Lookup("metrics-addr"))
}

func TestModelDefaultsFromEnvironment(t *testing.T) {
	t.Parallel()

	app := newAppState(func(key string) string {
		if key == "MODEL_ID" {
			return "openai/whisper-tiny"
		}
		return ""
	})
	require.Equal(t, "openai/whisper-tiny", app.model)

	fallback := newAppState(func(string) string { return "" })
	require.Equal(t, whisper.DefaultModelID, fallback.model)
}

func TestRootHelpParsesSuccessfully(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs([]string{"--help"})

	err := cmd.Execute()
	require.NoError(t, err)
	require.Contains(t, out.String(), "start")
	require.Contains(t, out.String(), "run")
	require.Contains(t, out.String(), "serve-api")
	require.Contains(t, out.String(), "setup")
}

func TestSubcommandHelpParsesSuccessfully(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		args     []string
		contains string
	}{
		{name: "start", args: []string{"start", "--help"}, contains: "Pull jobs from the serverless platform"},
		{name: "run", args: []string{"run", "--help"}, contains: "Run a single job locally"},
		{name: "serve-api", args: []string{"serve-api", "--help"}, contains: "local HTTP API"},
		{name: "setup", args: []string{"setup", "--help"}, contains: "Download and verify the speech model"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cmd := NewRootCmd()
			out := new(bytes.Buffer)
			cmd.SetOut(out)
			cmd.SetErr(out)
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			require.NoError(t, err)
			require.Contains(t, out.String(), tt.contains)
		})
	}
}
