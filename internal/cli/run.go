package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fmueller/voxserve/internal/serverless"
	"github.com/spf13/cobra"
)

const defaultTestInputFile = "test_input.json"

func newRunCmd(app *appState) *cobra.Command {
	var testInput string
	var testInputFile string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single job locally and print its output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			payload, err := readTestInput(testInput, testInputFile, app.testInputFile)
			if err != nil {
				return err
			}
			return app.runLocalJob(cmd.Context(), payload, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&testInput, "test-input", "", `Job envelope as JSON, e.g. '{"input": {"audio_path": "a.wav"}}'`)
	cmd.Flags().StringVar(&testInputFile, "test-input-file", "", "Read the job envelope from a file (default ./"+defaultTestInputFile+" when present)")
	cmd.MarkFlagsMutuallyExclusive("test-input", "test-input-file")
	return cmd
}

func (a *appState) runLocalJob(ctx context.Context, payload []byte, out io.Writer) error {
	handler, err := a.newJobHandler(ctx)
	if err != nil {
		return err
	}

	stopSpinner := startSpinner(a.progressEnabled(), "Transcribing")
	defer stopSpinner()

	return serverless.RunLocal(ctx, handler, payload, out)
}

// readTestInput prefers the inline job, then file, then fallback when it exists.
func readTestInput(inline, file, fallback string) ([]byte, error) {
	if strings.TrimSpace(inline) != "" {
		return []byte(inline), nil
	}

	if file == "" {
		if !fileExists(fallback) {
			return nil, errors.New("missing required job: pass --test-input or --test-input-file")
		}
		file = fallback
	}

	content, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read test input: %w", err)
	}
	return content, nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
