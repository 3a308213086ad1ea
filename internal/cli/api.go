package cli

import (
	"github.com/fmueller/voxserve/internal/job"
	"github.com/fmueller/voxserve/internal/serverless"
	"github.com/spf13/cobra"
)

func newServeAPICmd(app *appState) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve-api",
		Short: "Serve jobs over a local HTTP API (/runsync, /health, /metrics)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			handler, err := app.newJobHandler(cmd.Context())
			if err != nil {
				return err
			}

			server := serverless.NewAPIServer(handler, serverless.APIOptions{
				Classify: job.Kind,
				Gatherer: app.registry,
				Logger:   app.log(),
			})
			return server.ListenAndServe(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8000", "Listen address")
	return cmd
}
