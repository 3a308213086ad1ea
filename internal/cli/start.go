package cli

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/fmueller/voxserve/internal/job"
	"github.com/fmueller/voxserve/internal/serverless"
	"github.com/fmueller/voxserve/internal/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newStartCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Pull jobs from the serverless platform and process them one at a time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runWorker(cmd.Context(), cmd.OutOrStdout())
		},
	}

	bindWorkerFlags(cmd, app)
	return cmd
}

// runWorker checks the platform endpoints before the model is loaded. Without
// a job endpoint it falls back to the local test input, if there is one.
func (a *appState) runWorker(ctx context.Context, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := serverless.LoadConfig(a.env)
	cfg.PollInterval = a.pollInterval
	if err := cfg.Validate(); err != nil {
		if cfg.JobTakeURL == "" && fileExists(a.testInputFile) {
			a.log().Info("no job endpoint configured; running local test input", zap.String("file", a.testInputFile))
			payload, readErr := readTestInput("", a.testInputFile, "")
			if readErr != nil {
				return readErr
			}
			return a.runLocalJob(ctx, payload, out)
		}
		return err
	}

	handler, err := a.newJobHandler(ctx)
	if err != nil {
		return err
	}

	worker, err := serverless.NewWorker(cfg, handler, serverless.WorkerOptions{
		Classify:  job.Kind,
		Metrics:   a.metrics,
		Logger:    a.log(),
		UserAgent: version.UserAgent(),
	})
	if err != nil {
		return err
	}

	if a.metricsAddr != "" {
		go a.serveMetrics(ctx, a.metricsAddr)
	}

	return worker.Run(ctx)
}

func (a *appState) serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	a.log().Info("metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.log().Warn("metrics server stopped", zap.Error(err))
	}
}
