package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fmueller/voxserve/internal/job"
	"github.com/fmueller/voxserve/internal/logging"
	"github.com/fmueller/voxserve/internal/metrics"
	"github.com/fmueller/voxserve/internal/platform"
	"github.com/fmueller/voxserve/internal/serverless"
	"github.com/fmueller/voxserve/internal/source"
	"github.com/fmueller/voxserve/internal/version"
	"github.com/fmueller/voxserve/internal/whisper"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/spf13/cobra"
)

const envModelID = "MODEL_ID"

type appState struct {
	verbose      bool
	jsonLogs     bool
	noProgress   bool
	model        string
	modelDir     string
	scratchDir   string
	threads      int
	autoDownload bool
	pollInterval time.Duration
	metricsAddr  string

	// testInputFile is run locally when no job endpoint is configured.
	testInputFile string

	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	getenv   func(string) string

	pipelineFn func(ctx context.Context) (whisper.Pipeline, error)
}

func newAppState(getenv func(string) string) *appState {
	if getenv == nil {
		getenv = os.Getenv
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	model := strings.TrimSpace(getenv(envModelID))
	if model == "" {
		model = whisper.DefaultModelID
	}

	app := &appState{
		model:         model,
		autoDownload:  true,
		pollInterval:  time.Second,
		testInputFile: defaultTestInputFile,
		registry:      registry,
		metrics:       metrics.New(registry),
		getenv:        getenv,
	}
	app.pipelineFn = app.loadPipeline
	return app
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(newAppState(os.Getenv))
}

func newRootCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "voxserve",
		Short:         "Serverless speech-to-text worker backed by a whisper engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Resolve(),
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			logger, err := logging.New(logging.Options{
				Verbose: app.verbose,
				JSON:    app.jsonLogs || !term.IsTerminal(int(os.Stderr.Fd())),
			})
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			app.logger = logger
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runWorker(cmd.Context(), cmd.OutOrStdout())
		},
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	bindLoggingFlags(cmd, app)
	bindModelFlags(cmd, app)
	bindWorkerFlags(cmd, app)

	cmd.AddCommand(newStartCmd(app))
	cmd.AddCommand(newRunCmd(app))
	cmd.AddCommand(newServeAPICmd(app))
	cmd.AddCommand(newSetupCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func bindLoggingFlags(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().BoolVar(&app.verbose, "verbose", app.verbose, "Enable verbose logs")
	cmd.PersistentFlags().BoolVar(&app.jsonLogs, "json", app.jsonLogs, "Force JSON logging (default when stderr is not a terminal)")
	cmd.PersistentFlags().BoolVar(&app.noProgress, "no-progress", app.noProgress, "Disable progress indicators")
}

func bindModelFlags(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().StringVar(&app.model, "model", app.model, "Model id (openai/whisper-*), short name or ggml file path; defaults to $MODEL_ID")
	cmd.PersistentFlags().StringVar(&app.modelDir, "model-dir", app.modelDir, "Directory where models are cached; defaults to $"+platform.EnvModelDir)
	cmd.PersistentFlags().StringVar(&app.scratchDir, "scratch-dir", app.scratchDir, "Directory for per-job temp audio; defaults to $"+platform.EnvScratchDir)
	cmd.PersistentFlags().IntVar(&app.threads, "threads", app.threads, "Engine threads; 0 lets whisper decide")
	cmd.PersistentFlags().BoolVar(&app.autoDownload, "auto-download", app.autoDownload, "Download the model at startup when missing")
}

func bindWorkerFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().DurationVar(&app.pollInterval, "poll-interval", app.pollInterval, "Delay between job polls when the queue is empty")
	cmd.Flags().StringVar(&app.metricsAddr, "metrics-addr", app.metricsAddr, "Serve Prometheus metrics on this address, e.g. :9090")
}

// newJobHandler loads the pipeline once and wraps it for the host integration.
func (a *appState) newJobHandler(ctx context.Context) (serverless.Handler, error) {
	pipelineFn := a.pipelineFn
	if pipelineFn == nil {
		pipelineFn = a.loadPipeline
	}

	pipeline, err := pipelineFn(ctx)
	if err != nil {
		return nil, err
	}

	scratchDir, err := platform.ResolveScratchDir(a.scratchDir)
	if err != nil {
		return nil, err
	}

	handler := job.NewHandler(pipeline, job.Options{
		Resolver: source.NewResolver(source.Options{
			Dir:       scratchDir,
			UserAgent: version.UserAgent(),
			Logger:    a.log(),
		}),
		Metrics: a.metrics,
		Logger:  a.log(),
	})

	return serverless.HandlerFunc(func(ctx context.Context, payload []byte) (any, error) {
		result, err := handler.Handle(ctx, payload)
		if err != nil {
			return nil, err
		}
		return result, nil
	}), nil
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func (a *appState) progressEnabled() bool {
	if a.noProgress {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func (a *appState) env(key string) string {
	if a.getenv == nil {
		return os.Getenv(key)
	}
	return a.getenv(key)
}
