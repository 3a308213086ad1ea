package job

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/fmueller/voxserve/internal/metrics"
	"github.com/fmueller/voxserve/internal/source"
	"github.com/fmueller/voxserve/internal/whisper"
	"go.uber.org/zap"
)

// Handler runs one job at a time against a pipeline that was loaded once at
// process start.
type Handler struct {
	pipeline whisper.Pipeline
	resolver *source.Resolver
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

type Options struct {
	Resolver *source.Resolver
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

func NewHandler(pipeline whisper.Pipeline, opts Options) *Handler {
	resolver := opts.Resolver
	if resolver == nil {
		resolver = source.NewResolver(source.Options{Logger: opts.Logger})
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Handler{
		pipeline: pipeline,
		resolver: resolver,
		metrics:  opts.Metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Handle validates the envelope, materializes the audio, transcribes it and
// returns the pipeline result untouched. Temp audio is removed on every exit.
func (h *Handler) Handle(ctx context.Context, payload []byte) (result whisper.Result, err error) {
	started := h.now()
	h.metrics.JobStarted()
	defer func() {
		h.metrics.JobFinished(h.now().Sub(started).Seconds(), Kind(err))
	}()

	req, err := ParseRequest(payload)
	if err != nil {
		return whisper.Result{}, err
	}

	resolved, err := h.resolver.Resolve(ctx, req.Source)
	if err != nil {
		return whisper.Result{}, err
	}
	h.metrics.SourceResolved(string(resolved.Kind), fetchedBytes(resolved))
	defer h.cleanup(resolved.Cleanup)

	log := h.logger.With(zap.String("source", string(resolved.Kind)), zap.String("audio", resolved.Path))
	log.Info("transcribing...",
		zap.String("language", languageField(req.Options.Language)),
		zap.String("timestamps", string(req.Options.Timestamps)),
		zap.Float64("chunk_length_s", req.Options.ChunkLength),
		zap.Int("max_new_tokens", req.Options.MaxNewTokens),
	)

	inferenceStarted := h.now()
	result, err = h.pipeline.Transcribe(ctx, resolved.Path, req.Options)
	elapsed := h.now().Sub(inferenceStarted)
	h.metrics.InferenceObserved(elapsed.Seconds())
	if err != nil {
		log.Warn("transcription failed", zap.Duration("elapsed", elapsed), zap.Error(err))
		return whisper.Result{}, &InferenceError{Err: err}
	}
	log.Info("transcription finished", zap.Duration("elapsed", elapsed))

	return result, nil
}

func (h *Handler) cleanup(path string) {
	if path == "" {
		return
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return
	}
	if err := os.Remove(path); err != nil {
		h.logger.Warn("failed to remove temp audio", zap.String("path", path), zap.Error(err))
	}
}

func fetchedBytes(r source.Resolved) int64 {
	if r.Kind != source.KindURL {
		return 0
	}
	return r.Bytes
}

func languageField(lang string) string {
	if lang == "" {
		return "auto"
	}
	return lang
}
