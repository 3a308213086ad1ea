package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fmueller/voxserve/internal/download"
	"github.com/fmueller/voxserve/internal/platform"
	"github.com/fmueller/voxserve/internal/version"
	"github.com/fmueller/voxserve/internal/whisper"
	"go.uber.org/zap"
)

func (a *appState) loadPipeline(ctx context.Context) (whisper.Pipeline, error) {
	started := time.Now()

	model, err := a.ensureModelAvailable(ctx)
	if err != nil {
		return nil, err
	}

	scratchDir, err := platform.ResolveScratchDir(a.scratchDir)
	if err != nil {
		return nil, err
	}

	pipeline, err := whisper.NewCLIPipeline(model, whisper.CLIConfig{
		ScratchDir: scratchDir,
		Threads:    a.threads,
		Logger:     a.log(),
	})
	if err != nil {
		return nil, err
	}

	a.log().Info("pipeline ready", zap.String("model", model.Name), zap.String("path", model.Path), zap.Duration("elapsed", time.Since(started)))
	return pipeline, nil
}

func (a *appState) modelStorageDir() (string, error) {
	dir, err := platform.ResolveModelDir(a.modelDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create model directory %s: %w", dir, err)
	}
	return dir, nil
}

func (a *appState) ensureModelAvailable(ctx context.Context) (whisper.ResolvedModel, error) {
	modelDir, err := a.modelStorageDir()
	if err != nil {
		return whisper.ResolvedModel{}, err
	}

	resolved, err := whisper.ResolveModel(a.model, modelDir)
	if err != nil {
		return whisper.ResolvedModel{}, err
	}

	if !resolved.NeedsDownload && !resolved.IsCustomPath {
		if err := download.VerifyFileChecksum(resolved.Path, resolved.SHA256); err != nil {
			if !a.autoDownload {
				return whisper.ResolvedModel{}, fmt.Errorf("model %q at %s failed verification: %w", resolved.Name, resolved.Path, err)
			}
			a.log().Warn("model checksum verification failed; downloading fresh copy", zap.String("model", resolved.Name), zap.Error(err))
			resolved.NeedsDownload = true
		}
	}

	if !resolved.NeedsDownload {
		return resolved, nil
	}

	if !a.autoDownload {
		return whisper.ResolvedModel{}, fmt.Errorf("model %q is missing at %s; run `voxserve setup --model %s` or use --auto-download=true", resolved.Name, resolved.Path, a.model)
	}

	a.log().Info("model not found, downloading", zap.String("model", resolved.Name), zap.String("destination", resolved.Path))
	if err := a.downloadModel(ctx, resolved); err != nil {
		return whisper.ResolvedModel{}, err
	}

	resolved.NeedsDownload = false
	return resolved, nil
}

func (a *appState) downloadModel(ctx context.Context, model whisper.ResolvedModel) error {
	if err := download.DownloadFile(ctx, download.Options{
		URL:         model.URL,
		Destination: model.Path,
		SHA256:      model.SHA256,
		NoProgress:  a.noProgress,
		UserAgent:   version.UserAgent(),
		Logger:      a.log(),
	}); err != nil {
		return fmt.Errorf("download model %q: %w", model.Name, err)
	}
	return nil
}
