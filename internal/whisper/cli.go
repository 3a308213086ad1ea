package whisper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/fmueller/voxserve/internal/platform"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const EnvWhisperPath = "VOXSERVE_WHISPER_PATH"

// whisper.cpp encodes 30s of audio into 1500 encoder frames.
const (
	modelWindowSeconds   = 30.0
	audioFramesPerSecond = 50
)

type CLIConfig struct {
	// Executable overrides engine discovery when set.
	Executable string
	ScratchDir string
	Threads    int
	Logger     *zap.Logger
}

// CLIPipeline runs whisper.cpp's whisper-cli against a model file that was
// resolved and verified once at startup.
type CLIPipeline struct {
	executable string
	modelPath  string
	scratchDir string
	threads    int
	logger     *zap.Logger
}

func NewCLIPipeline(model ResolvedModel, cfg CLIConfig) (*CLIPipeline, error) {
	if model.NeedsDownload {
		return nil, fmt.Errorf("model %s has not been downloaded to %s", model.Name, model.Path)
	}
	if _, err := os.Stat(model.Path); err != nil {
		return nil, fmt.Errorf("model file unavailable: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	executable := strings.TrimSpace(cfg.Executable)
	if executable == "" {
		resolved, err := LocateEngine()
		if err != nil {
			return nil, err
		}
		executable = resolved
	} else if err := ensureExecutable(executable); err != nil {
		return nil, fmt.Errorf("whisper engine %s is not executable: %w", executable, err)
	}

	scratchDir := cfg.ScratchDir
	if scratchDir == "" {
		scratchDir = os.TempDir()
	}

	return &CLIPipeline{
		executable: executable,
		modelPath:  model.Path,
		scratchDir: scratchDir,
		threads:    cfg.Threads,
		logger:     logger,
	}, nil
}

// LocateEngine finds whisper-cli: the env override first, then the
// directories shipped next to the worker binary, then PATH.
func LocateEngine() (string, error) {
	if override := strings.TrimSpace(os.Getenv(EnvWhisperPath)); override != "" {
		if err := ensureExecutable(override); err != nil {
			return "", fmt.Errorf("%s is not executable: %w", EnvWhisperPath, err)
		}
		return override, nil
	}

	self, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve voxserve executable path: %w", err)
	}

	if path, err := ResolveEnginePath(self); err == nil {
		return path, nil
	}

	if path, err := exec.LookPath(engineBinaryName()); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("whisper engine not found near %s or on PATH; set %s to a whisper-cli binary", self, EnvWhisperPath)
}

func ResolveEnginePath(selfExecutable string) (string, error) {
	for _, candidate := range EnginePathCandidates(selfExecutable) {
		if err := ensureExecutable(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("whisper engine not found near %s, expected at ../libexec/whisper/%s", selfExecutable, engineBinaryName())
}

func EnginePathCandidates(selfExecutable string) []string {
	binDir := filepath.Dir(selfExecutable)
	engineName := engineBinaryName()

	return []string{
		filepath.Join(binDir, "..", "libexec", "whisper", engineName),
		filepath.Join(binDir, "libexec", "whisper", engineName),
		filepath.Join(binDir, "packaging", "whisper", platform.HostTarget(), engineName),
		filepath.Join(binDir, engineName),
	}
}

func (p *CLIPipeline) Transcribe(ctx context.Context, audioPath string, opts Options) (Result, error) {
	if strings.TrimSpace(audioPath) == "" {
		return Result{}, errors.New("audio path is required")
	}

	outBase := filepath.Join(p.scratchDir, "voxserve-whisper-"+uuid.NewString())
	jsonOut := outBase + ".json"
	defer os.Remove(jsonOut)

	args, err := buildArgs(p.modelPath, audioPath, outBase, opts)
	if err != nil {
		return Result{}, err
	}
	if p.threads > 0 {
		args = append(args, "-t", strconv.Itoa(p.threads))
	}

	cmd := exec.CommandContext(ctx, p.executable, args...)
	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr

	p.logger.Debug("running whisper engine", zap.String("engine", p.executable), zap.Strings("args", args))
	started := time.Now()
	if err := cmd.Run(); err != nil {
		errText := strings.TrimSpace(stderr.String())
		if isMissingSharedLibraryError(errText) {
			return Result{}, fmt.Errorf("whisper engine at %s is missing required shared libraries (%s); rebuild whisper-cli with BUILD_SHARED_LIBS=OFF", p.executable, errText)
		}
		if isIllegalInstructionError(errText) || isIllegalInstructionError(err.Error()) {
			return Result{}, fmt.Errorf("whisper engine crashed with an illegal CPU instruction; " +
				"the host CPU may lack required instruction set extensions; " +
				"set " + EnvWhisperPath + " to a whisper-cli binary built for this CPU")
		}
		return Result{}, fmt.Errorf("whisper transcribe failed: %w (%s)", err, errText)
	}
	p.logger.Debug("whisper engine finished", zap.Duration("elapsed", time.Since(started)))

	content, err := os.ReadFile(jsonOut)
	if err != nil {
		return Result{}, fmt.Errorf("read whisper output: %w", err)
	}

	out, err := parseOutput(content)
	if err != nil {
		return Result{}, err
	}

	return buildResult(out, opts), nil
}

func buildArgs(modelPath, audioPath, outBase string, opts Options) ([]string, error) {
	if opts.Task != "" && opts.Task != TaskTranscribe {
		return nil, fmt.Errorf("unsupported task %q", opts.Task)
	}

	lang := strings.TrimSpace(strings.ToLower(opts.Language))
	if lang == "" {
		lang = "auto"
	}

	args := []string{
		"-m", modelPath,
		"-f", audioPath,
		"-l", lang,
		"-oj", "-ojf",
		"-of", outBase,
		"-np",
	}

	if opts.Timestamps == TimestampsWord {
		args = append(args, "-ml", "1", "-sow")
	}

	if opts.ChunkLength > 0 {
		// Each window is decoded without the previous window's text as prompt.
		args = append(args, "-mc", "0")
		if opts.ChunkLength < modelWindowSeconds {
			frames := int(math.Round(opts.ChunkLength * audioFramesPerSecond))
			if frames < 1 {
				frames = 1
			}
			args = append(args, "-ac", strconv.Itoa(frames))
		}
	}

	return args, nil
}

func engineBinaryName() string {
	if runtime.GOOS == "windows" {
		return "whisper-cli.exe"
	}
	return "whisper-cli"
}

func ensureExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if runtime.GOOS != "windows" && info.Mode()&0o111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}

func isMissingSharedLibraryError(stderr string) bool {
	value := strings.ToLower(strings.TrimSpace(stderr))
	if value == "" {
		return false
	}

	patterns := []string{
		"error while loading shared libraries",
		"cannot open shared object file",
		"dyld: library not loaded",
		"image not found",
	}

	for _, pattern := range patterns {
		if strings.Contains(value, pattern) {
			return true
		}
	}

	return false
}

func isIllegalInstructionError(stderr string) bool {
	return strings.Contains(strings.ToLower(stderr), "illegal instruction")
}
