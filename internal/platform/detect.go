package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// NetworkVolume is where serverless platforms mount persistent storage.
// Models cached there survive cold starts.
const NetworkVolume = "/runpod-volume"

const (
	EnvModelDir   = "VOXSERVE_MODEL_DIR"
	EnvScratchDir = "VOXSERVE_SCRATCH_DIR"
)

func NormalizeArch(arch string) string {
	switch arch {
	case "x86_64":
		return "amd64"
	case "aarch64":
		return "arm64"
	default:
		return arch
	}
}

func HostTarget() string {
	return fmt.Sprintf("%s_%s", runtime.GOOS, NormalizeArch(runtime.GOARCH))
}

// DefaultModelDirFor picks the model cache directory. A mounted network
// volume takes precedence over the per-user data directory.
func DefaultModelDirFor(goos, homeDir, xdgDataHome, volume string) (string, error) {
	if volume != "" {
		if info, err := os.Stat(volume); err == nil && info.IsDir() {
			return filepath.Join(volume, "voxserve", "models"), nil
		}
	}

	dataDir, err := defaultDataDirFor(goos, homeDir, xdgDataHome)
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "models"), nil
}

func ResolveModelDir(override string) (string, error) {
	if override == "" {
		override = os.Getenv(EnvModelDir)
	}
	if override != "" {
		return filepath.Clean(override), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	return DefaultModelDirFor(runtime.GOOS, homeDir, os.Getenv("XDG_DATA_HOME"), NetworkVolume)
}

// ResolveScratchDir returns the directory for per-job temp files, creating it
// when an explicit location was configured.
func ResolveScratchDir(override string) (string, error) {
	if override == "" {
		override = os.Getenv(EnvScratchDir)
	}
	if override == "" {
		return os.TempDir(), nil
	}

	dir := filepath.Clean(override)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create scratch directory %s: %w", dir, err)
	}
	return dir, nil
}

func defaultDataDirFor(goos, homeDir, xdgDataHome string) (string, error) {
	if homeDir == "" {
		return "", errors.New("home directory is empty")
	}

	switch goos {
	case "linux":
		if xdgDataHome != "" {
			return filepath.Join(xdgDataHome, "voxserve"), nil
		}
		return filepath.Join(homeDir, ".local", "share", "voxserve"), nil
	case "darwin":
		return filepath.Join(homeDir, "Library", "Application Support", "voxserve"), nil
	default:
		return "", fmt.Errorf("unsupported OS: %s", goos)
	}
}
