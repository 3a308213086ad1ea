// Package serverless connects the job handler to the platform's job queue.
package serverless

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	EnvJobTakeURL = "RUNPOD_WEBHOOK_GET_JOB"
	EnvJobDoneURL = "RUNPOD_WEBHOOK_POST_OUTPUT"
	EnvAPIKey     = "RUNPOD_AI_API_KEY"
	EnvWorkerID   = "RUNPOD_POD_ID"
)

type Config struct {
	// JobTakeURL may contain $ID, replaced by the worker id.
	JobTakeURL string
	// JobDoneURL may contain $ID, replaced by the job id.
	JobDoneURL   string
	APIKey       string
	WorkerID     string
	PollInterval time.Duration
}

// LoadConfig reads the platform variables. getenv is usually os.Getenv.
func LoadConfig(getenv func(string) string) Config {
	workerID := envOrDefault(getenv, EnvWorkerID, "")
	if workerID == "" {
		workerID = "local-" + uuid.NewString()
	}

	return Config{
		JobTakeURL:   envOrDefault(getenv, EnvJobTakeURL, ""),
		JobDoneURL:   envOrDefault(getenv, EnvJobDoneURL, ""),
		APIKey:       envOrDefault(getenv, EnvAPIKey, ""),
		WorkerID:     workerID,
		PollInterval: time.Second,
	}
}

// Validate reports a missing job endpoint before any model is loaded.
func (c Config) Validate() error {
	if strings.TrimSpace(c.JobTakeURL) == "" {
		return fmt.Errorf("%s is not set; use `voxserve run` or `voxserve serve-api` for local jobs", EnvJobTakeURL)
	}
	if strings.TrimSpace(c.JobDoneURL) == "" {
		return fmt.Errorf("%s is not set", EnvJobDoneURL)
	}
	return nil
}

func (c Config) takeURL() string {
	return strings.ReplaceAll(c.JobTakeURL, "$ID", c.WorkerID)
}

func envOrDefault(getenv func(string) string, key, def string) string {
	if v := strings.TrimSpace(getenv(key)); v != "" {
		return v
	}
	return def
}
