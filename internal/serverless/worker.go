package serverless

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fmueller/voxserve/internal/metrics"
	"go.uber.org/zap"
)

const (
	maxPollBackoff = 30 * time.Second
	reportAttempts = 3
)

type WorkerOptions struct {
	Classify   Classifier
	HTTPClient *http.Client
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
	UserAgent  string
}

// Worker pulls one job at a time from the platform and posts its result.
type Worker struct {
	cfg      Config
	handler  Handler
	classify Classifier
	client   *http.Client
	metrics  *metrics.Metrics
	logger   *zap.Logger
	agent    string
}

type envelope struct {
	ID string `json:"id"`
}

func NewWorker(cfg Config, handler Handler, opts WorkerOptions) (*Worker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 90 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Worker{
		cfg:      cfg,
		handler:  handler,
		classify: opts.Classify,
		client:   client,
		metrics:  opts.Metrics,
		logger:   logger.With(zap.String("worker_id", cfg.WorkerID)),
		agent:    opts.UserAgent,
	}, nil
}

// Run blocks until ctx is cancelled. Jobs are processed strictly one after another.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", zap.Duration("poll_interval", w.cfg.PollInterval))

	backoff := w.cfg.PollInterval
	for {
		if ctx.Err() != nil {
			w.logger.Info("worker stopping")
			return nil
		}

		payload, err := w.take(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.metrics.PollFailed()
			w.logger.Warn("failed to fetch job", zap.Error(err), zap.Duration("retry_in", backoff))
			sleep(ctx, backoff)
			backoff = min(backoff*2, maxPollBackoff)
			continue
		}
		backoff = w.cfg.PollInterval

		if payload == nil {
			sleep(ctx, w.cfg.PollInterval)
			continue
		}

		w.process(ctx, payload)
	}
}

func (w *Worker) process(ctx context.Context, payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil || env.ID == "" {
		w.logger.Error("received job without id; dropping", zap.ByteString("payload", truncate(payload, 256)))
		return
	}

	log := w.logger.With(zap.String("job_id", env.ID))
	log.Info("job received")
	started := time.Now()

	output, err := w.handler.Handle(ctx, payload)
	result := newJobResult(output, err, w.classify)
	if err != nil {
		log.Warn("job failed", zap.Duration("elapsed", time.Since(started)), zap.Error(err))
	} else {
		log.Info("job completed", zap.Duration("elapsed", time.Since(started)))
	}

	if err := w.report(context.WithoutCancel(ctx), env.ID, result); err != nil {
		w.metrics.PollFailed()
		log.Error("failed to report job result", zap.Error(err))
	}
}

// take returns nil, nil when the queue is empty.
func (w *Worker) take(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.cfg.takeURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("create job request: %w", err)
	}
	w.decorate(req)

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status %d from job endpoint", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read job: %w", err)
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("{}")) || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	return trimmed, nil
}

func (w *Worker) report(ctx context.Context, jobID string, result jobResult) error {
	body, err := json.Marshal(result)
	if err != nil {
		body, _ = json.Marshal(newJobResult(nil, fmt.Errorf("encode job output: %w", err), nil))
	}

	target := w.doneURL(jobID)
	var lastErr error
	for attempt := 1; attempt <= reportAttempts; attempt++ {
		if attempt > 1 {
			sleep(ctx, time.Duration(attempt)*300*time.Millisecond)
		}

		lastErr = w.postResult(ctx, target, body)
		if lastErr == nil {
			return nil
		}
		w.logger.Warn("retrying result upload", zap.String("job_id", jobID), zap.Int("attempt", attempt), zap.Error(lastErr))
	}
	return lastErr
}

func (w *Worker) postResult(ctx context.Context, target string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create result request: %w", err)
	}
	w.decorate(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("unexpected status %d from result endpoint", resp.StatusCode)
	}
	return nil
}

func (w *Worker) doneURL(jobID string) string {
	if strings.Contains(w.cfg.JobDoneURL, "$ID") {
		return strings.ReplaceAll(w.cfg.JobDoneURL, "$ID", url.QueryEscape(jobID))
	}

	u, err := url.Parse(w.cfg.JobDoneURL)
	if err != nil {
		return w.cfg.JobDoneURL
	}
	q := u.Query()
	q.Set("id", jobID)
	u.RawQuery = q.Encode()
	return u.String()
}

func (w *Worker) decorate(req *http.Request) {
	if w.cfg.APIKey != "" {
		req.Header.Set("Authorization", w.cfg.APIKey)
	}
	if w.agent != "" {
		req.Header.Set("User-Agent", w.agent)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
