package serverless

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Inline base64 audio makes request bodies large.
const maxRequestBody = 256 << 20

type APIOptions struct {
	Classify Classifier
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// APIServer exposes the handler over HTTP for local development. Requests
// are serialized so the pipeline still sees one job at a time.
type APIServer struct {
	handler  Handler
	classify Classifier
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	mu       sync.Mutex
}

type syncResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Output any    `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

func NewAPIServer(handler Handler, opts APIOptions) *APIServer {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	return &APIServer{
		handler:  handler,
		classify: opts.Classify,
		gatherer: gatherer,
		logger:   logger,
	}
}

func (s *APIServer) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /runsync", s.handleRunSync)
	mux.HandleFunc("GET /health", handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight requests.
func (s *APIServer) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("local API listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *APIServer) handleRunSync(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, syncResponse{Status: "FAILED", Error: err.Error()})
		return
	}

	jobID := "sync-" + uuid.NewString()
	log := s.logger.With(zap.String("job_id", jobID))

	s.mu.Lock()
	started := time.Now()
	output, err := s.handler.Handle(r.Context(), body)
	s.mu.Unlock()

	result := newJobResult(output, err, s.classify)
	resp := syncResponse{ID: jobID, Status: "COMPLETED", Output: result.Output}
	if err != nil {
		log.Warn("job failed", zap.Duration("elapsed", time.Since(started)), zap.Error(err))
		resp.Status = "FAILED"
		resp.Error = result.Error
	} else {
		log.Info("job completed", zap.Duration("elapsed", time.Since(started)))
	}

	writeJSON(w, http.StatusOK, resp)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
