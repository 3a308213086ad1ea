// Package source turns a job's declared audio source into a local file.
package source

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"
)

// FetchTimeout bounds the whole audio download, headers and body.
const FetchTimeout = 30 * time.Second

const defaultExt = ".wav"

var (
	ErrMissingInput = errors.New("provide one of: audio_url, audio_base64, or audio_path")
	ErrNotFound     = errors.New("audio_path not found")
	ErrFetch        = errors.New("fetch audio")
	ErrDecode       = errors.New("decode audio_base64")
)

// Kind names the field a source was taken from.
type Kind string

const (
	KindURL    Kind = "audio_url"
	KindBase64 Kind = "audio_base64"
	KindPath   Kind = "audio_path"
)

// Input holds the source fields of a job. A nil field was not supplied.
type Input struct {
	URL    *string
	Base64 *string
	Path   *string
}

// Resolved is a readable audio file. Cleanup is set only when the file was
// created for this job and must be removed once the job is done.
type Resolved struct {
	Path    string
	Cleanup string
	Kind    Kind
	// Bytes is the amount written to a temp file, zero for caller-owned paths.
	Bytes int64
}

type Options struct {
	// Dir receives the temp files; empty means os.TempDir().
	Dir        string
	UserAgent  string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

type Resolver struct {
	dir       string
	userAgent string
	client    *http.Client
	logger    *zap.Logger
}

func NewResolver(opts Options) *Resolver {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: FetchTimeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Resolver{
		dir:       opts.Dir,
		userAgent: opts.UserAgent,
		client:    client,
		logger:    logger,
	}
}

// Resolve honors exactly one source, in the order URL, base64, path.
func (r *Resolver) Resolve(ctx context.Context, in Input) (Resolved, error) {
	switch {
	case in.URL != nil:
		return r.fetch(ctx, *in.URL)
	case in.Base64 != nil:
		return r.decode(*in.Base64)
	case in.Path != nil:
		return r.local(*in.Path)
	default:
		return Resolved{}, ErrMissingInput
	}
}

func (r *Resolver) fetch(ctx context.Context, rawURL string) (Resolved, error) {
	ctx, cancel := context.WithTimeout(ctx, FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Resolved{}, fmt.Errorf("%w: create request: %v", ErrFetch, err)
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	started := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return Resolved{}, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return Resolved{}, fmt.Errorf("%w: %s returned status %d", ErrFetch, redactURL(req.URL), resp.StatusCode)
	}

	body := &trackingReader{r: resp.Body}
	resolved, err := r.writeTemp(extensionFor(req.URL), body)
	if err != nil {
		if body.err != nil {
			return Resolved{}, fmt.Errorf("%w: read body: %v", ErrFetch, body.err)
		}
		return Resolved{}, err
	}

	resolved.Kind = KindURL
	r.logger.Debug("audio downloaded",
		zap.String("url", redactURL(req.URL)),
		zap.Int64("bytes", resolved.Bytes),
		zap.Duration("elapsed", time.Since(started)),
	)
	return resolved, nil
}

func (r *Resolver) decode(payload string) (Resolved, error) {
	data, err := DecodeBase64(payload)
	if err != nil {
		return Resolved{}, err
	}

	resolved, err := r.writeTemp(defaultExt, bytes.NewReader(data))
	if err != nil {
		return Resolved{}, err
	}
	resolved.Kind = KindBase64
	return resolved, nil
}

func (r *Resolver) local(p string) (Resolved, error) {
	if _, err := os.Stat(p); err != nil {
		return Resolved{}, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	return Resolved{Path: p, Kind: KindPath}, nil
}

// writeTemp persists src into a fresh temp file. On any failure the file is
// removed before returning, so callers never see a half-written file.
func (r *Resolver) writeTemp(ext string, src io.Reader) (Resolved, error) {
	f, err := os.CreateTemp(r.dir, "voxserve-audio-*"+ext)
	if err != nil {
		return Resolved{}, fmt.Errorf("create temp audio file: %w", err)
	}
	tempPath := f.Name()

	success := false
	defer func() {
		if !success {
			_ = f.Close()
			_ = os.Remove(tempPath)
		}
	}()

	written, err := io.Copy(f, src)
	if err != nil {
		return Resolved{}, fmt.Errorf("write temp audio file: %w", err)
	}
	if err := f.Close(); err != nil {
		return Resolved{}, fmt.Errorf("close temp audio file: %w", err)
	}

	success = true
	return Resolved{Path: tempPath, Cleanup: tempPath, Bytes: written}, nil
}

// DecodeBase64 accepts padded or unpadded standard base64, optionally
// wrapped across lines or prefixed with a data URI header.
func DecodeBase64(payload string) ([]byte, error) {
	s := strings.TrimSpace(payload)
	if strings.HasPrefix(s, "data:") {
		if idx := strings.Index(s, ";base64,"); idx >= 0 {
			s = s[idx+len(";base64,"):]
		}
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, s)

	data, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return data, nil
	}
	if raw, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "=")); rawErr == nil {
		return raw, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrDecode, err)
}

// extensionFor keeps the URL path's extension so format sniffing in the
// engine sees e.g. ".mp3". Anything unusual falls back to ".wav".
func extensionFor(u *url.URL) string {
	ext := path.Ext(u.Path)
	if len(ext) < 2 || len(ext) > 10 {
		return defaultExt
	}
	for _, c := range ext[1:] {
		isAlnum := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
		if !isAlnum {
			return defaultExt
		}
	}
	return ext
}

// Presigned URLs carry credentials in the query string.
func redactURL(u *url.URL) string {
	clean := *u
	clean.RawQuery = ""
	clean.User = nil
	return clean.String()
}

type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		t.err = err
	}
	return n, err
}
