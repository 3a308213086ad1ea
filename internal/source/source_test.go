package source

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

func requireDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestResolveMissingInput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := NewResolver(Options{Dir: dir}).Resolve(context.Background(), Input{})
	require.ErrorIs(t, err, ErrMissingInput)
	requireDirEmpty(t, dir)
}

func TestResolveBase64RoundTripsBytes(t *testing.T) {
	t.Parallel()

	payload := make([]byte, 4096)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	dir := t.TempDir()
	resolved, err := NewResolver(Options{Dir: dir}).Resolve(context.Background(), Input{
		Base64: ptr(base64.StdEncoding.EncodeToString(payload)),
	})
	require.NoError(t, err)
	require.Equal(t, KindBase64, resolved.Kind)
	require.Equal(t, resolved.Path, resolved.Cleanup)
	require.Equal(t, ".wav", filepath.Ext(resolved.Path))
	require.Equal(t, dir, filepath.Dir(resolved.Path))

	onDisk, err := os.ReadFile(resolved.Path)
	require.NoError(t, err)
	require.True(t, bytes.Equal(payload, onDisk))
}

func TestResolveBase64Malformed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := NewResolver(Options{Dir: dir}).Resolve(context.Background(), Input{Base64: ptr("!!not base64!!")})
	require.ErrorIs(t, err, ErrDecode)
	requireDirEmpty(t, dir)
}

func TestDecodeBase64Variants(t *testing.T) {
	t.Parallel()

	want := []byte("RIFF\x00\x01wave")
	padded := base64.StdEncoding.EncodeToString(want)
	unpadded := base64.RawStdEncoding.EncodeToString(want)

	for name, in := range map[string]string{
		"padded":   padded,
		"unpadded": unpadded,
		"wrapped":  padded[:4] + "\n" + padded[4:] + "\n",
		"data uri": "data:audio/wav;base64," + padded,
	} {
		got, err := DecodeBase64(in)
		require.NoErrorf(t, err, "variant %s", name)
		require.Equalf(t, want, got, "variant %s", name)
	}
}

func TestResolvePathExisting(t *testing.T) {
	t.Parallel()

	audio := filepath.Join(t.TempDir(), "sample.wav")
	require.NoError(t, os.WriteFile(audio, []byte("RIFF"), 0o644))

	resolved, err := NewResolver(Options{}).Resolve(context.Background(), Input{Path: ptr(audio)})
	require.NoError(t, err)
	require.Equal(t, audio, resolved.Path)
	require.Empty(t, resolved.Cleanup)
}

func TestResolvePathMissing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := NewResolver(Options{Dir: dir}).Resolve(context.Background(), Input{Path: ptr("/no/such/sample.wav")})
	require.ErrorIs(t, err, ErrNotFound)
	requireDirEmpty(t, dir)
}

func TestResolveURLKeepsExtension(t *testing.T) {
	t.Parallel()

	payload := []byte("ID3-fake-mp3")
	var userAgent atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent.Store(r.Header.Get("User-Agent"))
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	dir := t.TempDir()
	resolved, err := NewResolver(Options{Dir: dir, UserAgent: "voxserve/test"}).Resolve(context.Background(), Input{
		URL: ptr(server.URL + "/clips/speech.mp3?sig=abc"),
	})
	require.NoError(t, err)
	require.Equal(t, KindURL, resolved.Kind)
	require.Equal(t, ".mp3", filepath.Ext(resolved.Path))
	require.Equal(t, resolved.Path, resolved.Cleanup)
	require.Equal(t, int64(len(payload)), resolved.Bytes)
	require.Equal(t, "voxserve/test", userAgent.Load())

	onDisk, err := os.ReadFile(resolved.Path)
	require.NoError(t, err)
	require.Equal(t, payload, onDisk)
}

func TestResolveURLDefaultsToWav(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("RIFF"))
	}))
	defer server.Close()

	resolved, err := NewResolver(Options{Dir: t.TempDir()}).Resolve(context.Background(), Input{URL: ptr(server.URL + "/download")})
	require.NoError(t, err)
	require.Equal(t, ".wav", filepath.Ext(resolved.Path))
}

func TestResolveURLNotFoundLeavesNoTempFile(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	dir := t.TempDir()
	_, err := NewResolver(Options{Dir: dir}).Resolve(context.Background(), Input{URL: ptr(server.URL + "/missing.mp3")})
	require.ErrorIs(t, err, ErrFetch)
	require.Contains(t, err.Error(), "404")
	requireDirEmpty(t, dir)
}

func TestResolveURLTruncatedBodyRemovesTempFile(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		_, _ = w.Write([]byte("short"))
	}))
	defer server.Close()

	dir := t.TempDir()
	_, err := NewResolver(Options{Dir: dir}).Resolve(context.Background(), Input{URL: ptr(server.URL + "/a.wav")})
	require.ErrorIs(t, err, ErrFetch)
	requireDirEmpty(t, dir)
}

func TestResolveURLUnreachable(t *testing.T) {
	t.Parallel()

	_, err := NewResolver(Options{Dir: t.TempDir()}).Resolve(context.Background(), Input{URL: ptr("http://127.0.0.1:1/a.wav")})
	require.ErrorIs(t, err, ErrFetch)
}

func TestResolvePrecedence(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("from-url"))
	}))
	defer server.Close()

	existing := filepath.Join(t.TempDir(), "local.wav")
	require.NoError(t, os.WriteFile(existing, []byte("from-path"), 0o644))
	b64 := base64.StdEncoding.EncodeToString([]byte("from-base64"))

	resolver := NewResolver(Options{Dir: t.TempDir()})

	resolved, err := resolver.Resolve(context.Background(), Input{URL: ptr(server.URL + "/x.wav"), Base64: ptr(b64), Path: ptr(existing)})
	require.NoError(t, err)
	require.Equal(t, KindURL, resolved.Kind)
	onDisk, err := os.ReadFile(resolved.Path)
	require.NoError(t, err)
	require.Equal(t, "from-url", string(onDisk))

	resolved, err = resolver.Resolve(context.Background(), Input{Base64: ptr(b64), Path: ptr(existing)})
	require.NoError(t, err)
	require.Equal(t, KindBase64, resolved.Kind)
	onDisk, err = os.ReadFile(resolved.Path)
	require.NoError(t, err)
	require.Equal(t, "from-base64", string(onDisk))
	require.Equal(t, int32(1), hits.Load())
}

func TestExtensionFor(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://cdn.example.com/a/b/talk.flac":    ".flac",
		"https://cdn.example.com/a/b/talk.MP3?x=1": ".MP3",
		"https://cdn.example.com/a/b/talk":         ".wav",
		"https://cdn.example.com/a/b/talk.m*p3":    ".wav",
		"https://cdn.example.com/a.b/talk":         ".wav",
		"https://cdn.example.com/talk.":            ".wav",
	}

	for raw, want := range cases {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		require.Equalf(t, want, extensionFor(u), "url %s", raw)
	}
}
