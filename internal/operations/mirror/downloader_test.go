package mirror

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDownloader(opts ...DownloaderOption) *Downloader {
	opts = append([]DownloaderOption{WithDownloaderLogger(testEntry())}, opts...)
	return NewDownloader(5*time.Second, opts...)
}

func TestResolveURL(t *testing.T) {
	tests := []struct {
		base string
		name string
		want string
	}{
		{"https://example.com/releases/", "latest.yml", "https://example.com/releases/latest.yml"},
		{"https://example.com/releases/", "EasySmart 1.0.exe", "https://example.com/releases/EasySmart%201.0.exe"},
		{"https://example.com/releases/", "sub/app.exe", "https://example.com/releases/sub/app.exe"},
		{"https://example.com/releases", "latest.yml", "https://example.com/latest.yml"},
		{"https://example.com/releases/", "https://cdn.example.org/app.exe", "https://cdn.example.org/app.exe"},
		{"https://example.com/releases/", "/downloads/app.exe", "https://example.com/downloads/app.exe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveURL(tt.base, tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveURL_InvalidBase(t *testing.T) {
	_, err := ResolveURL("://bad", "latest.yml")
	assert.Error(t, err)
}

func TestDownload_Success(t *testing.T) {
	body := bytes.Repeat([]byte{0xAB}, 64*1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		_, _ = w.Write(body)
	}))
	defer server.Close()

	var progress bytes.Buffer
	d := newTestDownloader(WithProgress(&progress))

	dest := filepath.Join(t.TempDir(), "app.exe")
	n, err := d.Download(context.Background(), server.URL+"/app.exe", dest)
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), n)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, body, got)

	assert.Contains(t, progress.String(), "app.exe: 100.0%\n")
}

func TestDownload_NoProgressWithoutContentLength(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		_, _ = w.Write([]byte("chunk-1"))
		flusher.Flush()
		_, _ = w.Write([]byte("chunk-2"))
	}))
	defer server.Close()

	var progress bytes.Buffer
	d := newTestDownloader(WithProgress(&progress))

	dest := filepath.Join(t.TempDir(), "stream.bin")
	n, err := d.Download(context.Background(), server.URL+"/stream.bin", dest)
	require.NoError(t, err)
	assert.Equal(t, int64(14), n)
	assert.Empty(t, progress.String())
}

func TestDownload_NotFound(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "latest.yml")
	_, err := newTestDownloader().Download(context.Background(), server.URL+"/latest.yml", dest)
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
	assert.True(t, errors.Is(err, ErrHTTPStatus))
	assert.False(t, errors.Is(err, ErrTransport))

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr), "no file should be written for an error response")
}

func TestDownload_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	_, err := newTestDownloader().Download(context.Background(), addr+"/latest.yml", filepath.Join(t.TempDir(), "latest.yml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
	assert.False(t, errors.Is(err, ErrHTTPStatus))
}

func TestDownload_BodyCutShort(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		_, _ = w.Write([]byte("only a few bytes"))
		hj, ok := w.(http.Hijacker)
		if !ok {
			return
		}
		conn, _, err := hj.Hijack()
		if err == nil {
			conn.Close()
		}
	}))
	defer server.Close()

	_, err := newTestDownloader().Download(context.Background(), server.URL+"/app.exe", filepath.Join(t.TempDir(), "app.exe"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
}

func TestDownload_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestDownloader().Download(ctx, server.URL+"/x", filepath.Join(t.TempDir(), "x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

// newDroppingServer accepts requests and closes the connection without
// answering.
func newDroppingServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Error("response writer cannot be hijacked")
			return
		}
		conn, _, err := hj.Hijack()
		if err == nil {
			conn.Close()
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestDownload_BreakerOpensAfterConsecutiveTransportFailures(t *testing.T) {
	var hits atomic.Int32
	server := newDroppingServer(t, &hits)

	d := newTestDownloader()
	dest := filepath.Join(t.TempDir(), "latest.yml")

	for i := 0; i < breakerFailureThreshold; i++ {
		_, err := d.Download(context.Background(), server.URL+"/latest.yml", dest)
		require.True(t, errors.Is(err, ErrTransport), "attempt %d: %v", i, err)
		assert.False(t, errors.Is(err, ErrUpstreamDown))
	}

	_, err := d.Download(context.Background(), server.URL+"/latest.yml", dest)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
	assert.True(t, errors.Is(err, ErrUpstreamDown))
	assert.Equal(t, int32(breakerFailureThreshold), hits.Load())
}

func TestDownload_ErrorStatusesDoNotOpenBreaker(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 5 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	d := newTestDownloader()
	dest := filepath.Join(t.TempDir(), "latest.yml")

	for i := 0; i < 5; i++ {
		_, err := d.Download(context.Background(), server.URL+"/latest.yml", dest)
		require.True(t, errors.Is(err, ErrHTTPStatus))
	}

	n, err := d.Download(context.Background(), server.URL+"/latest.yml", dest)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, int32(6), hits.Load())
}

func TestDownload_BreakerIsPerHost(t *testing.T) {
	var hits atomic.Int32
	dead := newDroppingServer(t, &hits)
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer healthy.Close()

	d := newTestDownloader()
	dir := t.TempDir()

	for i := 0; i <= breakerFailureThreshold; i++ {
		_, err := d.Download(context.Background(), dead.URL+"/latest.yml", filepath.Join(dir, "dead.yml"))
		require.True(t, errors.Is(err, ErrTransport))
	}

	_, err := d.Download(context.Background(), healthy.URL+"/latest.yml", filepath.Join(dir, "latest.yml"))
	assert.NoError(t, err)
}
