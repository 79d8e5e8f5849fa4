package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"sync"
	"time"

	"github.com/jiandanzhineng/easysmart-tools/internal/operations/common"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	breakerFailureThreshold = 3
	breakerOpenTimeout      = 60 * time.Second
	progressInterval        = 200 * time.Millisecond
)

// Downloader streams HTTP resources to disk. Requests to one host share a
// circuit breaker that trips on consecutive transport failures only, so a
// dead upstream stops being hit while error statuses and other hosts are
// unaffected.
type Downloader struct {
	httpClient *http.Client
	progress   io.Writer
	logger     *logrus.Entry

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// DownloaderOption customizes a Downloader.
type DownloaderOption func(*Downloader)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) DownloaderOption {
	return func(d *Downloader) { d.httpClient = c }
}

// WithProgress sets where download progress is rendered. nil disables it.
func WithProgress(w io.Writer) DownloaderOption {
	return func(d *Downloader) { d.progress = w }
}

// WithDownloaderLogger sets the log entry used by the downloader.
func WithDownloaderLogger(l *logrus.Entry) DownloaderOption {
	return func(d *Downloader) { d.logger = l }
}

// NewDownloader creates a downloader. A zero timeout leaves requests
// unbounded, as the default http client does.
func NewDownloader(timeout time.Duration, opts ...DownloaderOption) *Downloader {
	d := &Downloader{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logrus.WithField("component", "mirror-downloader"),
		breakers:   make(map[string]*gobreaker.CircuitBreaker),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// breakerFor returns the circuit breaker guarding host, creating it on first
// use.
func (d *Downloader) breakerFor(host string) *gobreaker.CircuitBreaker {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cb, ok := d.breakers[host]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "mirror-http:" + host,
		Timeout: breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		IsSuccessful: isUpstreamHealthy,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			d.logger.Warnf("Circuit breaker %s state changed from %v to %v", name, from, to)
		},
	})
	d.breakers[host] = cb
	return cb
}

// isUpstreamHealthy reports whether err leaves the upstream's breaker
// untouched. Only transport failures count against a host.
func isUpstreamHealthy(err error) bool {
	return err == nil || !errors.Is(err, ErrTransport)
}

// ResolveURL resolves name against base the way a browser resolves a
// relative link, so base should end with a slash.
func ResolveURL(base, name string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", base, err)
	}
	ref, err := url.Parse(name)
	if err != nil {
		return "", fmt.Errorf("invalid reference %q: %w", name, err)
	}
	return b.ResolveReference(ref).String(), nil
}

// Download fetches rawURL into destPath and returns the number of bytes
// written. Transport failures wrap ErrTransport, non-2xx responses are
// *StatusError, anything else is a filesystem error.
func (d *Downloader) Download(ctx context.Context, rawURL, destPath string) (int64, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid url %q: %v", ErrTransport, rawURL, err)
	}

	res, err := d.breakerFor(u.Host).Execute(func() (interface{}, error) {
		return d.download(ctx, rawURL, destPath)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return 0, fmt.Errorf("%w: %w: %s not requested: %v", ErrTransport, ErrUpstreamDown, rawURL, err)
		}
		return 0, err
	}
	return res.(int64), nil
}

func (d *Downloader) download(ctx context.Context, rawURL, destPath string) (int64, error) {
	d.logger.WithField("url", rawURL).Info("Downloading")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to create request: %v", ErrTransport, err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		d.logger.WithError(err).Error("Request failed")
		return 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, &StatusError{URL: rawURL, Code: resp.StatusCode}
	}

	file, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", destPath, err)
	}

	bar := newProgressBar(d.progress, path.Base(req.URL.Path), resp.ContentLength)
	written, err := common.CopyWithProgress(ctx, file, transportReader{resp.Body}, bar.update)
	bar.finish(written)

	if err != nil {
		file.Close()
		if ctx.Err() != nil {
			return written, ctx.Err()
		}
		return written, fmt.Errorf("failed to save %s: %w", destPath, err)
	}
	if err := file.Close(); err != nil {
		return written, fmt.Errorf("failed to close %s: %w", destPath, err)
	}

	d.logger.WithFields(logrus.Fields{
		"file":  destPath,
		"bytes": written,
	}).Info("✓ Download completed")
	return written, nil
}

// transportReader tags body read failures as transport errors so they are
// not mistaken for local write failures.
type transportReader struct {
	r io.Reader
}

func (t transportReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF {
		err = fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return n, err
}

// progressBar renders a percentage of Content-Length. With an unknown
// length it renders nothing.
type progressBar struct {
	out     io.Writer
	name    string
	total   int64
	limiter *rate.Limiter
}

func newProgressBar(out io.Writer, name string, total int64) *progressBar {
	return &progressBar{
		out:     out,
		name:    name,
		total:   total,
		limiter: rate.NewLimiter(rate.Every(progressInterval), 1),
	}
}

func (p *progressBar) enabled() bool {
	return p.out != nil && p.total > 0
}

func (p *progressBar) update(written int64) {
	if !p.enabled() || !p.limiter.Allow() {
		return
	}
	fmt.Fprintf(p.out, "\r%s: %.1f%%", p.name, float64(written)/float64(p.total)*100)
}

func (p *progressBar) finish(written int64) {
	if !p.enabled() {
		return
	}
	fmt.Fprintf(p.out, "\r%s: %.1f%%\n", p.name, float64(written)/float64(p.total)*100)
}
