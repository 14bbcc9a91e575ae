// Package fetch is the network boundary for metadata, tiles and whole images.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/webarchivist/internal/apperr"
)

// ErrStatus is wrapped by errors for non-2xx responses.
var ErrStatus = errors.New("fetch: unexpected status")

// Options configures the client.
type Options struct {
	// Timeout for a single request. Default: 30s
	Timeout time.Duration
	// UserAgent is sent on every request when set.
	UserAgent string
	// RequestsPerSecond paces requests; zero disables pacing.
	RequestsPerSecond float64
	// Burst is the limiter burst. Default: 1
	Burst int
	// RetryAttempts counts retries after the first try for 5xx and transport
	// errors. DefaultOptions sets 2.
	RetryAttempts int
	// RetryBackoff is the initial backoff. Default: 500ms
	RetryBackoff time.Duration
	// MaxBytes caps a response body. Default: 64 MiB
	MaxBytes int64
	// Transport overrides the base transport.
	Transport http.RoundTripper
}

// DefaultOptions returns options with the defaults above.
func DefaultOptions() Options {
	return Options{
		Timeout:       30 * time.Second,
		Burst:         1,
		RetryAttempts: 2,
		RetryBackoff:  500 * time.Millisecond,
		MaxBytes:      64 << 20,
	}
}

// Payload is a fetched body with its response metadata.
type Payload struct {
	Status      int
	ContentType string
	Data        []byte
}

// IsImage reports whether the payload declares an image content type.
func (p *Payload) IsImage() bool {
	return p != nil && strings.HasPrefix(strings.ToLower(p.ContentType), "image/")
}

// Client performs paced GET requests with retry.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	opts    Options
}

// NewClient creates a client. Zero option fields take their defaults.
func NewClient(opts Options) *Client {
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.Burst <= 0 {
		opts.Burst = def.Burst
	}
	if opts.RetryAttempts < 0 {
		opts.RetryAttempts = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = def.RetryBackoff
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = def.MaxBytes
	}

	base := opts.Transport
	if base == nil {
		base = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        64,
			MaxIdleConnsPerHost: 16,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
		}
	}

	limiter := rate.NewLimiter(rate.Inf, opts.Burst)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst)
	}

	return &Client{
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: roundTripper{base: base, ua: opts.UserAgent},
		},
		limiter: limiter,
		opts:    opts,
	}
}

type roundTripper struct {
	base http.RoundTripper
	ua   string
}

func (rt roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if rt.ua != "" && req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", rt.ua)
	}
	return rt.base.RoundTrip(req)
}

// JSON fetches url and decodes its body into v.
func (c *Client) JSON(ctx context.Context, url string, v any) error {
	p, err := c.get(ctx, url, "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(p.Data, v); err != nil {
		return apperr.New(apperr.CodeFetchFailed, "decode json from "+url, err)
	}
	return nil
}

// Tile fetches one image tile. The caller inspects ContentType.
func (c *Client) Tile(ctx context.Context, url string) (*Payload, error) {
	return c.get(ctx, url, "image/*")
}

// Blob fetches a whole resource.
func (c *Client) Blob(ctx context.Context, url string) (*Payload, error) {
	return c.get(ctx, url, "*/*")
}

func (c *Client) get(ctx context.Context, url, accept string) (*Payload, error) {
	var lastErr error
	for attempt := 0; attempt <= c.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		p, retry, err := c.do(ctx, url, accept)
		if err == nil {
			return p, nil
		}
		if !retry {
			return nil, err
		}
		lastErr = err
		slog.Debug("fetch retry", "url", url, "attempt", attempt+1, "error", err)
	}
	return nil, apperr.New(apperr.CodeFetchFailed, fmt.Sprintf("get %s failed after %d attempts", url, c.opts.RetryAttempts+1), lastErr)
}

func (c *Client) do(ctx context.Context, url, accept string) (*Payload, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, apperr.New(apperr.CodeFetchFailed, "create request", err)
	}
	req.Header.Set("Accept", accept)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			slog.Debug("fetch body close failed", "url", url, "error", cerr)
		}
	}()

	if resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
		if resp.StatusCode == http.StatusNotFound {
			return nil, false, apperr.New(apperr.CodeResourceNotFound, "not found: "+url, statusErr)
		}
		return nil, false, apperr.New(apperr.CodeFetchFailed, "get "+url, statusErr)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.opts.MaxBytes+1))
	if err != nil {
		return nil, true, err
	}
	if int64(len(data)) > c.opts.MaxBytes {
		return nil, false, apperr.New(apperr.CodeFetchFailed, fmt.Sprintf("body of %s exceeds %d bytes", url, c.opts.MaxBytes), nil)
	}

	return &Payload{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Data:        data,
	}, false, nil
}

// backoff waits for an exponentially increasing duration with jitter.
func (c *Client) backoff(ctx context.Context, attempt int) error {
	d := c.opts.RetryBackoff * time.Duration(1<<uint(attempt-1))
	jitter := time.Duration(float64(d) * (0.5 + rand.Float64()))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(jitter):
		return nil
	}
}
