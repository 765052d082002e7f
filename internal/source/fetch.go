package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	appLog "holidaysjp/internal/log"
	"holidaysjp/internal/model"
)

const (
	defaultDownloadTimeout = 30 * time.Second
	defaultProbeTimeout    = 10 * time.Second
	defaultUserAgent       = "holidaysjp/1.0"

	// The Cabinet Office CSV is ~20 KB; anything near this is not a holiday list.
	maxBodySize = 5 * 1024 * 1024
)

// ClientOptions configures a Client. Zero values fall back to defaults.
type ClientOptions struct {
	// DownloadTimeout bounds a full GET, including reading the body.
	DownloadTimeout time.Duration
	// ProbeTimeout bounds a HEAD probe. It must be shorter than
	// DownloadTimeout; if not, it is clamped to half of it.
	ProbeTimeout time.Duration
	UserAgent    string
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// FetchResult is the outcome of a full download.
type FetchResult struct {
	Body         []byte
	ETag         string // empty if the server sent none
	LastModified string // empty if the server sent none
	StatusCode   int
}

// Client talks to the remote holiday source over HTTP.
type Client struct {
	client          *http.Client
	downloadTimeout time.Duration
	probeTimeout    time.Duration
	userAgent       string
}

// NewClient creates a Client from opts.
func NewClient(opts ClientOptions) *Client {
	c := &Client{
		client:          opts.HTTPClient,
		downloadTimeout: opts.DownloadTimeout,
		probeTimeout:    opts.ProbeTimeout,
		userAgent:       opts.UserAgent,
	}
	if c.client == nil {
		// Per-request contexts carry the timeouts.
		c.client = &http.Client{}
	}
	if c.downloadTimeout <= 0 {
		c.downloadTimeout = defaultDownloadTimeout
	}
	if c.probeTimeout <= 0 {
		c.probeTimeout = defaultProbeTimeout
	}
	if c.probeTimeout >= c.downloadTimeout {
		c.probeTimeout = c.downloadTimeout / 2
	}
	if c.userAgent == "" {
		c.userAgent = defaultUserAgent
	}
	return c
}

// Fetch downloads url in full. Any non-2xx status is an error wrapping
// model.ErrNetwork, never an empty result.
func (c *Client) Fetch(ctx context.Context, url string) (FetchResult, error) {
	if url == "" {
		return FetchResult{}, fmt.Errorf("%w: source URL is empty", model.ErrNetwork)
	}

	ctx, cancel := context.WithTimeout(ctx, c.downloadTimeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, url)
	if err != nil {
		return FetchResult{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return FetchResult{}, fmt.Errorf("%w: GET %s: reading body: %w", model.ErrNetwork, redactURL(url), err)
	}
	if len(body) > maxBodySize {
		return FetchResult{}, fmt.Errorf("%w: GET %s: body exceeds %d bytes", model.ErrNetwork, redactURL(url), maxBodySize)
	}

	res := FetchResult{
		Body:         body,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		StatusCode:   resp.StatusCode,
	}

	appLog.Info("source fetch success",
		"url", redactURL(url),
		"status", resp.StatusCode,
		"bytes", len(body),
		"etag", res.ETag,
	)
	return res, nil
}

// Probe issues a HEAD request and returns the remote ETag. An empty string
// with a nil error means the server answered but sent no ETag.
func (c *Client) Probe(ctx context.Context, url string) (string, error) {
	if url == "" {
		return "", fmt.Errorf("%w: source URL is empty", model.ErrNetwork)
	}

	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodHead, url)
	if err != nil {
		return "", err
	}
	// HEAD has no body, but drain for connection reuse.
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	etag := resp.Header.Get("ETag")
	appLog.Debug("source probe completed", "url", redactURL(url), "status", resp.StatusCode, "etag", etag)
	return etag, nil
}

func (c *Client) do(ctx context.Context, method, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", model.ErrNetwork, method, redactURL(url), err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s %s: timed out: %w", model.ErrNetwork, method, redactURL(url), err)
		}
		return nil, fmt.Errorf("%w: %s %s: %w", model.ErrNetwork, method, redactURL(url), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s %s: unexpected status %s", model.ErrNetwork, method, redactURL(url), resp.Status)
	}
	return resp, nil
}

// redactURL hides everything after the host for logging purposes.
//
//	https://example.com/path/to/file.csv?token=abcd
//	-> https://example.com/...(redacted)
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	// Find scheme separator.
	i := -1
	for idx := 0; idx+2 < len(u); idx++ {
		if u[idx:idx+3] == "://" {
			i = idx + 3
			break
		}
	}
	if i == -1 {
		return "url://...(redacted)"
	}

	// Find next slash after host.
	j := i
	for j < len(u) && u[j] != '/' && u[j] != '?' {
		j++
	}

	return u[:j] + redactedSuffix
}

// RedactURL is redactURL for other packages' log lines.
func RedactURL(u string) string {
	return redactURL(u)
}
