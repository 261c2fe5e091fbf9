package fetch

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"  // cover gifs
	_ "image/jpeg" // cover jpgs
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/mediacovers/internal/domain"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const (
	defaultTimeout = 20 * time.Second
	userAgent      = "mediacovers/1.0"

	// maxCoverBytes is the largest cover body accepted
	maxCoverBytes = 16 << 20

	// lowPriority is the RFC 9218 urgency hint for background image loads
	lowPriority = "u=7, i"
)

// Client implements domain.CoverFetcher over HTTP.
type Client struct {
	baseURL    *url.URL
	username   string
	password   string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBasicAuth sends credentials with every request.
func WithBasicAuth(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// NewClient creates a fetcher resolving relative cover URLs against baseURL.
func NewClient(baseURL string, logger *slog.Logger, opts ...Option) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	c := &Client{
		baseURL: u,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Fetch downloads a cover without cache reuse and verifies it decodes as an
// image. A 200 with an undecodable body is a failure.
func (c *Client) Fetch(ctx context.Context, rawURL string) error {
	req, err := c.newRequest(ctx, http.MethodGet, rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrFetchFailed, err)
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Priority", lowPriority)
	req.Header.Set("Accept", "image/*")

	c.logger.Debug("cover request", "url", req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: status %d", domain.ErrFetchFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCoverBytes+1))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", domain.ErrFetchFailed, err)
	}
	if len(body) > maxCoverBytes {
		return fmt.Errorf("%w: cover larger than %d bytes", domain.ErrFetchFailed, maxCoverBytes)
	}
	return Validate(body)
}

// Exists revalidates a previously verified URL with a HEAD request.
// Servers answering 405 to HEAD are treated as reachable.
func (c *Client) Exists(ctx context.Context, rawURL string) (bool, error) {
	req, err := c.newRequest(ctx, http.MethodHead, rawURL)
	if err != nil {
		return false, err
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrFetchFailed, err)
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, nil
	case resp.StatusCode == http.StatusMethodNotAllowed:
		return true, nil
	default:
		return false, nil
	}
}

// Validate reports whether data decodes completely as an image. A valid
// header over a truncated body fails.
func Validate(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty body", domain.ErrDecodeFailed)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDecodeFailed, err)
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return fmt.Errorf("%w: invalid dimensions %dx%d", domain.ErrDecodeFailed, b.Dx(), b.Dy())
	}
	return nil
}

// Resolve turns a cover URL (usually server-relative) into an absolute one.
func (c *Client) Resolve(rawURL string) (string, error) {
	ref, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return c.baseURL.ResolveReference(ref).String(), nil
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string) (*http.Request, error) {
	abs, err := c.Resolve(rawURL)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, abs, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	return req, nil
}
