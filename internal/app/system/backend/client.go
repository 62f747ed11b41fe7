// Package backend is the HTTP client for the forecasting backend.
//
// Every call issues exactly one request with a bounded timeout. There is no
// retry and no caching; failures come back as *RequestError.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dalemusser/stratacast/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// DefaultAPIPrefix is the path every backend endpoint lives under.
const DefaultAPIPrefix = "/api"

// maxErrorBody bounds how much of a failed response is kept on the error.
const maxErrorBody = 512

// ErrInvalidJSON marks a 2xx response whose body is not JSON.
var ErrInvalidJSON = errors.New("response is not valid JSON")

// RequestError describes a failed backend request.
// Status is 0 when no HTTP response was received.
type RequestError struct {
	Method string
	Path   string
	Status int
	Body   string
	Err    error
}

func (e *RequestError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("backend %s %s: %v", e.Method, e.Path, e.Err)
	}
	msg := fmt.Sprintf("backend %s %s: HTTP %d", e.Method, e.Path, e.Status)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	} else if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the request hit its deadline.
func (e *RequestError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// Config configures a Client.
type Config struct {
	BaseURL   string        // e.g. http://localhost:5000
	APIPrefix string        // defaults to DefaultAPIPrefix
	Timeout   time.Duration // per request; defaults to timeouts.Request()
	Transport http.RoundTripper
}

// Client talks to the forecasting backend.
type Client struct {
	baseURL string
	prefix  string
	timeout time.Duration
	http    *http.Client
	logger  *zap.Logger
}

// New validates cfg and returns a Client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("backend base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend base URL %q: scheme must be http or https", cfg.BaseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("backend base URL %q: missing host", cfg.BaseURL)
	}

	prefix := cfg.APIPrefix
	if prefix == "" {
		prefix = DefaultAPIPrefix
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = timeouts.Request()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		prefix:  "/" + strings.Trim(prefix, "/"),
		timeout: timeout,
		http:    &http.Client{Transport: cfg.Transport},
		logger:  logger,
	}, nil
}

// BaseURL returns the configured backend origin.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL returns the absolute URL for an endpoint path.
func (c *Client) URL(path string) string {
	return c.baseURL + c.prefix + "/" + strings.TrimLeft(path, "/")
}

// Fetch issues one GET for path and returns the JSON body verbatim.
func (c *Client) Fetch(ctx context.Context, path string) (json.RawMessage, error) {
	return c.doJSON(ctx, http.MethodGet, path, c.timeout)
}

// Post issues one POST for path with an empty body and returns the JSON reply.
// Write actions retrain models, so the deadline is timeouts.Action() rather
// than the per-request timeout.
func (c *Client) Post(ctx context.Context, path string) (json.RawMessage, error) {
	return c.doJSON(ctx, http.MethodPost, path, timeouts.Action())
}

func (c *Client) doJSON(ctx context.Context, method, path string, timeout time.Duration) (json.RawMessage, error) {
	ctx, cancel := timeouts.WithTimeout(ctx, timeout, c.logger, "backend "+method+" "+path)
	defer cancel()

	start := time.Now()
	resp, err := c.send(ctx, method, path)
	if err != nil {
		c.logger.Debug("backend request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestError{Method: method, Path: path, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	c.logger.Debug("backend request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
		zap.Int("bytes", len(data)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RequestError{Method: method, Path: path, Status: resp.StatusCode, Body: truncate(data)}
	}
	data = bytes.TrimSpace(data)
	if !json.Valid(data) {
		return nil, &RequestError{Method: method, Path: path, Status: resp.StatusCode, Body: truncate(data), Err: ErrInvalidJSON}
	}
	return json.RawMessage(data), nil
}

// Stream issues one GET and hands back the response body unparsed, for
// binary downloads. The caller must close the body. The request deadline
// covers the whole transfer.
func (c *Client) Stream(ctx context.Context, path string) (io.ReadCloser, http.Header, error) {
	ctx, cancel := timeouts.WithTimeout(ctx, c.timeout, c.logger, "backend GET "+path)

	resp, err := c.send(ctx, http.MethodGet, path)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		cancel()
		return nil, nil, &RequestError{Method: http.MethodGet, Path: path, Status: resp.StatusCode, Body: truncate(data)}
	}
	return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, resp.Header, nil
}

// Download streams path into w and returns the number of bytes copied.
// When w is an http.ResponseWriter the backend's Content-Type and
// Content-Disposition are passed on before the first byte. A failure before
// any byte is written leaves w untouched.
func (c *Client) Download(ctx context.Context, path string, w io.Writer) (int64, error) {
	body, header, err := c.Stream(ctx, path)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	if rw, ok := w.(http.ResponseWriter); ok {
		for _, h := range []string{"Content-Type", "Content-Disposition"} {
			if v := header.Get(h); v != "" {
				rw.Header().Set(h, v)
			}
		}
	}
	n, err := io.Copy(w, body)
	if err != nil {
		return n, &RequestError{Method: http.MethodGet, Path: path, Status: http.StatusOK, Err: fmt.Errorf("copy body: %w", err)}
	}
	c.logger.Debug("backend download", zap.String("path", path), zap.Int64("bytes", n))
	return n, nil
}

// Ping checks that the backend answers at its root. Any response below 500
// counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, timeouts.Ping())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return &RequestError{Method: http.MethodGet, Path: "/", Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &RequestError{Method: http.MethodGet, Path: "/", Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode >= 500 {
		return &RequestError{Method: http.MethodGet, Path: "/", Status: resp.StatusCode}
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), nil)
	if err != nil {
		return nil, &RequestError{Method: method, Path: path, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// Report the context error instead of the wrapping *url.Error.
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, &RequestError{Method: method, Path: path, Err: err}
	}
	return resp, nil
}

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		return string(b[:maxErrorBody]) + "..."
	}
	return string(b)
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
