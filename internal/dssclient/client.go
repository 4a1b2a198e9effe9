// Package dssclient is an HTTP client for the DSS backend: model registry,
// execution submission, status polling and best run downloads.
package dssclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// Sentinel errors classifying backend call failures.
var (
	// ErrNetwork wraps transport failures (connection refused, reset, timeout).
	ErrNetwork = errors.New("dss: network error")
	// ErrParse wraps responses whose body is not the expected JSON.
	ErrParse = errors.New("dss: malformed response")
)

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("dss: %s %s: status %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("dss: %s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Options configure a Client.
type Options struct {
	// Timeout bounds each request. Zero disables the timeout.
	Timeout time.Duration
	// LogOutput receives the HTTP client's own diagnostics as JSON lines.
	// Nil discards them.
	LogOutput io.Writer
	// Debug dumps requests and responses through the client logger.
	Debug bool
	// Logger receives one debug line per backend call. Nil disables it.
	Logger *slog.Logger
	// HTTPClient overrides the underlying transport (tests).
	HTTPClient *http.Client
}

// Client talks to a single DSS backend.
type Client struct {
	http    *resty.Client
	baseURL string
	logger  *slog.Logger
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts Options) *Client {
	var rc *resty.Client
	if opts.HTTPClient != nil {
		rc = resty.NewWithClient(opts.HTTPClient)
	} else {
		rc = resty.New()
	}

	// resty's logger interface matches logrus; route it through a JSON
	// logrus entry so client diagnostics share the slog output format.
	rl := logrus.New()
	rl.SetFormatter(&logrus.JSONFormatter{})
	if opts.LogOutput != nil {
		rl.SetOutput(opts.LogOutput)
	} else {
		rl.SetOutput(io.Discard)
	}
	if opts.Debug {
		rl.SetLevel(logrus.DebugLevel)
	}

	rc.SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetLogger(logrus.NewEntry(rl).WithField("component", "dssclient")).
		SetDebug(opts.Debug).
		SetRetryCount(0)
	if opts.Timeout > 0 {
		rc.SetTimeout(opts.Timeout)
	}

	return &Client{http: rc, baseURL: baseURL, logger: opts.Logger}
}

// BaseURL returns the backend address this client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// request starts a request bound to ctx.
func (c *Client) request(ctx context.Context) *resty.Request {
	return c.http.R().SetContext(ctx)
}

// check classifies the outcome of a completed request.
func check(ctx context.Context, method, path string, resp *resty.Response, err error) error {
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s %s: %v", ErrNetwork, method, path, err)
	}
	if resp.IsError() || resp.StatusCode() >= http.StatusMultipleChoices {
		return &StatusError{
			Method: method,
			Path:   path,
			Code:   resp.StatusCode(),
			Body:   truncate(resp.String(), 256),
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// logRequest emits a debug line for a backend call when a logger is present.
func (c *Client) logRequest(method, path string, resp *resty.Response) {
	if c.logger == nil || resp == nil {
		return
	}
	c.logger.Debug("dss request",
		"method", method,
		"path", path,
		"status", resp.StatusCode(),
		"duration_ms", resp.Time().Milliseconds(),
	)
}
