package jenkins

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/obsidianstack/jenkins-exporter/exporter/internal/config"
)

const (
	apiSuffix     = "/api/json"
	versionHeader = "X-Jenkins"
)

// ErrLockTimeout is returned when the shared HTTP client could not be
// acquired within the configured lock timeout.
var ErrLockTimeout = errors.New("unable to get lock on http client")

// StatusError reports a response whose status code was not 200.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// DecodeError reports a 200 response whose body was not the expected JSON.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decode json: " + e.Err.Error() }

func (e *DecodeError) Unwrap() error { return e.Err }

// Response describes a successful API call. The decoded payload is written
// into the value passed to Request.
type Response struct {
	// Version is the Jenkins version from the X-Jenkins header, or "" if absent.
	Version string
}

// Client issues authenticated GET requests against the Jenkins JSON API.
//
// All calls made through one Client are serialized: a weight-1 semaphore is
// held for the whole round trip including reading the body. A caller that
// cannot acquire it within the lock timeout gets a failed result instead of
// queueing indefinitely.
type Client struct {
	baseURL     string
	http        *http.Client
	sem         *semaphore.Weighted
	lockTimeout time.Duration
}

// New returns a Client for the Jenkins instance described by cfg.
// cfg.URL must already be validated and have no trailing slash.
func New(cfg config.JenkinsConfig) *Client {
	return &Client{
		baseURL:     cfg.URL,
		http:        buildHTTPClient(cfg),
		sem:         semaphore.NewWeighted(1),
		lockTimeout: cfg.LockTimeout,
	}
}

// basicAuthRoundTripper adds HTTP basic auth to every outgoing request.
type basicAuthRoundTripper struct {
	base     http.RoundTripper
	username string
	password string
}

func (t *basicAuthRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.username, t.password)
	return t.base.RoundTrip(req)
}

// buildHTTPClient constructs the http.Client for the configured TLS and
// credentials. Requests are bounded by cfg.RequestTimeout.
func buildHTTPClient(cfg config.JenkinsConfig) *http.Client {
	var transport http.RoundTripper = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
		},
	}
	if cfg.Username != "" {
		transport = &basicAuthRoundTripper{
			base:     transport,
			username: cfg.Username,
			password: cfg.Password,
		}
	}
	return &http.Client{
		Transport: transport,
		Timeout:   cfg.RequestTimeout,
	}
}

// URL returns the API URL for path: base URL + path + "/api/json", followed
// by the encoded query when params encode to a non-empty string. Spaces in
// values are encoded as "+".
func (c *Client) URL(path string, params url.Values) string {
	u := c.baseURL + path + apiSuffix
	if q := params.Encode(); q != "" {
		u += "?" + q
	}
	return u
}

// Request fetches path from the JSON API and decodes the body into out.
// out may be nil, in which case the body is only checked to be valid JSON.
//
// Every failure (lock timeout, transport error, non-200 status, malformed
// JSON) is logged and reported as ok == false. There are no retries.
func (c *Client) Request(ctx context.Context, path string, params url.Values, out any) (*Response, bool) {
	u := c.URL(path, params)
	slog.DebugContext(ctx, "jenkins: fetching metrics", "url", u)

	resp, err := c.get(ctx, u, out)
	if err != nil {
		var decodeErr *DecodeError
		var statusErr *StatusError
		switch {
		case errors.Is(err, ErrLockTimeout):
			slog.DebugContext(ctx, "jenkins: unable to get lock on http client", "url", u, "err", err)
		case errors.As(err, &decodeErr):
			slog.WarnContext(ctx, "jenkins: unable to decode metrics", "url", u, "err", err)
		case errors.As(err, &statusErr):
			slog.DebugContext(ctx, "jenkins: unable to fetch metrics",
				"url", u, "status", statusErr.Code)
		default:
			slog.DebugContext(ctx, "jenkins: unable to fetch metrics", "url", u, "err", err)
		}
		return nil, false
	}
	return resp, true
}

// get performs one locked round trip.
func (c *Client) get(ctx context.Context, u string, out any) (*Response, error) {
	lockCtx, cancel := context.WithTimeout(ctx, c.lockTimeout)
	defer cancel()
	if err := c.sem.Acquire(lockCtx, 1); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLockTimeout, err)
	}
	defer c.sem.Release(1)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil, &StatusError{Code: res.StatusCode}
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if out == nil {
		if !json.Valid(body) {
			return nil, &DecodeError{Err: errors.New("invalid json")}
		}
	} else if err := json.Unmarshal(body, out); err != nil {
		return nil, &DecodeError{Err: err}
	}

	return &Response{Version: res.Header.Get(versionHeader)}, nil
}
