// Package session is the authenticated HTTP session shared by every call of a run.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Common errors.
var (
	ErrUnauthorized = errors.New("session: unauthorized")
	ErrForbidden    = errors.New("session: access forbidden")
	ErrNotFound     = errors.New("session: resource not found")
)

// Options configures the session.
type Options struct {
	// Username and Token are sent as basic auth on every request.
	Username string
	Token    string

	// Timeout bounds buffered requests (start, progress, task id).
	// Streams are bounded by the caller's context only.
	// Default: 60s
	Timeout time.Duration

	// MaxBodyBytes caps how much of a buffered response is read.
	// Default: 1 MiB
	MaxBodyBytes int64
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		Timeout:      60 * time.Second,
		MaxBodyBytes: 1 << 20,
	}
}

// Response is a fully read, small API response.
type Response struct {
	StatusCode int
	Body       string
}

// Session carries credentials and JSON headers across requests.
type Session struct {
	client *http.Client
	opts   Options
}

// New creates a new Session with the given options.
func New(opts Options) *Session {
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = def.MaxBodyBytes
	}
	return &Session{
		client: &http.Client{},
		opts:   opts,
	}
}

// Get performs a GET and reads the body.
func (s *Session) Get(ctx context.Context, url string) (*Response, error) {
	return s.do(ctx, http.MethodGet, url, nil)
}

// Post sends body as JSON and reads the response body.
func (s *Session) Post(ctx context.Context, url string, body []byte) (*Response, error) {
	return s.do(ctx, http.MethodPost, url, body)
}

// Stream performs a GET and hands back the open response. The caller closes the body.
// Non-2xx statuses are returned as errors with the body already closed.
func (s *Session) Stream(ctx context.Context, url string) (*http.Response, error) {
	req, err := s.newRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	if err := checkStatusCode(resp.StatusCode); err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	return resp, nil
}

func (s *Session) do(ctx context.Context, method, url string, body []byte) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := s.newRequest(ctx, method, url, r)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.opts.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", method, url, err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       string(data),
	}, nil
}

func (s *Session) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(s.opts.Username, s.opts.Token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// checkStatusCode returns an appropriate error for non-success status codes.
func checkStatusCode(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusForbidden:
		return ErrForbidden
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	default:
		return fmt.Errorf("unexpected status code: %d", code)
	}
}
