// Package client calls a running judge service over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lessonjudge/internal/judge/model"
	lessonmodel "lessonjudge/internal/lesson/model"
	appErr "lessonjudge/pkg/errors"
)

const defaultTimeout = 30 * time.Second

// Client is a judge API client. It satisfies the batch reporter's Judge.
type Client struct {
	baseURL string
	http    *http.Client
	userID  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithUserID sends X-User-Id on every request.
func WithUserID(id string) Option {
	return func(c *Client) { c.userID = id }
}

// New creates a client for the service at baseURL.
func New(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, appErr.Newf(appErr.InvalidParams, "invalid judge url %q", baseURL)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type envelope struct {
	Code    appErr.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Data    json.RawMessage  `json:"data"`
	TraceID string           `json:"trace_id"`
}

// Run submits code and its test cases.
func (c *Client) Run(ctx context.Context, req model.RunRequest) (model.RunResponse, error) {
	var out model.RunResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/judge/run", req, &out)
	return out, err
}

// Validate statically checks source.
func (c *Client) Validate(ctx context.Context, source, language string) (lessonmodel.ValidationResult, error) {
	var out lessonmodel.ValidationResult
	err := c.do(ctx, http.MethodPost, "/api/v1/judge/validate", model.ValidateRequest{Language: language, SourceCode: source}, &out)
	return out, err
}

// Status fetches the stored status of a run.
func (c *Client) Status(ctx context.Context, runID string) (model.JudgeStatusResponse, error) {
	var out model.JudgeStatusResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/judge/status/"+url.PathEscape(runID), nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return appErr.Wrapf(err, appErr.InvalidParams, "encode request")
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return appErr.Wrapf(err, appErr.InvalidParams, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.userID != "" {
		req.Header.Set("X-User-Id", c.userID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return appErr.Wrap(ctx.Err(), appErr.Timeout)
		}
		return appErr.Wrapf(err, appErr.ServiceUnavailable, "judge request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return appErr.Wrapf(err, appErr.ServiceUnavailable, "read judge response")
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return appErr.Newf(appErr.ServiceUnavailable, "unexpected judge response (HTTP %d)", resp.StatusCode)
	}
	if env.Code != appErr.Success {
		e := appErr.New(env.Code).WithMessage(env.Message)
		if env.TraceID != "" {
			e = e.WithDetail("trace_id", env.TraceID)
		}
		return e
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return appErr.Wrapf(err, appErr.InternalServerError, "decode judge response")
		}
	}
	return nil
}

func (c *Client) String() string {
	return fmt.Sprintf("judge(%s)", c.baseURL)
}
