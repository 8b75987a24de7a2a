// Package authclient forwards credential operations to the identity service.
package authclient

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

	"github.com/rs/zerolog"

	"github.com/ekrsw/microservice/internal/apperr"
	"github.com/ekrsw/microservice/internal/config"
)

const maxBodyBytes = 1 << 20

// UpstreamError is a 4xx answer from the identity service, kept with its
// status and detail.
type UpstreamError struct {
	Status int
	Detail string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("identity service answered %d: %s", e.Status, e.Detail)
}

// Unwrap exposes the equivalent local error so callers can match kinds.
func (e *UpstreamError) Unwrap() error {
	return apperr.FromStatus(e.Status, e.Detail)
}

// Response is a successful upstream answer passed through unchanged.
type Response struct {
	Status int
	Body   []byte
}

type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

func New(cfg config.IdentityConfig, log zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return NewWithHTTPClient(cfg.BaseURL, &http.Client{Timeout: timeout}, log)
}

func NewWithHTTPClient(baseURL string, httpClient *http.Client, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		log:     log,
	}
}

func (c *Client) Login(ctx context.Context, username, password string) (Response, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)
	return c.post(ctx, "/auth/login", "application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()), "authentication failed")
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (Response, error) {
	return c.postToken(ctx, "/auth/refresh", refreshToken, "token refresh failed")
}

func (c *Client) Logout(ctx context.Context, refreshToken string) (Response, error) {
	return c.postToken(ctx, "/auth/logout", refreshToken, "logout failed")
}

func (c *Client) postToken(ctx context.Context, path, refreshToken, fallback string) (Response, error) {
	body, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return Response{}, err
	}
	return c.post(ctx, path, "application/json", bytes.NewReader(body), fallback)
}

// post issues one request; it never retries, since a repeated refresh would
// rotate the token twice.
func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader, fallback string) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error().Err(err).Str("path", path).Msg("identity service unreachable")
		return Response{}, apperr.ErrServiceUnavailable.WithMessage("identity service unavailable").Wrap(err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.log.Error().Err(err).Str("path", path).Msg("identity service response unreadable")
		return Response{}, apperr.ErrServiceUnavailable.WithMessage("identity service unavailable").Wrap(err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return Response{Status: resp.StatusCode, Body: payload}, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		detail := extractDetail(payload, fallback)
		c.log.Warn().Int("status", resp.StatusCode).Str("path", path).Str("detail", detail).Msg("identity service rejected request")
		return Response{}, &UpstreamError{Status: resp.StatusCode, Detail: detail}
	default:
		c.log.Error().Int("status", resp.StatusCode).Str("path", path).Msg("identity service failed")
		return Response{}, apperr.ErrServiceUnavailable.WithMessage("identity service unavailable")
	}
}

// extractDetail reads {"detail": "..."}; non-string details fall back.
func extractDetail(payload []byte, fallback string) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(payload, &body); err != nil || len(body.Detail) == 0 {
		return fallback
	}
	var detail string
	if err := json.Unmarshal(body.Detail, &detail); err != nil || detail == "" {
		return fallback
	}
	return detail
}
