// Package client implements REST clients for the Extraction and Reports APIs.
package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultTimeout = 30 * time.Second

// TokenProvider returns the bearer credential for one request.
// Clients call it before every request and never cache the result.
type TokenProvider func(ctx context.Context) (string, error)

// StaticToken returns a TokenProvider that always yields token.
func StaticToken(token string) TokenProvider {
	return func(context.Context) (string, error) {
		return token, nil
	}
}

// Config holds connection settings shared by the API clients.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Token   TokenProvider
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// StatusCode returns the HTTP status carried by err, or 0 when err did not
// come from an API response.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

type errorResponse struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func newRestyClient(cfg *Config) *resty.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := resty.New()
	c.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	c.SetTimeout(timeout)
	c.SetHeader("Accept", "application/json")
	c.SetHeader("Content-Type", "application/json")
	return c
}

// newRequest builds an authorized request; the token provider is consulted
// on every call.
func newRequest(ctx context.Context, c *resty.Client, token TokenProvider) (*resty.Request, error) {
	req := c.R().SetContext(ctx).SetError(&errorResponse{})
	if token == nil {
		return req, nil
	}

	tok, err := token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}
	if tok != "" {
		req.SetAuthToken(tok)
	}
	return req, nil
}

// checkResponse converts a non-2xx response into an *APIError.
func checkResponse(resp *resty.Response) error {
	if !resp.IsError() && resp.StatusCode() >= 200 && resp.StatusCode() < 300 {
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode()}
	if body, ok := resp.Error().(*errorResponse); ok && body.Error != nil {
		apiErr.Code = body.Error.Code
		apiErr.Message = body.Error.Message
	} else if len(resp.Body()) > 0 {
		apiErr.Message = string(resp.Body())
	}
	return apiErr
}
