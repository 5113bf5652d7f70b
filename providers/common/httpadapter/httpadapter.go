// Package httpadapter is the shared HTTP plumbing for provider adapters:
// API-key injection, timeouts, and normalization of transport and status
// failures into the provider outcome taxonomy.
package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/tiger/realtime-translator/providers/contracts"
)

const maxErrorBodySample = 2048

// Config configures one provider endpoint.
type Config struct {
	Endpoint         string
	Method           string
	APIKey           string
	APIKeyHeader     string
	APIKeyPrefix     string
	QueryAPIKeyParam string
	StaticHeaders    map[string]string
	Timeout          time.Duration
	HTTPClient       *http.Client
}

// Client executes requests against one provider endpoint.
type Client struct {
	cfg  Config
	http *http.Client
}

// New constructs a client. The per-request timeout stacks with whatever
// deadline the caller's context already carries; the shorter one wins.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{cfg: cfg, http: httpClient}, nil
}

// DoJSON posts a JSON body and returns the raw response body. Non-2xx
// statuses and transport errors come back as *contracts.ProviderError.
func (c *Client) DoJSON(ctx context.Context, body any) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}
	return c.Do(ctx, "application/json", bytes.NewReader(raw))
}

// Do sends one request and reads the full response body.
func (c *Client) Do(ctx context.Context, contentType string, body io.Reader) ([]byte, error) {
	resp, err := c.roundTrip(ctx, contentType, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NormalizeNetworkError(err)
	}
	return payload, nil
}

// Stream sends one request and hands the open response body to the caller for
// incremental consumption. The caller owns closing it.
func (c *Client) Stream(ctx context.Context, body any) (io.ReadCloser, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}
	resp, err := c.roundTrip(ctx, "application/json", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) roundTrip(ctx context.Context, contentType string, body io.Reader) (*http.Response, error) {
	endpoint := c.cfg.Endpoint
	if c.cfg.QueryAPIKeyParam != "" && c.cfg.APIKey != "" {
		var err error
		endpoint, err = withQuery(endpoint, c.cfg.QueryAPIKeyParam, c.cfg.APIKey)
		if err != nil {
			return nil, err
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	req, err := http.NewRequestWithContext(reqCtx, c.cfg.Method, endpoint, body)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	if c.cfg.APIKeyHeader != "" && c.cfg.APIKey != "" {
		req.Header.Set(c.cfg.APIKeyHeader, c.cfg.APIKeyPrefix+c.cfg.APIKey)
	}
	for key, value := range c.cfg.StaticHeaders {
		req.Header.Set(key, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, NormalizeNetworkError(err)
	}
	// The body is sampled only on the error branch; a success body must reach
	// the caller untouched.
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		provErr := NormalizeStatus(resp.StatusCode, sampleBody(resp.Body))
		resp.Body.Close()
		cancel()
		return nil, provErr
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelOnClose ties the request timeout context to the response body
// lifetime so streamed reads stay under the deadline.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func withQuery(rawEndpoint string, key string, value string) (string, error) {
	u, err := url.Parse(rawEndpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// NormalizeNetworkError maps transport-level errors to normalized provider
// errors.
func NormalizeNetworkError(err error) error {
	if errors.Is(err, context.Canceled) {
		return &contracts.ProviderError{Class: contracts.OutcomeCancelled, Reason: "provider_cancelled", Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &contracts.ProviderError{Class: contracts.OutcomeTimeout, Reason: "provider_timeout", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &contracts.ProviderError{Class: contracts.OutcomeTimeout, Reason: "provider_timeout", Err: err}
	}
	return &contracts.ProviderError{Class: contracts.OutcomeInfrastructureFailure, Reason: "provider_transport_error", Err: err}
}

// NormalizeStatus maps a non-2xx HTTP status to a normalized provider error.
// 2xx returns nil.
func NormalizeStatus(status int, bodySample string) error {
	if status >= 200 && status <= 299 {
		return nil
	}
	err := fmt.Errorf("status %d: %s", status, bodySample)
	switch {
	case status == http.StatusTooManyRequests:
		return &contracts.ProviderError{Class: contracts.OutcomeOverload, Reason: "provider_overload", Err: err}
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return &contracts.ProviderError{Class: contracts.OutcomeTimeout, Reason: "provider_timeout", Err: err}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &contracts.ProviderError{Class: contracts.OutcomeBlocked, Reason: "provider_auth_or_policy_block", Err: err}
	case status >= 400 && status <= 499:
		return &contracts.ProviderError{Class: contracts.OutcomeBlocked, Reason: "provider_client_error", Err: err}
	default:
		return &contracts.ProviderError{Class: contracts.OutcomeInfrastructureFailure, Reason: "provider_server_error", Err: err}
	}
}

func sampleBody(r io.Reader) string {
	sample, err := io.ReadAll(io.LimitReader(r, maxErrorBodySample))
	if err != nil {
		return fmt.Sprintf("response_read_error=%v", err)
	}
	return string(sample)
}
