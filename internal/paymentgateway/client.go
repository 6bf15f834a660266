package paymentgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gatewaytypes "github.com/frahmantamala/payapp/internal/core/datamodel/paymentgateway"
)

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the hosted checkout API.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(config Config, logger *slog.Logger) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		apiKey:     config.APIKey,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *Client) CreateCheckoutSession(ctx context.Context, req *gatewaytypes.CheckoutRequest) (*gatewaytypes.CheckoutSession, error) {
	if err := req.Validate(); err != nil {
		c.logger.Error("checkout request validation failed", "error", err)
		return nil, fmt.Errorf("validation error: %w", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkout request: %w", err)
	}

	c.logger.Info("creating checkout session",
		"client_reference_id", req.ClientReference,
		"amount", req.Amount,
		"currency", req.Currency)

	var session gatewaytypes.CheckoutSession
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", body, &session); err != nil {
		return nil, err
	}

	c.logger.Info("checkout session created",
		"session_id", session.ID,
		"client_reference_id", session.ClientReference)
	return &session, nil
}

func (c *Client) GetCheckoutSession(ctx context.Context, id string) (*gatewaytypes.CheckoutSession, error) {
	var session gatewaytypes.CheckoutSession
	if err := c.do(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(id), nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
