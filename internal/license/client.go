package license

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"stocksync/internal/config"
)

// NetworkError marks a transport-layer failure talking to the license
// API. Distinguished from definitive API rejections because only network
// errors engage the grace period.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("license API unreachable: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsNetworkError reports whether err is a transport-layer failure
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// APIRejectionError is a definitive non-2xx response from the license
// API, carrying the server's message and field errors.
type APIRejectionError struct {
	StatusCode int
	Message    string
	Errors     map[string][]string
}

func (e *APIRejectionError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("license API rejected the request (HTTP %d)", e.StatusCode)
}

// serverResponse is the wire format of the license API. Successful
// responses may nest the payload under "data".
type serverResponse struct {
	Valid       *bool           `json:"valid,omitempty"`
	Activated   *bool           `json:"activated,omitempty"`
	Status      string          `json:"status,omitempty"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty"`
	Product     string          `json:"product,omitempty"`
	Package     string          `json:"package,omitempty"`
	Activations *Activations    `json:"activations,omitempty"`
	Data        *serverResponse `json:"data,omitempty"`

	Message string              `json:"message,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

// CheckOutcome is a successful license API verdict
type CheckOutcome struct {
	Valid     bool
	Activated bool
	Data      *Data
}

// Client talks to the license verification service over JSON HTTPS
type Client struct {
	baseURL     string
	productSlug string
	domain      string
	http        *http.Client
	logger      *slog.Logger
}

// NewClient creates a license API client from configuration
func NewClient(cfg config.LicenseConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:     cfg.APIURL,
		productSlug: cfg.ProductSlug,
		domain:      cfg.Domain,
		http:        &http.Client{Timeout: cfg.Timeout},
		logger:      logger.With(slog.String("component", "license_client")),
	}
}

// Validate re-verifies a key and returns the full license details
func (c *Client) Validate(ctx context.Context, key string) (*CheckOutcome, error) {
	return c.post(ctx, "/licenses/validate", key)
}

// Activate activates a key for this domain
func (c *Client) Activate(ctx context.Context, key string) (*CheckOutcome, error) {
	return c.post(ctx, "/licenses/activate", key)
}

// Deactivate releases this domain's activation of a key
func (c *Client) Deactivate(ctx context.Context, key string) (*CheckOutcome, error) {
	return c.post(ctx, "/licenses/deactivate", key)
}

// Check performs a lightweight re-verification of a key
func (c *Client) Check(ctx context.Context, key string) (*CheckOutcome, error) {
	return c.post(ctx, "/licenses/check", key)
}

func (c *Client) post(ctx context.Context, endpoint, key string) (*CheckOutcome, error) {
	payload, err := json.Marshal(map[string]string{
		"license_key":  key,
		"product_slug": c.productSlug,
		"domain":       c.domain,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode license request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build license request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "license API request failed",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()))
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	// 204 No Content: successful deactivation
	if resp.StatusCode == http.StatusNoContent {
		return &CheckOutcome{Valid: true}, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	var decoded serverResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil, fmt.Errorf("failed to decode license response: %w", err)
		}
		return nil, &APIRejectionError{StatusCode: resp.StatusCode}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		payload := &decoded
		if decoded.Data != nil {
			payload = decoded.Data
		}
		return outcomeFrom(payload), nil
	}

	return nil, &APIRejectionError{
		StatusCode: resp.StatusCode,
		Message:    decoded.Message,
		Errors:     decoded.Errors,
	}
}

func outcomeFrom(resp *serverResponse) *CheckOutcome {
	outcome := &CheckOutcome{
		Data: &Data{
			Status:      resp.Status,
			ExpiresAt:   resp.ExpiresAt,
			Activations: resp.Activations,
			Product:     resp.Product,
			Package:     resp.Package,
		},
	}
	if resp.Valid != nil {
		outcome.Valid = *resp.Valid
	}
	if resp.Activated != nil {
		outcome.Activated = *resp.Activated
	}
	return outcome
}
