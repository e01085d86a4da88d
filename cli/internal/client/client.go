// ABOUTME: HTTP client for the portal gateway API
// ABOUTME: Wraps gateway calls with error messages suited to CLI output

package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/edusphere/portal-gateway/models"
	"github.com/edusphere/portal-gateway/services"
)

// Client talks to the gateway's /api/v1 surface
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new API client with the given gateway base URL
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// BaseURL returns the gateway root this client targets
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Auth returns an auth client routed through the gateway. It satisfies
// session.Refresher.
func (c *Client) Auth() *services.AuthClient {
	return services.NewAuthClient(c.baseURL+"/api/v1", c.httpClient)
}

// Users returns a user service client that authenticates with token
func (c *Client) Users(token string) *services.UserClient {
	return services.NewUserClient(c.baseURL+"/api/v1", token, c.httpClient)
}

// Health calls the /api/v1/health endpoint
func (c *Client) Health(ctx context.Context) (*models.HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/health", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.HandleRequestError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp models.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error == "" {
			return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("gateway error: %s", errResp.Error)
	}

	var health models.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("invalid response from gateway: %w", err)
	}

	return &health, nil
}

// HandleRequestError converts transport and upstream errors to user-friendly messages
func (c *Client) HandleRequestError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("request canceled")
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("request timed out")
	}

	var upErr *services.UpstreamError
	if errors.As(err, &upErr) {
		if upErr.Message != "" {
			return fmt.Errorf("%s (status %d)", upErr.Message, upErr.StatusCode)
		}
		return fmt.Errorf("gateway returned status %d", upErr.StatusCode)
	}
	if errors.Is(err, services.ErrMalformedResponse) {
		return fmt.Errorf("invalid response from gateway: %w", err)
	}
	return fmt.Errorf("cannot connect to gateway at %s: %w", c.baseURL, err)
}
