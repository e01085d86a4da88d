// ABOUTME: Typed client for the auth service login and token refresh endpoints
// ABOUTME: Validates response schemas and implements session.Refresher

package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/edusphere/portal-gateway/models"
)

// AuthClient calls the auth service, directly or through the gateway.
// baseURL is the auth service root, or the gateway's "/api/v1" root.
type AuthClient struct {
	baseURL string
	client  *http.Client
}

// NewAuthClient creates a client for the auth endpoints under baseURL
func NewAuthClient(baseURL string, client *http.Client) *AuthClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &AuthClient{baseURL: baseURL, client: client}
}

// Login exchanges credentials for a token and user record
func (c *AuthClient) Login(ctx context.Context, email, password string) (*models.LoginResponse, error) {
	var out models.LoginResponse
	if err := c.post(ctx, "/auth/login", "", models.LoginRequest{Email: email, Password: password}, &out); err != nil {
		return nil, err
	}
	if out.Token == "" || out.User == nil || out.User.ID == "" {
		return nil, fmt.Errorf("%w: login response missing token or user", ErrMalformedResponse)
	}
	if out.User.Role == "" {
		out.User.Role = models.RoleStudent
	}
	return &out, nil
}

// Refresh exchanges token for a new one. It satisfies session.Refresher.
func (c *AuthClient) Refresh(ctx context.Context, userID, token string) (string, error) {
	var out models.RefreshResponse
	if err := c.post(ctx, "/auth/refresh-token", token, models.RefreshRequest{UserID: userID}, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", fmt.Errorf("%w: refresh response missing token", ErrMalformedResponse)
	}
	return out.Token, nil
}

func (c *AuthClient) post(ctx context.Context, path, bearer string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("auth service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return upstreamError("auth", resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
