// ABOUTME: Typed client for the user service
// ABOUTME: Syncs identity provider users into the platform's user records

package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/edusphere/portal-gateway/models"
)

// UserClient calls the user service with a service credential
type UserClient struct {
	baseURL      string
	serviceToken string
	client       *http.Client
}

// NewUserClient creates a client for the user service at baseURL
func NewUserClient(baseURL, serviceToken string, client *http.Client) *UserClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &UserClient{baseURL: baseURL, serviceToken: serviceToken, client: client}
}

// SyncUserRequest is the user service's upsert payload for externally
// managed identities
type SyncUserRequest struct {
	ExternalID string      `json:"externalId"`
	Email      string      `json:"email"`
	Name       string      `json:"name"`
	Role       models.Role `json:"role"`
	AvatarURL  string      `json:"avatarUrl,omitempty"`
}

// SyncUserRequestFrom maps an identity provider user onto the sync payload.
// Unknown roles fall back to student.
func SyncUserRequestFrom(u models.IdentityUser) SyncUserRequest {
	role, err := models.ParseRole(u.PublicMetadata.Role)
	if err != nil {
		role = models.RoleStudent
	}
	return SyncUserRequest{
		ExternalID: u.ID,
		Email:      u.PrimaryEmail(),
		Name:       u.DisplayName(),
		Role:       role,
		AvatarURL:  u.ImageURL,
	}
}

// CreateUser creates the platform user for an identity provider user
func (c *UserClient) CreateUser(ctx context.Context, u models.IdentityUser) (*models.User, error) {
	return c.sendUser(ctx, http.MethodPost, "/users", SyncUserRequestFrom(u))
}

// UpdateUser updates the platform user linked to an identity provider user
func (c *UserClient) UpdateUser(ctx context.Context, u models.IdentityUser) (*models.User, error) {
	return c.sendUser(ctx, http.MethodPut, "/users/external/"+url.PathEscape(u.ID), SyncUserRequestFrom(u))
}

// DeleteUser removes the platform user linked to externalID
func (c *UserClient) DeleteUser(ctx context.Context, externalID string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/users/external/"+url.PathEscape(externalID), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Already gone is fine
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return upstreamError("user", resp)
	}
	return nil
}

// GetUser fetches a platform user by id
func (c *UserClient) GetUser(ctx context.Context, id string) (*models.User, error) {
	resp, err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, upstreamError("user", resp)
	}
	return decodeUser(resp)
}

func (c *UserClient) sendUser(ctx context.Context, method, path string, payload SyncUserRequest) (*models.User, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal user: %w", err)
	}

	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, upstreamError("user", resp)
	}

	return decodeUser(resp)
}

// decodeUser reads a user record, requiring id and email
func decodeUser(resp *http.Response) (*models.User, error) {
	var user models.User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if user.ID == "" || user.Email == "" {
		return nil, fmt.Errorf("%w: user response missing id or email", ErrMalformedResponse)
	}
	return &user, nil
}

func (c *UserClient) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.serviceToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.serviceToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("user service request failed: %w", err)
	}
	return resp, nil
}

// upstreamError reads an error envelope from resp if there is one
func upstreamError(service string, resp *http.Response) error {
	var envelope models.ErrorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	msg := ""
	if json.Unmarshal(data, &envelope) == nil {
		msg = envelope.Error
	}
	return &UpstreamError{Service: service, StatusCode: resp.StatusCode, Message: msg}
}
