// ABOUTME: Tests for the portal gateway API client
// ABOUTME: Uses httptest to mock gateway responses

package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/edusphere/portal-gateway/models"
	"github.com/edusphere/portal-gateway/services"
)

func TestHealth_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/health" {
			t.Errorf("expected path /api/v1/health, got %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(models.HealthResponse{
			Status:    "ok",
			Upstreams: map[string]string{"auth": "http://auth:8001"},
			Routes:    31,
		})
	}))
	defer server.Close()

	c := New(server.URL + "/")
	resp, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected status ok, got %s", resp.Status)
	}
	if resp.Routes != 31 {
		t.Errorf("expected 31 routes, got %d", resp.Routes)
	}
}

func TestHealth_ErrorEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(models.ErrorResponse{Error: "draining"})
	}))
	defer server.Close()

	_, err := New(server.URL).Health(context.Background())
	if err == nil || !strings.Contains(err.Error(), "draining") {
		t.Errorf("expected gateway error message, got %v", err)
	}
}

func TestHealth_NonJSONError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer server.Close()

	_, err := New(server.URL).Health(context.Background())
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Errorf("expected status code in error, got %v", err)
	}
}

func TestHealth_ConnectionRefused(t *testing.T) {
	c := New("http://127.0.0.1:1")
	_, err := c.Health(context.Background())
	if err == nil {
		t.Fatal("expected error for unreachable gateway")
	}
	if !strings.Contains(err.Error(), "cannot connect") {
		t.Errorf("expected connection error, got %v", err)
	}
}

func TestHealth_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := New(server.URL).Health(ctx)
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Errorf("expected timeout error, got %v", err)
	}
}

func TestAuth_RoutesThroughGateway(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/auth/login" {
			t.Errorf("expected path /api/v1/auth/login, got %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(models.LoginResponse{
			Token: "tok",
			User:  &models.User{ID: "u-1", Email: "a@example.com"},
		})
	}))
	defer server.Close()

	resp, err := New(server.URL).Auth().Login(context.Background(), "a@example.com", "pw")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Token != "tok" {
		t.Errorf("expected token tok, got %s", resp.Token)
	}
}

func TestHandleRequestError(t *testing.T) {
	c := New("http://gateway.test")

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"upstream with message", &services.UpstreamError{Service: "auth", StatusCode: 401, Message: "Invalid credentials"}, "Invalid credentials (status 401)"},
		{"upstream without message", &services.UpstreamError{Service: "auth", StatusCode: 500}, "gateway returned status 500"},
		{"malformed", services.ErrMalformedResponse, "invalid response from gateway"},
		{"transport", errors.New("dial tcp: refused"), "cannot connect to gateway at http://gateway.test"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := c.HandleRequestError(context.Background(), tc.err)
			if !strings.Contains(got.Error(), tc.want) {
				t.Errorf("HandleRequestError() = %q, want it to contain %q", got, tc.want)
			}
		})
	}
}
