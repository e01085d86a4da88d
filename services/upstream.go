// ABOUTME: Shared HTTP transport for calls to upstream microservices
// ABOUTME: Applies timeout and TLS settings and an optional SSH+SOCKS5 tunnel

package services

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	proxy "github.com/cloudfoundry/socks5-proxy"

	"github.com/edusphere/portal-gateway/config"
)

// ErrMalformedResponse is returned when an upstream replies with a body
// that does not match the expected schema.
var ErrMalformedResponse = errors.New("malformed upstream response")

// UpstreamError is a non-2xx reply from an upstream service
type UpstreamError struct {
	Service    string
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s service returned status %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s service returned status %d: %s", e.Service, e.StatusCode, e.Message)
}

// NewUpstreamHTTPClient builds the client shared by every upstream call.
// A zero UpstreamTimeout leaves the client without a timeout.
func NewUpstreamHTTPClient(cfg *config.Config) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if cfg.UpstreamSkipSSLValidation {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	if cfg.UpstreamAllProxy != "" {
		dial, err := createSOCKS5DialContextFunc(cfg.UpstreamAllProxy)
		if err != nil {
			return nil, fmt.Errorf("UPSTREAM_ALL_PROXY: %w", err)
		}
		transport.Proxy = nil
		transport.DialContext = dial
	}

	return &http.Client{
		Timeout:   cfg.UpstreamTimeout,
		Transport: transport,
	}, nil
}

// createSOCKS5DialContextFunc creates a dial function for SSH+SOCKS5 proxy connections.
// Supports format: ssh+socks5://user@host:port?private-key=/path/to/key
// The SSH connection is opened lazily on first dial and reused afterwards.
func createSOCKS5DialContextFunc(allProxy string) (func(ctx context.Context, network, address string) (net.Conn, error), error) {
	allProxy = strings.TrimPrefix(allProxy, "ssh+")

	proxyURL, err := url.Parse(allProxy)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}
	if proxyURL.Scheme != "socks5" {
		return nil, fmt.Errorf("unsupported proxy scheme %q", proxyURL.Scheme)
	}

	username := ""
	if proxyURL.User != nil {
		username = proxyURL.User.Username()
	}

	keyPath := proxyURL.Query().Get("private-key")
	if keyPath == "" {
		return nil, errors.New("missing required 'private-key' query param")
	}

	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read SSH private key: %w", err)
	}

	socks5Proxy := proxy.NewSocks5Proxy(proxy.NewHostKey(), log.Default(), 1*time.Minute)

	var (
		dialer proxy.DialFunc
		mut    sync.Mutex
	)

	return func(ctx context.Context, network, address string) (net.Conn, error) {
		mut.Lock()
		if dialer == nil {
			d, err := socks5Proxy.Dialer(username, string(key), proxyURL.Host)
			if err != nil {
				mut.Unlock()
				return nil, fmt.Errorf("error creating SOCKS5 dialer: %w", err)
			}
			dialer = d
		}
		d := dialer
		mut.Unlock()

		return d(network, address)
	}, nil
}
