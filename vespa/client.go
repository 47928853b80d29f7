package vespa

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	// MetricsPath is the endpoint path serving the aggregated metrics document.
	MetricsPath = "/metrics/v2/values"

	// DefaultTimeout bounds a single metrics fetch when no timeout is configured.
	DefaultTimeout = 20 * time.Second
)

// ClientConfig holds the settings for a metrics client.
type ClientConfig struct {
	// Endpoint is the base URL of the Vespa node, e.g. https://my-app.vespa-cloud.com:443
	Endpoint string
	// Timeout bounds a single fetch including the response body read.
	Timeout time.Duration
	// CertFile and KeyFile hold the PEM client certificate pair for mutual TLS.
	// Leave both empty for endpoints that do not require client authentication.
	CertFile string
	KeyFile  string
}

// Client fetches metrics documents from a Vespa endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a metrics client for the given endpoint.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	transport := &http.Transport{
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	if cfg.CertFile != "" || cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		transport.TLSClientConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		endpoint: strings.TrimSuffix(cfg.Endpoint, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}, nil
}

// FetchMetrics retrieves and decodes the current metrics document.
// Transport failures are returned as *TransportError; an undecodable body is
// reported via ErrMalformedResponse.
func (c *Client) FetchMetrics(ctx context.Context) (*Document, error) {
	url := c.endpoint + MetricsPath

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{
			URL:     url,
			Timeout: isTimeout(err),
			Err:     err,
		}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Printf("[vespa-client] Warning: failed to close response body: %v", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{
			URL:        url,
			StatusCode: resp.StatusCode,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{
			URL:     url,
			Timeout: isTimeout(err),
			Err:     fmt.Errorf("failed to read response body: %w", err),
		}
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	return &doc, nil
}

// isTimeout reports whether an error was caused by an expired timeout or
// deadline rather than an ordinary connection failure.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
