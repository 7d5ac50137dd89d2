package adminserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rauhl/conductor/internal/logging"
)

// DefaultClientTimeout bounds a single admin API call from the CLI.
const DefaultClientTimeout = 10 * time.Second

// Client talks to a running daemon's admin API. Used by the stop and status
// subcommands.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient creates a client for the daemon listening on addr
// (e.g. "127.0.0.1:7727"). A non-positive timeout falls back to
// DefaultClientTimeout.
func NewClient(addr string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultClientTimeout
	}

	baseURL := strings.TrimSuffix(addr, "/")
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.GetLogger("adminserver.client"),
	}
}

// Status fetches a snapshot from the daemon. With detailed set the response
// includes recent lifecycle events.
func (c *Client) Status(ctx context.Context, detailed bool) (*StatusResponse, error) {
	url := c.baseURL + "/api/v1/status"
	if detailed {
		url += "?detailed=1"
	}

	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}

	var response StatusResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse status response: %w", err)
	}
	return &response, nil
}

// Shutdown asks the daemon to shut down. A zero timeout leaves the choice to
// the daemon's configured shutdown timeout.
func (c *Client) Shutdown(ctx context.Context, mode ShutdownMode, timeout time.Duration) (*ShutdownResponse, error) {
	payload, err := json.Marshal(shutdownPayload{
		Mode:           string(mode),
		TimeoutSeconds: int(timeout / time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode shutdown request: %w", err)
	}

	url := c.baseURL + "/api/v1/shutdown"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create shutdown request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var response ShutdownResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse shutdown response: %w", err)
	}
	return &response, nil
}

// Healthy probes the liveness endpoint.
func (c *Client) Healthy(ctx context.Context) error {
	_, err := c.get(ctx, c.baseURL+"/healthz")
	return err
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req)
}

// do executes the request and returns the body on 2xx. Error responses are
// decoded into the API error shape when possible.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach daemon at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	var apiErr ErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
		return nil, fmt.Errorf("%s: %s", apiErr.Error, apiErr.Message)
	}
	return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
}
