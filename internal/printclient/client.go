// Package printclient is the controller's HTTP client for the print server.
package printclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/orrn/diaryprint/internal/auth"
	"github.com/orrn/diaryprint/internal/core"
)

var ErrRejected = errors.New("print server rejected job")

type Options struct {
	DispatchTimeout time.Duration
	StatusTimeout   time.Duration
	Issuer          *auth.Issuer
	HTTPClient      *http.Client
}

type Client struct {
	baseURL         string
	httpClient      *http.Client
	issuer          *auth.Issuer
	dispatchTimeout time.Duration
	statusTimeout   time.Duration
}

func New(baseURL string, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = 30 * time.Second
	}
	if opts.StatusTimeout <= 0 {
		opts.StatusTimeout = 5 * time.Second
	}
	return &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		httpClient:      httpClient,
		issuer:          opts.Issuer,
		dispatchTimeout: opts.DispatchTimeout,
		statusTimeout:   opts.StatusTimeout,
	}
}

// Submit hands a job to the print server. Network failures and timeouts
// wrap core.ErrUpstreamUnavailable; a refusal wraps ErrRejected.
func (c *Client) Submit(ctx context.Context, payload core.PrintPayload) (*core.SubmitResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.dispatchTimeout)
	defer cancel()

	var resp core.SubmitResponse
	code, err := c.do(ctx, http.MethodPost, "/api/print", payload, &resp)
	if err != nil {
		return nil, err
	}
	if code >= 300 || !resp.Success {
		reason := resp.Message
		if reason == "" {
			reason = resp.Error
		}
		if reason == "" {
			reason = http.StatusText(code)
		}
		return &resp, fmt.Errorf("%w: %s (HTTP %d)", ErrRejected, reason, code)
	}
	return &resp, nil
}

func (c *Client) PrinterStatus(ctx context.Context) (*core.ServerStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.statusTimeout)
	defer cancel()

	var status core.ServerStatus
	code, err := c.do(ctx, http.MethodGet, "/api/printer/status", nil, &status)
	if err != nil {
		return nil, err
	}
	if code >= 300 {
		return nil, fmt.Errorf("%w: printer status returned HTTP %d", core.ErrUpstreamUnavailable, code)
	}
	return &status, nil
}

func (c *Client) Queue(ctx context.Context) (*core.QueueSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.statusTimeout)
	defer cancel()

	var snap core.QueueSnapshot
	code, err := c.do(ctx, http.MethodGet, "/api/queue", nil, &snap)
	if err != nil {
		return nil, err
	}
	if code >= 300 {
		return nil, fmt.Errorf("%w: queue returned HTTP %d", core.ErrUpstreamUnavailable, code)
	}
	return &snap, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) (int, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.issuer.Authorize(req); err != nil {
		return 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", core.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%w: read response: %v", core.ErrUpstreamUnavailable, err)
	}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil && resp.StatusCode < 300 {
			return resp.StatusCode, fmt.Errorf("%w: decode response: %v", core.ErrUpstreamUnavailable, err)
		}
	}
	return resp.StatusCode, nil
}
