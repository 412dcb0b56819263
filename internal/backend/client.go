// Package backend provides the client for the analysis backend's
// function gateway, the single RPC surface every source fetch goes
// through.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxResponseBytes caps how much of a response body is read. Anything
// past it is treated as a malformed response, not streamed in.
const maxResponseBytes = 4 << 20

// CallError describes one failed function invocation. Callers map it to
// the source's unavailable status; the client never retries on its own,
// a failed source stays failed until the user refreshes it.
type CallError struct {
	Function   string
	StatusCode int
	Message    string
}

func (e *CallError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("backend function %q failed (status %d): %s", e.Function, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend function %q failed: %s", e.Function, e.Message)
}

// Client invokes named functions on the analysis backend.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a backend client. baseURL is the gateway root without a
// trailing slash.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Invoke calls one backend function with a JSON payload and returns the
// raw data field of its response envelope. Transport failures, non-2xx
// statuses, envelope errors, and null data all surface as *CallError.
func (c *Client) Invoke(ctx context.Context, function string, payload any) (json.RawMessage, error) {
	if function == "" {
		return nil, &CallError{Function: function, Message: "function name must not be empty"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &CallError{Function: function, Message: fmt.Sprintf("failed to encode payload: %v", err)}
	}

	url := fmt.Sprintf("%s/functions/v1/%s", c.baseURL, function)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &CallError{Function: function, Message: fmt.Sprintf("failed to build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &CallError{Function: function, Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &CallError{Function: function, StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read response: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &CallError{Function: function, StatusCode: resp.StatusCode, Message: truncate(string(raw), 200)}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &CallError{Function: function, StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to decode envelope: %v", err)}
	}
	if env.Error != nil {
		return nil, &CallError{Function: function, StatusCode: resp.StatusCode, Message: env.Error.Message}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, &CallError{Function: function, StatusCode: resp.StatusCode, Message: "response envelope carried no data"}
	}

	return env.Data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
