package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPChannel implements Channel against a downstream store exposing a
// name-keyed record collection over HTTP:
//
//	GET    <base>          -> {"<name>": <payload>, ...}
//	PUT    <base>/<name>   <- payload
//	DELETE <base>/<name>
type HTTPChannel struct {
	base   string
	client *http.Client
}

// NewHTTPChannel creates a channel for the store at baseURL.
func NewHTTPChannel(baseURL string) *HTTPChannel {
	return &HTTPChannel{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPChannel) recordURL(name string) string {
	return c.base + "/" + url.PathEscape(name)
}

// Current implements Channel.
func (c *HTTPChannel) Current(ctx context.Context) (map[string]json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChannelNotJoined, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// Store reachable but holds nothing yet.
		return map[string]json.RawMessage{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: unexpected status %s", c.base, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	current := make(map[string]json.RawMessage)
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &current); err != nil {
			return nil, fmt.Errorf("GET %s: undecodable body: %w", c.base, err)
		}
	}
	return current, nil
}

// Put implements Channel.
func (c *HTTPChannel) Put(ctx context.Context, name string, payload json.RawMessage) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.recordURL(name), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("PUT %s: unexpected status %s", c.recordURL(name), resp.Status)
	}
	return nil
}

// Delete implements Channel.
func (c *HTTPChannel) Delete(ctx context.Context, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.recordURL(name), nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("DELETE %s: unexpected status %s", c.recordURL(name), resp.Status)
	}
	return nil
}
