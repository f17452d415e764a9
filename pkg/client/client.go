package client

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

	"github.com/aridsondez/queue-engine/internal/queue"
)

// Client talks to a queue server over its HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
}

// Message is a delivered message. Pass Receipt to Delete to acknowledge it.
type Message struct {
	Body    string `json:"body"`
	Receipt string `json:"receipt"`
}

// NewClient creates a new queue client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// WithHTTPClient swaps the underlying http.Client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.client = hc
	return c
}

// Push sends body to queue with the given priority. queueID may be a bare
// name or a full locator; only its trailing segment is sent.
func (c *Client) Push(ctx context.Context, queueID, body string, priority int) error {
	name, err := segment(queueID)
	if err != nil {
		return err
	}
	req := map[string]any{
		"body":     body,
		"priority": priority,
	}
	resp, err := c.post(ctx, fmt.Sprintf("/v1/queues/%s/messages", name), req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return statusError("push", resp)
	}
	return nil
}

// Pull returns the next visible message, or nil when the queue has none.
func (c *Client) Pull(ctx context.Context, queueID string) (*Message, error) {
	name, err := segment(queueID)
	if err != nil {
		return nil, err
	}
	resp, err := c.post(ctx, fmt.Sprintf("/v1/queues/%s:receive", name), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return nil, nil
	case http.StatusOK:
	default:
		return nil, statusError("pull", resp)
	}

	var msg Message
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Delete acknowledges the delivery identified by receipt.
func (c *Client) Delete(ctx context.Context, queueID, receipt string) error {
	name, err := segment(queueID)
	if err != nil {
		return err
	}
	path := fmt.Sprintf("/v1/queues/%s/messages/%s:ack", name, escape(receipt))
	resp, err := c.post(ctx, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError("delete", resp)
	}
	return nil
}

// Purge drops every message in queue.
func (c *Client) Purge(ctx context.Context, queueID string) error {
	name, err := segment(queueID)
	if err != nil {
		return err
	}
	resp, err := c.post(ctx, fmt.Sprintf("/v1/queues/%s:purge", name), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError("purge", resp)
	}
	return nil
}

// segment resolves queueID to its queue name and escapes it for a path.
func segment(queueID string) (string, error) {
	name, err := queue.NameFromLocator(queueID)
	if err != nil {
		return "", err
	}
	return escape(name), nil
}

// escape also encodes ':' so a name cannot run into the ":receive" style
// action suffixes.
func escape(s string) string {
	return strings.ReplaceAll(url.PathEscape(s), ":", "%3A")
}

func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	reqBody := []byte("{}")
	if body != nil {
		var err error
		if reqBody, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.client.Do(httpReq)
}

func statusError(op string, resp *http.Response) error {
	bodyBytes, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("%s failed: %s - %s", op, resp.Status, string(bytes.TrimSpace(bodyBytes)))
}
