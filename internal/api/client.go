// ABOUTME: HTTP client for the chat backend's conversation and send endpoints
// ABOUTME: Issues JSON requests, opens the reply event stream, and classifies failures

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client communicates with the chat backend's HTTP API.
// It is safe for concurrent use.
type Client struct {
	baseURL        string
	client         *http.Client
	requestTimeout time.Duration
	logger         *slog.Logger
}

// NewClient creates a backend client. requestTimeout bounds every call except
// the reply stream; zero disables it. Pass nil logger for default.
func NewClient(baseURL string, requestTimeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		client:         &http.Client{},
		requestTimeout: requestTimeout,
		logger:         logger.With("component", "api"),
	}
}

// BaseURL returns the backend root the client was configured with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SendChat posts a user message. A nil error means the backend accepted the
// message and a reply is waiting on the stream endpoint.
func (c *Client) SendChat(ctx context.Context, req ChatRequest) (*ChatAccepted, error) {
	key := req.IdempotencyKey
	if key == "" {
		key = uuid.New().String()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ChatPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(IdempotencyHeader, key)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.handleErrorResponse("send message", resp)
	}

	accepted := &ChatAccepted{Status: StatusAccepted}
	// An empty or non-JSON 2xx body still counts as accepted.
	if err := json.NewDecoder(resp.Body).Decode(accepted); err != nil && err != io.EOF {
		c.logger.Debug("ignoring unparseable send response", "error", err)
	}

	c.logger.Debug("message accepted",
		"status", accepted.Status,
		"idempotency_key", key,
		"new_conversation", req.ConversationID == nil,
	)
	return accepted, nil
}

// OpenStream attaches to the reply event stream. The caller owns the returned
// body and must close it. No request timeout applies here; the stream lives
// until the backend ends it or ctx is canceled.
func (c *Client) OpenStream(ctx context.Context) (io.ReadCloser, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+ChatPath+"?"+StreamQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", EventStreamMIME)
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("opening stream: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, c.handleErrorResponse("open stream", resp)
	}

	return resp.Body, nil
}

// ListConversations returns the backend's conversation summaries in backend order.
func (c *Client) ListConversations(ctx context.Context) ([]Summary, error) {
	var summaries []Summary
	if err := c.getJSON(ctx, "list conversations", ConversationsPath, &summaries); err != nil {
		return nil, err
	}
	if summaries == nil {
		summaries = []Summary{}
	}
	return summaries, nil
}

// GetConversation fetches one conversation with its full history.
// Unknown ids yield an error matching ErrNotFound.
func (c *Client) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var conv Conversation
	if err := c.getJSON(ctx, "get conversation", conversationPath(id), &conv); err != nil {
		return nil, err
	}
	if conv.ID == "" {
		conv.ID = id
	}
	return &conv, nil
}

// DeleteConversation removes one conversation on the backend.
// Unknown ids yield an error matching ErrNotFound.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	return c.do(ctx, "delete conversation", http.MethodDelete, conversationPath(id))
}

// ClearConversations removes every conversation on the backend.
func (c *Client) ClearConversations(ctx context.Context) error {
	return c.do(ctx, "clear conversations", http.MethodPost, ClearPath)
}

func conversationPath(id string) string {
	return ConversationsPath + "/" + url.PathEscape(id)
}

func (c *Client) getJSON(ctx context.Context, op, path string, out any) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.handleErrorResponse(op, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: parsing response: %w", op, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.handleErrorResponse(op, resp)
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// handleErrorResponse extracts the error message from a non-2xx response.
func (c *Client) handleErrorResponse(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	rejected := &RequestRejectedError{Op: op, StatusCode: resp.StatusCode}

	var errResp struct {
		Error string `json:"error"`
	}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") &&
		json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		rejected.Message = errResp.Error
	} else {
		rejected.Message = strings.TrimSpace(string(body))
	}

	c.logger.Debug("request rejected",
		"op", op,
		"status", resp.StatusCode,
		"message", rejected.Message,
	)
	return rejected
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.requestTimeout)
}
