package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/riyak972/capstone-chat/internal/domain"
)

// Client calls the chat API over HTTP.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a client for the API at baseURL.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{},
	}
}

// apiError is the error body returned by the API.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return readError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return resp, nil
}

func readError(resp *http.Response) error {
	var e apiError
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Code == "" {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return &e
}

// ListSessions returns the caller's sessions.
func (c *Client) ListSessions(ctx context.Context) ([]domain.Session, error) {
	var out struct {
		Sessions []domain.Session `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/sessions", nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// CreateSession creates a session with the given title.
func (c *Client) CreateSession(ctx context.Context, title string) (*domain.Session, error) {
	var out struct {
		Session domain.Session `json:"session"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/sessions", map[string]string{"title": title}, &out); err != nil {
		return nil, err
	}
	return &out.Session, nil
}

// Event is one server-sent event.
type Event struct {
	Event string
	Data  json.RawMessage
}

// StreamChat posts req to the streaming endpoint and calls fn for every
// message chunk until the stream ends.
func (c *Client) StreamChat(ctx context.Context, req domain.ChatRequest, fn func(domain.Chunk) error) error {
	resp, err := c.send(ctx, http.MethodPost, "/api/chat/stream", req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return readError(resp)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		return fmt.Errorf("unexpected content type %q", resp.Header.Get("Content-Type"))
	}

	return readEvents(resp.Body, func(ev Event) error {
		if ev.Event != "message" {
			return nil
		}
		var chunk domain.Chunk
		if err := json.Unmarshal(ev.Data, &chunk); err != nil {
			return fmt.Errorf("failed to parse chunk: %w", err)
		}
		return fn(chunk)
	})
}

// readEvents parses an event stream, calling fn once per complete event.
func readEvents(r io.Reader, fn func(Event) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var ev Event
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if ev.Event != "" || len(ev.Data) > 0 {
				if ev.Event == "" {
					ev.Event = "message"
				}
				if err := fn(ev); err != nil {
					return err
				}
			}
			ev = Event{}
		case strings.HasPrefix(line, ":"), strings.HasPrefix(line, "retry:"):
		case strings.HasPrefix(line, "event:"):
			ev.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			ev.Data = append(ev.Data, strings.TrimSpace(strings.TrimPrefix(line, "data:"))...)
		}
	}
	return scanner.Err()
}
