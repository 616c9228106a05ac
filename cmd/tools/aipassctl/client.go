package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/scaipass/ai-pass/backend/internal/model/chat"
	chatService "github.com/scaipass/ai-pass/backend/internal/service/chat"
)

// Client talks to the backend's /api routes with a bearer token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 3 * time.Minute},
	}
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (c *Client) CreateSession(ctx context.Context) (chat.Session, error) {
	var session chat.Session
	err := c.do(ctx, http.MethodPost, "/api/sessions", nil, &session)
	return session, err
}

func (c *Client) Sessions(ctx context.Context) ([]chat.Session, error) {
	var sessions []chat.Session
	err := c.do(ctx, http.MethodGet, "/api/sessions", nil, &sessions)
	return sessions, err
}

// Send runs one exchange and returns both stored messages.
func (c *Client) Send(ctx context.Context, sessionID, text string) (chatService.Result, error) {
	var result chatService.Result
	body := map[string]string{"text": text}
	err := c.do(ctx, http.MethodPost, "/api/sessions/"+sessionID+"/messages", body, &result)
	return result, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		if payload.Error == "" {
			payload.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: payload.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
