// Package client is an HTTP and WebSocket client for the VOSS server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/voss-go/internal/metrics"
	"github.com/raphaelgruber/voss-go/internal/server"
)

// ErrNotLoggedIn is returned by calls that need a session before Login or Register.
var ErrNotLoggedIn = errors.New("not logged in")

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
	// Fallback is the in-character line the server sends when generation fails.
	Fallback string
	// ChatID is set when the failed request still created a chat.
	ChatID string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Status, e.Message)
}

// Client talks to one VOSS server and carries its session token.
type Client struct {
	endpoint   string
	httpClient *http.Client
	token      string
}

// New creates a client.
// If endpoint is empty, uses VOSS_SERVER_URL env var or defaults to localhost:5000.
// Timeout can be configured via VOSS_CLIENT_TIMEOUT env var (default 2m, long enough for a greeting plus a reply).
func New(endpoint string) *Client {
	if endpoint == "" {
		endpoint = os.Getenv("VOSS_SERVER_URL")
	}
	if endpoint == "" {
		endpoint = "http://localhost:5000"
	}

	timeout := 2 * time.Minute
	if t := os.Getenv("VOSS_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Token returns the current session token, empty before login.
func (c *Client) Token() string {
	return c.token
}

type errorResponse struct {
	Error    string `json:"error"`
	Response string `json:"response"`
	Greeting string `json:"greeting"`
	ChatID   string `json:"chat_id"`
}

// do sends a JSON request and decodes a JSON response into result.
func (c *Client) do(ctx context.Context, method, path string, body, result any) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		reqBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(reqBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, rdr)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.AddCookie(&http.Cookie{Name: server.SessionCookie, Value: c.token})
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e errorResponse
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(data))
		}
		fallback := e.Response
		if fallback == "" {
			fallback = e.Greeting
		}
		return resp, &APIError{Status: resp.StatusCode, Message: e.Error, Fallback: fallback, ChatID: e.ChatID}
	}

	if result != nil {
		if err := json.Unmarshal(data, result); err != nil {
			return resp, fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return resp, nil
}

// User is the server's view of an account.
type User struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Tone     string   `json:"tone"`
	Persona  string   `json:"persona"`
	Act      string   `json:"act"`
	Symbols  []string `json:"symbols"`
	ChatIDs  []string `json:"chat_ids"`
}

func (c *Client) captureSession(resp *http.Response) {
	for _, ck := range resp.Cookies() {
		if ck.Name == server.SessionCookie {
			c.token = ck.Value
		}
	}
}

// Login opens a session for name.
func (c *Client) Login(ctx context.Context, name, password string) (*User, error) {
	var out struct {
		User User `json:"user"`
	}
	resp, err := c.do(ctx, http.MethodPost, "/login", map[string]string{"name": name, "password": password}, &out)
	if err != nil {
		return nil, err
	}
	c.captureSession(resp)
	return &out.User, nil
}

// Logout ends the current session.
func (c *Client) Logout(ctx context.Context) error {
	if _, err := c.do(ctx, http.MethodPost, "/logout", nil, nil); err != nil {
		return err
	}
	c.token = ""
	return nil
}

// Greeting asks the server for a fresh greeting.
func (c *Client) Greeting(ctx context.Context) (string, error) {
	if c.token == "" {
		return "", ErrNotLoggedIn
	}
	var out struct {
		Greeting string `json:"greeting"`
	}
	if _, err := c.do(ctx, http.MethodPost, "/api/greeting", nil, &out); err != nil {
		return "", err
	}
	return out.Greeting, nil
}

// ChatRequest is one outbound chat message. An empty ChatID opens a new chat.
type ChatRequest struct {
	Message string `json:"message"`
	ChatID  string `json:"chat_id,omitempty"`
	Tone    string `json:"tone,omitempty"`
	Persona string `json:"persona,omitempty"`
}

// ChatReply is the server's answer to one message.
type ChatReply struct {
	Response string `json:"response"`
	ChatID   string `json:"chat_id"`
	Error    string `json:"error,omitempty"`
}

// Chat sends one message over plain HTTP.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	if c.token == "" {
		return nil, ErrNotLoggedIn
	}
	var out ChatReply
	if _, err := c.do(ctx, http.MethodPost, "/api/chat", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChatSummary is one entry of the chat list.
type ChatSummary struct {
	ChatID  string `json:"chat_id"`
	Title   string `json:"title"`
	Preview string `json:"preview"`
}

// Chats lists the session user's chats.
func (c *Client) Chats(ctx context.Context) ([]ChatSummary, error) {
	if c.token == "" {
		return nil, ErrNotLoggedIn
	}
	var out struct {
		Chats []ChatSummary `json:"chats"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/api/chats", nil, &out); err != nil {
		return nil, err
	}
	return out.Chats, nil
}

// Stats fetches the server's runtime statistics.
func (c *Client) Stats(ctx context.Context) (*metrics.Snapshot, error) {
	var out metrics.Snapshot
	if _, err := c.do(ctx, http.MethodGet, "/api/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChatStream is an open WebSocket chat session. It is not safe for
// concurrent use.
type ChatStream struct {
	conn *websocket.Conn
}

// OpenChat dials the WebSocket chat endpoint with the current session.
func (c *Client) OpenChat(ctx context.Context) (*ChatStream, error) {
	if c.token == "" {
		return nil, ErrNotLoggedIn
	}

	wsEndpoint := c.endpoint
	wsEndpoint = strings.Replace(wsEndpoint, "http://", "ws://", 1)
	wsEndpoint = strings.Replace(wsEndpoint, "https://", "wss://", 1)

	u, err := url.Parse(wsEndpoint + "/api/chat/ws")
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := http.Header{}
	header.Set("Cookie", (&http.Cookie{Name: server.SessionCookie, Value: c.token}).String())

	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket connect: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("websocket connect: %w", err)
	}
	return &ChatStream{conn: conn}, nil
}

// Send writes one message and waits for its reply. A reply carrying an
// error is returned as an *APIError together with the decoded frame.
func (s *ChatStream) Send(req ChatRequest) (*ChatReply, error) {
	if err := s.conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	var reply ChatReply
	if err := s.conn.ReadJSON(&reply); err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}
	if reply.Error != "" {
		return &reply, &APIError{Message: reply.Error, Fallback: reply.Response, ChatID: reply.ChatID}
	}
	return &reply, nil
}

// Close sends a close frame and closes the connection.
func (s *ChatStream) Close() error {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return s.conn.Close()
}
