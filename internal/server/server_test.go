package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/voss-go/internal/metrics"
	"github.com/raphaelgruber/voss-go/internal/models"
	"github.com/raphaelgruber/voss-go/internal/server"
	"github.com/raphaelgruber/voss-go/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

const testToken = "tok-nyx"

type fakeIdentity struct {
	mu       sync.Mutex
	sessions map[string]string
	users    map[string]*models.User
	lastIn   service.RegisterInput
	act      string
}

func newFakeIdentity() *fakeIdentity {
	nyx := &models.User{
		ID:           surrealmodels.RecordID{Table: "user", ID: "nyx"},
		Username:     "nyx",
		PasswordHash: "$2a$secret",
		Profile:      models.Profile{Tone: "witty", Custom: "moths"},
	}
	nyx.Normalize()
	return &fakeIdentity{
		sessions: map[string]string{testToken: "nyx"},
		users:    map[string]*models.User{"nyx": nyx},
	}
}

func session(token, user string) *models.Session {
	return &models.Session{
		ID:        surrealmodels.RecordID{Table: "session", ID: token},
		User:      user,
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func (f *fakeIdentity) Register(_ context.Context, in service.RegisterInput) (*models.User, *models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastIn = in
	name := service.NormalizeUsername(in.Name)
	if name == "" || in.Password == "" {
		return nil, nil, fmt.Errorf("%w: missing username or password", service.ErrValidation)
	}
	if _, ok := f.users[name]; ok {
		return nil, nil, service.ErrUsernameTaken
	}
	u := &models.User{ID: surrealmodels.RecordID{Table: "user", ID: name}, Username: name, PasswordHash: "hash"}
	u.Normalize()
	f.users[name] = u
	token := "tok-" + name
	f.sessions[token] = name
	return u, session(token, name), nil
}

func (f *fakeIdentity) Login(_ context.Context, name, password string) (*models.User, *models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[name]
	if !ok || password != "moth" {
		return nil, nil, service.ErrInvalidCredentials
	}
	return u, session(testToken, name), nil
}

func (f *fakeIdentity) Logout(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, token)
	return nil
}

func (f *fakeIdentity) CurrentActor(_ context.Context, token string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.sessions[token]
	if !ok {
		return "", service.ErrUnauthenticated
	}
	return id, nil
}

func (f *fakeIdentity) Profile(_ context.Context, actorID string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[actorID]
	if !ok {
		return nil, service.ErrUnauthenticated
	}
	return u, nil
}

func (f *fakeIdentity) ListUsers(context.Context) ([]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.User
	for _, u := range f.users {
		out = append(out, *u)
	}
	return out, nil
}

func (f *fakeIdentity) SetAct(_ context.Context, _ string, act string) error {
	if !models.IsAct(act) {
		return fmt.Errorf("%w: invalid act", service.ErrValidation)
	}
	f.act = act
	return nil
}

type fakeChat struct {
	mu      sync.Mutex
	err     error
	got     []service.SendRequest
	history []models.Turn
}

func (f *fakeChat) Send(_ context.Context, _ string, req service.SendRequest) (*service.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, req)
	if f.err != nil {
		return nil, f.err
	}
	id := req.ThreadID
	if id == "" {
		id = "chat-1"
	}
	return &service.SendResult{Reply: "echo: " + req.Message, ThreadID: id}, nil
}

func (f *fakeChat) Greet(context.Context, string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "Welcome back.", nil
}

func (f *fakeChat) Threads(context.Context, string) ([]models.ThreadSummary, error) {
	return []models.ThreadSummary{
		{ID: surrealmodels.RecordID{Table: "thread", ID: "chat-1"}, Title: "I found a chain letter", Preview: "I found a chain letter"},
		{ID: surrealmodels.RecordID{Table: "thread", ID: "chat-2"}},
	}, nil
}

func (f *fakeChat) History(_ context.Context, _, threadID string) ([]models.Turn, error) {
	if threadID != "chat-1" {
		return []models.Turn{}, nil
	}
	return f.history, nil
}

type testEnv struct {
	identity *fakeIdentity
	chat     *fakeChat
	handler  http.Handler
}

func newTestEnv(cfg server.Config) *testEnv {
	identity := newFakeIdentity()
	chat := &fakeChat{history: []models.Turn{{Assistant: "Welcome."}, {User: "hi", Assistant: "hello"}}}
	srv := server.New(chat, identity, metrics.NewCollector(), cfg, nil)
	return &testEnv{identity: identity, chat: chat, handler: srv.Handler()}
}

func (e *testEnv) do(t *testing.T, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if authed {
		req.AddCookie(&http.Cookie{Name: server.SessionCookie, Value: testToken})
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestPublicRoutes(t *testing.T) {
	env := newTestEnv(server.Config{})

	rec := env.do(t, http.MethodGet, "/", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "VOSS API Active", decode(t, rec)["status"])

	rec = env.do(t, http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())

	rec = env.do(t, http.MethodGet, "/nope", "", false)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/stats", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode(t, rec), "uptime_seconds")
}

func TestRegister(t *testing.T) {
	env := newTestEnv(server.Config{CookieSecure: true})

	rec := env.do(t, http.MethodPost, "/register", `{"name":"Eve","password":"x","age":"17","tone":"oracle"}`, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "Welcome, eve!", body["greeting"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "eve", user["name"])
	assert.NotContains(t, user, "password_hash")
	assert.NotContains(t, rec.Body.String(), "hash")
	assert.Equal(t, 17, env.identity.lastIn.Age)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, server.SessionCookie, cookies[0].Name)
	assert.Equal(t, "tok-eve", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)

	rec = env.do(t, http.MethodPost, "/register", `{"name":"nyx","password":"x","age":19}`, false)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/register", `{"name":"","password":""}`, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/register", `{"name":`, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginLogoutSession(t *testing.T) {
	env := newTestEnv(server.Config{})

	rec := env.do(t, http.MethodPost, "/login", `{"name":"nyx","password":"wrong"}`, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/login", `{"name":"nyx","password":"moth"}`, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Login successful", decode(t, rec)["message"])

	rec = env.do(t, http.MethodGet, "/session", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode(t, rec)["user"])

	rec = env.do(t, http.MethodGet, "/session", "", true)
	user := decode(t, rec)["user"].(map[string]any)
	assert.Equal(t, "nyx", user["username"])
	assert.Equal(t, "witty", user["tone"])

	rec = env.do(t, http.MethodPost, "/logout", "", true)
	assert.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Negative(t, cookies[0].MaxAge)

	rec = env.do(t, http.MethodGet, "/session", "", true)
	assert.Nil(t, decode(t, rec)["user"])
}

func TestUsersAndLoreAct(t *testing.T) {
	env := newTestEnv(server.Config{})

	rec := env.do(t, http.MethodGet, "/users", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	var users []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	require.Len(t, users, 1)
	assert.Equal(t, map[string]any{"name": "nyx", "tone": "witty", "custom": "moths"}, users[0])

	rec = env.do(t, http.MethodPost, "/lore-act", `{"act":"Act II – The Reckoning"}`, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/lore-act", `{"act":"Act II – The Reckoning"}`, true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.ActReckoning, env.identity.act)

	rec = env.do(t, http.MethodPost, "/lore-act", `{"act":"Act IX"}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChat(t *testing.T) {
	env := newTestEnv(server.Config{})

	rec := env.do(t, http.MethodPost, "/api/chat", `{"message":"hi"}`, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, env.chat.got)

	rec = env.do(t, http.MethodPost, "/api/chat", `{"message":"I found a chain letter","tone":"witty"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"response": "echo: I found a chain letter", "chat_id": "chat-1"}, decode(t, rec))
	require.Len(t, env.chat.got, 1)
	assert.Equal(t, service.SendRequest{Message: "I found a chain letter", Tone: "witty"}, env.chat.got[0])

	rec = env.do(t, http.MethodGet, "/api/chat", "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChatErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   int
		fallback bool
	}{
		{"validation", fmt.Errorf("%w: empty message", service.ErrValidation), http.StatusBadRequest, false},
		{"thread", service.ErrThreadNotFound, http.StatusNotFound, false},
		{"generation", fmt.Errorf("%w: quota", service.ErrGenerationFailed), http.StatusBadGateway, true},
		{"timeout", fmt.Errorf("%w: deadline", service.ErrTimeout), http.StatusGatewayTimeout, true},
		{"store", fmt.Errorf("append: %w: down", service.ErrStoreUnavailable), http.StatusServiceUnavailable, false},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(server.Config{})
			env.chat.err = tt.err

			rec := env.do(t, http.MethodPost, "/api/chat", `{"message":"hi","chat_id":"chat-1"}`, true)
			assert.Equal(t, tt.status, rec.Code)
			body := decode(t, rec)
			assert.NotEmpty(t, body["error"])
			if tt.fallback {
				assert.NotEmpty(t, body["response"])
				assert.NotContains(t, body["response"], "echo:")
			} else {
				assert.NotContains(t, body, "response")
			}
			assert.NotContains(t, rec.Body.String(), "quota")
			assert.NotContains(t, body, "chat_id")
		})
	}
}

func TestChatErrorCarriesCreatedThread(t *testing.T) {
	env := newTestEnv(server.Config{})
	env.chat.err = &service.ThreadError{
		ThreadID: "chat-9",
		Err:      fmt.Errorf("%w: model down", service.ErrGenerationFailed),
	}

	rec := env.do(t, http.MethodPost, "/api/chat", `{"message":"I found a chain letter"}`, true)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "chat-9", body["chat_id"])
	assert.Equal(t, "generation failed", body["error"])
	assert.NotEmpty(t, body["response"])
}

func TestGreeting(t *testing.T) {
	env := newTestEnv(server.Config{})

	rec := env.do(t, http.MethodPost, "/api/greeting", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome back.", decode(t, rec)["greeting"])

	env.chat.err = service.ErrGenerationFailed
	rec = env.do(t, http.MethodPost, "/api/greeting", "", true)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, decode(t, rec)["greeting"], "A shadow passes")
}

func TestChatsAndHistory(t *testing.T) {
	env := newTestEnv(server.Config{})

	rec := env.do(t, http.MethodGet, "/api/chats", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	var chats struct {
		Chats []map[string]string `json:"chats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chats))
	require.Len(t, chats.Chats, 2)
	assert.Equal(t, "chat-1", chats.Chats[0]["chat_id"])
	assert.Equal(t, "Untitled Chat", chats.Chats[1]["title"])

	rec = env.do(t, http.MethodPost, "/api/history", `{"chat_id":"chat-1"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var history struct {
		Chat []map[string]string `json:"chat"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	assert.Equal(t, []map[string]string{{"user": "", "voss": "Welcome."}, {"user": "hi", "voss": "hello"}}, history.Chat)

	rec = env.do(t, http.MethodPost, "/api/history", `{"chat_id":"other"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"chat":[]}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/chats", "", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCORS(t *testing.T) {
	env := newTestEnv(server.Config{AllowedOrigin: "http://localhost:3000"})

	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func dialChat(t *testing.T, ts *httptest.Server, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	header := http.Header{}
	if token != "" {
		header.Set("Cookie", server.SessionCookie+"="+token)
	}
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/chat/ws"
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	return dialer.Dial(url, header)
}

func TestChatSocket(t *testing.T) {
	env := newTestEnv(server.Config{})
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	_, resp, err := dialChat(t, ts, "")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := dialChat(t, ts, testToken)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	require.NoError(t, conn.WriteJSON(map[string]string{"message": "the mirror"}))
	var reply map[string]string
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, map[string]string{"response": "echo: the mirror", "chat_id": "chat-1"}, reply)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	reply = nil
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "malformed frame", reply["error"])

	for _, frame := range []string{`{"message": "hi`, ""} {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
		reply = nil
		require.NoError(t, conn.ReadJSON(&reply), "frame %q", frame)
		assert.Equal(t, "malformed frame", reply["error"])
	}

	require.NoError(t, conn.WriteJSON(map[string]string{"message": "still here"}))
	reply = nil
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "echo: still here", reply["response"])

	env.chat.mu.Lock()
	env.chat.err = &service.ThreadError{ThreadID: "chat-9", Err: service.ErrGenerationFailed}
	env.chat.mu.Unlock()
	require.NoError(t, conn.WriteJSON(map[string]string{"message": "new chat"}))
	reply = nil
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "generation failed", reply["error"])
	assert.Equal(t, "chat-9", reply["chat_id"])
	assert.NotEmpty(t, reply["response"])

	env.chat.mu.Lock()
	env.chat.err = service.ErrThreadNotFound
	env.chat.mu.Unlock()
	require.NoError(t, conn.WriteJSON(map[string]string{"message": "hi", "chat_id": "gone"}))
	reply = nil
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "chat not found", reply["error"])
	assert.Equal(t, "gone", reply["chat_id"])
}
