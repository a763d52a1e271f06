// Package server exposes the conversation and identity services over HTTP
// and WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/voss-go/internal/metrics"
	"github.com/raphaelgruber/voss-go/internal/models"
	"github.com/raphaelgruber/voss-go/internal/service"
)

// SessionCookie is the name of the cookie carrying the session token.
const SessionCookie = "voss_session"

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

const (
	fallbackReply    = "The signal fades… V.O.S.S. cannot answer right now."
	fallbackGreeting = "🌘 A shadow passes… V.O.S.S. cannot form a greeting right now."
)

// ChatService is the conversation surface used by the handlers.
type ChatService interface {
	Send(ctx context.Context, actorID string, req service.SendRequest) (*service.SendResult, error)
	Greet(ctx context.Context, actorID string) (string, error)
	Threads(ctx context.Context, actorID string) ([]models.ThreadSummary, error)
	History(ctx context.Context, actorID, threadID string) ([]models.Turn, error)
}

// IdentityService is the account and session surface used by the handlers.
type IdentityService interface {
	Register(ctx context.Context, in service.RegisterInput) (*models.User, *models.Session, error)
	Login(ctx context.Context, name, password string) (*models.User, *models.Session, error)
	Logout(ctx context.Context, token string) error
	CurrentActor(ctx context.Context, token string) (string, error)
	Profile(ctx context.Context, actorID string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	SetAct(ctx context.Context, actorID, act string) error
}

// StatsSource reports operation metrics.
type StatsSource interface {
	Snapshot() metrics.Snapshot
}

// Config holds HTTP-level settings.
type Config struct {
	CookieSecure bool
	// AllowedOrigin enables credentialed CORS for one browser origin.
	AllowedOrigin string
}

// Server routes HTTP requests to the services.
type Server struct {
	chat     ChatService
	identity IdentityService
	stats    StatsSource
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

// New creates a server and registers its routes.
func New(chat ChatService, identity IdentityService, stats StatsSource, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		chat:     chat,
		identity: identity,
		stats:    stats,
		cfg:      cfg,
		logger:   logger.With("component", "http"),
		mux:      http.NewServeMux(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/stats", s.handleStats)

	s.mux.HandleFunc("POST /register", s.handleRegister)
	s.mux.HandleFunc("POST /login", s.handleLogin)
	s.mux.HandleFunc("POST /logout", s.handleLogout)
	s.mux.HandleFunc("GET /session", s.handleSession)
	s.mux.HandleFunc("GET /users", s.handleUsers)
	s.mux.HandleFunc("POST /lore-act", s.authed(s.handleLoreAct))

	s.mux.HandleFunc("POST /api/chat", s.authed(s.handleChat))
	s.mux.HandleFunc("POST /api/greeting", s.authed(s.handleGreeting))
	s.mux.HandleFunc("GET /api/chats", s.authed(s.handleChats))
	s.mux.HandleFunc("POST /api/history", s.authed(s.handleHistory))
	s.mux.HandleFunc("GET /api/chat/ws", s.authed(s.handleChatSocket))

	s.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "route not found"})
	})
}

// Handler returns the root handler with CORS and request logging applied.
func (s *Server) Handler() http.Handler {
	return LoggingMiddleware(s.logger)(s.cors(s.mux))
}

type errorBody struct {
	Error    string `json:"error"`
	Response string `json:"response,omitempty"`
	Greeting string `json:"greeting,omitempty"`
	ChatID   string `json:"chat_id,omitempty"`
}

// statusFor maps service errors to an HTTP status and a client-safe message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized, "not authenticated"
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrThreadNotFound):
		return http.StatusNotFound, "chat not found"
	case errors.Is(err, service.ErrUsernameTaken):
		return http.StatusConflict, "username already exists"
	case errors.Is(err, service.ErrTimeout):
		return http.StatusGatewayTimeout, "generation timed out"
	case errors.Is(err, service.ErrGenerationFailed):
		return http.StatusBadGateway, "generation failed"
	case errors.Is(err, service.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store unavailable"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	body := errorBody{Error: msg, ChatID: service.CreatedThread(err)}
	if status == http.StatusBadGateway || status == http.StatusGatewayTimeout {
		body.Response = fallbackReply
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: malformed JSON body", service.ErrValidation)
	}
	return nil
}

func (s *Server) setSessionCookie(w http.ResponseWriter, session *models.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    models.MustRecordIDString(session.ID),
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func sessionToken(r *http.Request) string {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	return c.Value
}
