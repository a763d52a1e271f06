package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/raphaelgruber/voss-go/internal/models"
	"github.com/raphaelgruber/voss-go/internal/service"
)

// userView is the client representation of a user. The password hash never
// leaves the server.
type userView struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	Name        string   `json:"name"`
	Age         int      `json:"age"`
	Gender      string   `json:"gender"`
	Personality string   `json:"personality"`
	Tone        string   `json:"tone"`
	Persona     string   `json:"persona"`
	Custom      string   `json:"custom"`
	Act         string   `json:"act"`
	Symbols     []string `json:"symbols"`
	ChatIDs     []string `json:"chat_ids"`
}

func newUserView(u *models.User) userView {
	return userView{
		ID:          u.ActorID(),
		Username:    u.Username,
		Name:        u.Username,
		Age:         u.Profile.Age,
		Gender:      u.Profile.Gender,
		Personality: u.Profile.Personality,
		Tone:        u.Profile.Tone,
		Persona:     u.Profile.Persona,
		Custom:      u.Profile.Custom,
		Act:         u.Act,
		Symbols:     u.Symbols,
		ChatIDs:     u.ThreadIDs,
	}
}

// flexInt accepts a JSON number, a numeric string, "" or null.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("age: %w", err)
		}
		*f = flexInt(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "VOSS API Active"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stats.Snapshot())
}

type registerRequest struct {
	Name        string  `json:"name"`
	Password    string  `json:"password"`
	Age         flexInt `json:"age"`
	Gender      string  `json:"gender"`
	Personality string  `json:"personality"`
	Tone        string  `json:"tone"`
	Persona     string  `json:"persona"`
	Custom      string  `json:"custom"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	user, session, err := s.identity.Register(r.Context(), service.RegisterInput{
		Name:        req.Name,
		Password:    req.Password,
		Age:         int(req.Age),
		Gender:      req.Gender,
		Personality: req.Personality,
		Tone:        req.Tone,
		Persona:     req.Persona,
		Custom:      req.Custom,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.setSessionCookie(w, session)
	writeJSON(w, http.StatusOK, map[string]any{
		"user":     newUserView(user),
		"greeting": fmt.Sprintf("Welcome, %s!", user.Username),
	})
}

type loginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	user, session, err := s.identity.Login(r.Context(), req.Name, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.setSessionCookie(w, session)
	writeJSON(w, http.StatusOK, map[string]any{
		"user":    newUserView(user),
		"message": "Login successful",
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.identity.Logout(r.Context(), sessionToken(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	none := map[string]any{"user": nil}
	actorID, err := s.identity.CurrentActor(r.Context(), sessionToken(r))
	if err != nil {
		if errors.Is(err, service.ErrUnauthenticated) {
			writeJSON(w, http.StatusOK, none)
			return
		}
		s.writeError(w, r, err)
		return
	}
	user, err := s.identity.Profile(r.Context(), actorID)
	if err != nil {
		if errors.Is(err, service.ErrUnauthenticated) {
			writeJSON(w, http.StatusOK, none)
			return
		}
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": newUserView(user)})
}

type userListItem struct {
	Name   string `json:"name"`
	Tone   string `json:"tone"`
	Custom string `json:"custom"`
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.identity.ListUsers(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]userListItem, 0, len(users))
	for _, u := range users {
		out = append(out, userListItem{Name: u.Username, Tone: u.Profile.Tone, Custom: u.Profile.Custom})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLoreAct(w http.ResponseWriter, r *http.Request, actorID string) {
	var req struct {
		Act string `json:"act"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.identity.SetAct(r.Context(), actorID, req.Act); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"msg": fmt.Sprintf("Lore act set to %s.", req.Act)})
}

// chatRequest is the body of POST /api/chat and of each WebSocket frame.
type chatRequest struct {
	Message string `json:"message"`
	ChatID  string `json:"chat_id,omitempty"`
	Tone    string `json:"tone,omitempty"`
	Persona string `json:"persona,omitempty"`
}

// chatIDFor is the chat id an error reply refers to: the thread created by
// the failed request, else the one the client sent.
func chatIDFor(req chatRequest, err error) string {
	if id := service.CreatedThread(err); id != "" {
		return id
	}
	return req.ChatID
}

type chatResponse struct {
	Response string `json:"response"`
	ChatID   string `json:"chat_id"`
}

func (req chatRequest) toSend() service.SendRequest {
	return service.SendRequest{
		Message:  req.Message,
		ThreadID: req.ChatID,
		Tone:     req.Tone,
		Persona:  req.Persona,
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, actorID string) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.chat.Send(r.Context(), actorID, req.toSend())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Response: res.Reply, ChatID: res.ThreadID})
}

func (s *Server) handleGreeting(w http.ResponseWriter, r *http.Request, actorID string) {
	greeting, err := s.chat.Greet(r.Context(), actorID)
	if err != nil {
		status, msg := statusFor(err)
		if status == http.StatusBadGateway || status == http.StatusGatewayTimeout {
			s.logger.Error("greeting failed", "actor", actorID, "error", err)
			writeJSON(w, status, errorBody{Error: msg, Greeting: fallbackGreeting})
			return
		}
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"greeting": greeting})
}

type chatSummary struct {
	ChatID  string `json:"chat_id"`
	Title   string `json:"title"`
	Preview string `json:"preview"`
}

func (s *Server) handleChats(w http.ResponseWriter, r *http.Request, actorID string) {
	threads, err := s.chat.Threads(r.Context(), actorID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]chatSummary, 0, len(threads))
	for _, t := range threads {
		id, err := models.RecordIDString(t.ID)
		if err != nil {
			continue
		}
		title := t.Title
		if title == "" {
			title = "Untitled Chat"
		}
		out = append(out, chatSummary{ChatID: id, Title: title, Preview: t.Preview})
	}
	writeJSON(w, http.StatusOK, map[string]any{"chats": out})
}

type historyTurn struct {
	User string `json:"user"`
	Voss string `json:"voss"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, actorID string) {
	var req struct {
		ChatID string `json:"chat_id"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	turns, err := s.chat.History(r.Context(), actorID, req.ChatID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]historyTurn, 0, len(turns))
	for _, t := range turns {
		out = append(out, historyTurn{User: t.User, Voss: t.Assistant})
	}
	writeJSON(w, http.StatusOK, map[string]any{"chat": out})
}
