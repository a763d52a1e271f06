package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 10 * time.Second
	wsMaxMessage = 64 << 10
)

// socketReply is one outbound frame: a reply or an error.
type socketReply struct {
	Response string `json:"response,omitempty"`
	ChatID   string `json:"chat_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// handleChatSocket runs chat exchanges over one WebSocket connection. Frames
// are processed in order; each inbound chatRequest yields exactly one reply.
func (s *Server) handleChatSocket(w http.ResponseWriter, r *http.Request, actorID string) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "actor", actorID, "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(wsMaxMessage)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	var writeMu sync.Mutex
	write := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(v)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
				writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	s.logger.Info("websocket connected", "actor", actorID)
	for {
		// Exchanges can outlast the pong window, so each read starts a fresh one.
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		var req chatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if isDecodeError(err) {
				if werr := write(socketReply{Error: "malformed frame"}); werr != nil {
					return
				}
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("websocket read failed", "actor", actorID, "error", err)
			}
			return
		}

		res, err := s.chat.Send(r.Context(), actorID, req.toSend())
		var reply socketReply
		if err != nil {
			status, msg := statusFor(err)
			if status >= http.StatusInternalServerError {
				s.logger.Error("websocket exchange failed", "actor", actorID, "status", status, "error", err)
			}
			reply = socketReply{Error: msg, ChatID: chatIDFor(req, err)}
			if status == http.StatusBadGateway || status == http.StatusGatewayTimeout {
				reply.Response = fallbackReply
			}
		} else {
			reply = socketReply{Response: res.Reply, ChatID: res.ThreadID}
		}
		if err := write(reply); err != nil {
			s.logger.Warn("websocket write failed", "actor", actorID, "error", err)
			return
		}
	}
}

// isDecodeError reports whether a frame arrived but was not a valid chat
// request, including truncated or empty JSON. Close frames surface as
// *websocket.CloseError and are not decode errors.
func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF)
}
