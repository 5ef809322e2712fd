package chatws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ashureev/sonnik/internal/api"
	"github.com/ashureev/sonnik/internal/dialogue"
	"github.com/ashureev/sonnik/internal/domain"
	"github.com/ashureev/sonnik/internal/identity"
)

const (
	writeTimeout   = 10 * time.Second
	readLimitBytes = 64 << 10
)

// Handler upgrades /ws/chat requests and runs the chat loop.
type Handler struct {
	identity       *identity.Service
	dialogue       *dialogue.Service
	sm             *SessionManager
	allowedOrigins []string
	isDev          bool
}

// NewHandler creates a chat socket handler.
func NewHandler(ids *identity.Service, dlg *dialogue.Service, sm *SessionManager, allowedOrigins []string, isDev bool) *Handler {
	return &Handler{
		identity:       ids,
		dialogue:       dlg,
		sm:             sm,
		allowedOrigins: allowedOrigins,
		isDev:          isDev,
	}
}

// inbound is a client frame.
type inbound struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

type historyEntry struct {
	Role      domain.Role `json:"role"`
	Content   string      `json:"content"`
	Timestamp string      `json:"timestamp"`
}

// outbound is a server frame.
type outbound struct {
	Type     string         `json:"type"`
	Content  string         `json:"content,omitempty"`
	Source   string         `json:"source,omitempty"`
	Messages []historyEntry `json:"messages,omitempty"`
	Message  string         `json:"message,omitempty"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		api.Error(w, http.StatusForbidden, "Origin not allowed")
		return
	}

	ref, err := refFromQuery(r)
	if err != nil {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := h.identity.Resolve(r.Context(), ref)
	if err != nil {
		api.Fail(w, r, err, "Failed to open chat")
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", user.ID)
		return
	}
	ws.SetReadLimit(readLimitBytes)
	defer func() {
		_ = ws.Close(websocket.StatusNormalClosure, "session ended")
	}()

	h.sm.Register(user.ID, ws)
	defer h.sm.Unregister(user.ID, ws)

	h.readLoop(r.Context(), ws, user, chiMiddleware.GetReqID(r.Context()))
	slog.Info("Chat socket closed", "user_id", user.ID)
}

func refFromQuery(r *http.Request) (identity.Ref, error) {
	q := r.URL.Query()
	ref := identity.Ref{Phone: q.Get("phone")}
	if raw := q.Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return identity.Ref{}, err
		}
		ref.ID = id
	}
	return ref, nil
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigins)
	return false
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, user *domain.User, requestID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("Chat socket closed by peer", "user_id", user.ID)
			} else if ctx.Err() == nil {
				slog.Debug("Chat socket read error", "error", err, "user_id", user.ID)
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			if err := h.write(ctx, ws, outbound{Type: "error", Message: "Invalid message"}); err != nil {
				return
			}
			continue
		}

		if err := h.write(ctx, ws, h.dispatch(ctx, user, msg, requestID)); err != nil {
			slog.Debug("Chat socket write error", "error", err, "user_id", user.ID)
			return
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, user *domain.User, msg inbound, requestID string) outbound {
	switch msg.Type {
	case "message":
		reply, err := h.dialogue.Send(ctx, dialogue.SendInput{
			User:      user,
			Channel:   domain.ChannelWeb,
			Message:   msg.Content,
			RequestID: requestID,
		})
		if err != nil {
			slog.Warn("Chat message failed", "user_id", user.ID, "error", err)
			return outbound{Type: "error", Message: "Failed to send message"}
		}
		return outbound{Type: "reply", Content: reply.Text, Source: string(reply.Source)}

	case "history":
		messages, err := h.dialogue.History(ctx, user, domain.ChannelWeb, msg.Limit)
		if err != nil {
			slog.Warn("Chat history failed", "user_id", user.ID, "error", err)
			return outbound{Type: "error", Message: "Failed to load history"}
		}
		entries := make([]historyEntry, 0, len(messages))
		for _, m := range messages {
			entries = append(entries, historyEntry{
				Role:      m.Role,
				Content:   m.Content,
				Timestamp: m.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
			})
		}
		return outbound{Type: "history", Messages: entries}

	case "ping":
		return outbound{Type: "pong"}

	default:
		return outbound{Type: "error", Message: "Unknown message type"}
	}
}

func (h *Handler) write(ctx context.Context, ws *websocket.Conn, v outbound) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, ws, v)
}
