package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ashureev/sonnik/internal/dialogue"
	"github.com/ashureev/sonnik/internal/domain"
	"github.com/ashureev/sonnik/internal/identity"
)

// flexibleID accepts a user id sent as a JSON number or a numeric string.
type flexibleID int64

func (id *flexibleID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == `""` {
		*id = 0
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		s = strings.TrimSpace(str)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid user id %q", s)
	}
	*id = flexibleID(n)
	return nil
}

type userData struct {
	ID    flexibleID `json:"id"`
	Phone string     `json:"phone"`
}

func (u *userData) ref() identity.Ref {
	if u == nil {
		return identity.Ref{}
	}
	return identity.Ref{ID: int64(u.ID), Phone: u.Phone}
}

type chatRequest struct {
	UserData *userData `json:"user_data"`
	Message  string    `json:"message"`
	Limit    int       `json:"limit"`
}

type historyEntry struct {
	Role      domain.Role `json:"role"`
	Content   string      `json:"content"`
	Timestamp string      `json:"timestamp"`
}

// chatRequestFromQuery supports GET clients: ?user_id=&phone=&limit=.
func chatRequestFromQuery(r *http.Request) (chatRequest, error) {
	q := r.URL.Query()
	req := chatRequest{UserData: &userData{Phone: q.Get("phone")}}
	idParam := q.Get("user_id")
	if idParam == "" {
		idParam = q.Get("id")
	}
	if idParam != "" {
		n, err := strconv.ParseInt(idParam, 10, 64)
		if err != nil {
			return chatRequest{}, fmt.Errorf("invalid user id %q", idParam)
		}
		req.UserData.ID = flexibleID(n)
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			return chatRequest{}, fmt.Errorf("invalid limit %q", limit)
		}
		req.Limit = n
	}
	return req, nil
}

func readChatRequest(w http.ResponseWriter, r *http.Request) (chatRequest, bool) {
	if r.Method == http.MethodGet {
		req, err := chatRequestFromQuery(r)
		if err != nil {
			Error(w, http.StatusBadRequest, err.Error())
			return chatRequest{}, false
		}
		return req, true
	}
	var req chatRequest
	if !decode(w, r, &req) {
		return chatRequest{}, false
	}
	return req, true
}

func userRefFromRequest(w http.ResponseWriter, r *http.Request) (identity.Ref, bool) {
	req, ok := readChatRequest(w, r)
	if !ok {
		return identity.Ref{}, false
	}
	ref := req.UserData.ref()
	if ref.IsZero() {
		Error(w, http.StatusBadRequest, "User data is required")
		return identity.Ref{}, false
	}
	return ref, true
}

// SendMessage runs one dream exchange.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	req, ok := readChatRequest(w, r)
	if !ok {
		return
	}
	ref := req.UserData.ref()
	if ref.IsZero() || strings.TrimSpace(req.Message) == "" {
		Error(w, http.StatusBadRequest, "User data and message are required")
		return
	}

	user, err := h.identity.Resolve(r.Context(), ref)
	if err != nil {
		Fail(w, r, err, "Failed to send message")
		return
	}

	reply, err := h.dialogue.Send(r.Context(), dialogue.SendInput{
		User:      user,
		Channel:   domain.ChannelWeb,
		Message:   req.Message,
		RequestID: chiMiddleware.GetReqID(r.Context()),
	})
	if err != nil {
		Fail(w, r, err, "Failed to send message")
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"response": reply.Text,
	})
}

// ChatHistory returns the recent web conversation, oldest first.
func (h *Handler) ChatHistory(w http.ResponseWriter, r *http.Request) {
	req, ok := readChatRequest(w, r)
	if !ok {
		return
	}
	ref := req.UserData.ref()
	if ref.IsZero() {
		Error(w, http.StatusBadRequest, "User data is required")
		return
	}

	user, err := h.identity.Resolve(r.Context(), ref)
	if err != nil {
		Fail(w, r, err, "Failed to load history")
		return
	}

	messages, err := h.dialogue.History(r.Context(), user, domain.ChannelWeb, req.Limit)
	if err != nil {
		Fail(w, r, err, "Failed to load history")
		return
	}

	history := make([]historyEntry, 0, len(messages))
	for _, m := range messages {
		history = append(history, historyEntry{
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: m.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}

	JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"history": history,
	})
}
