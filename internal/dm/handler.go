package dm

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"teamchat/internal/httpx"
	"teamchat/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conv, created, err := h.service.CreateConversation(r.Context(), middleware.UserID(r.Context()), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httpx.JSON(w, status, map[string]*Conversation{"conversation": conv})
}

func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := h.service.ListConversations(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if conversations == nil {
		conversations = []*Conversation{}
	}
	httpx.JSON(w, http.StatusOK, map[string][]*Conversation{"conversations": conversations})
}

func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.service.GetConversation(r.Context(),
		middleware.UserID(r.Context()), chi.URLParam(r, "conversationId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]*Conversation{"conversation": conv})
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m, err := h.service.SendMessage(r.Context(),
		middleware.UserID(r.Context()), chi.URLParam(r, "conversationId"), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]*DirectMessage{"message": m})
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 0
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	var before *time.Time
	if v := q.Get("before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httpx.Error(w, http.StatusBadRequest, "invalid before timestamp")
			return
		}
		before = &t
	}

	messages, err := h.service.ListMessages(r.Context(),
		middleware.UserID(r.Context()), chi.URLParam(r, "conversationId"), limit, before)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if messages == nil {
		messages = []*DirectMessage{}
	}
	httpx.JSON(w, http.StatusOK, map[string][]*DirectMessage{"messages": messages})
}

func (h *Handler) UpdateMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m, err := h.service.EditMessage(r.Context(),
		middleware.UserID(r.Context()), chi.URLParam(r, "messageId"), req.Content)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]*DirectMessage{"message": m})
}

func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	err := h.service.DeleteMessage(r.Context(),
		middleware.UserID(r.Context()), chi.URLParam(r, "messageId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "message deleted successfully"})
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 0
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	messages, err := h.service.Search(r.Context(), middleware.UserID(r.Context()),
		q.Get("query"), q.Get("conversationId"), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if messages == nil {
		messages = []*DirectMessage{}
	}
	httpx.JSON(w, http.StatusOK, map[string]interface{}{
		"messages": messages,
		"count":    len(messages),
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		httpx.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrForbidden):
		httpx.Error(w, http.StatusForbidden, "you are not a participant in this conversation")
	case errors.Is(err, ErrNotSender):
		httpx.Error(w, http.StatusForbidden, "you can only modify your own messages")
	case errors.Is(err, ErrNotFound):
		httpx.Error(w, http.StatusNotFound, err.Error())
	default:
		httpx.Error(w, http.StatusInternalServerError, "request failed")
	}
}
