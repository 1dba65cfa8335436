package message

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

func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m, err := h.service.Send(r.Context(),
		middleware.UserID(r.Context()), chi.URLParam(r, "channelId"), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]*Message{"message": m})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	opts := ListOptions{}
	q := r.URL.Query()

	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Limit = n
		}
	}
	if v := q.Get("before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httpx.Error(w, http.StatusBadRequest, "invalid before timestamp")
			return
		}
		opts.Before = &t
	}
	if v := q.Get("after"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httpx.Error(w, http.StatusBadRequest, "invalid after timestamp")
			return
		}
		opts.After = &t
	}

	messages, err := h.service.List(r.Context(),
		middleware.UserID(r.Context()), chi.URLParam(r, "channelId"), opts)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if messages == nil {
		messages = []*Message{}
	}
	httpx.JSON(w, http.StatusOK, map[string][]*Message{"messages": messages})
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	err := h.service.MarkRead(r.Context(),
		middleware.UserID(r.Context()), chi.URLParam(r, "channelId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "channel marked as read"})
}

func (h *Handler) Replies(w http.ResponseWriter, r *http.Request) {
	replies, err := h.service.Replies(r.Context(),
		middleware.UserID(r.Context()), chi.URLParam(r, "messageId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if replies == nil {
		replies = []*Message{}
	}
	httpx.JSON(w, http.StatusOK, map[string][]*Message{"replies": replies})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m, err := h.service.Edit(r.Context(),
		middleware.UserID(r.Context()), chi.URLParam(r, "messageId"), req.Content)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]*Message{"message": m})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.service.Delete(r.Context(),
		middleware.UserID(r.Context()), chi.URLParam(r, "messageId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "message deleted successfully"})
}

func (h *Handler) AddReaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Emoji string `json:"emoji"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	re, err := h.service.AddReaction(r.Context(),
		middleware.UserID(r.Context()), chi.URLParam(r, "messageId"), req.Emoji)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]*Reaction{"reaction": re})
}

func (h *Handler) RemoveReaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Emoji string `json:"emoji"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.service.RemoveReaction(r.Context(),
		middleware.UserID(r.Context()), chi.URLParam(r, "messageId"), req.Emoji)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "reaction removed successfully"})
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := SearchOptions{
		Query:       q.Get("query"),
		WorkspaceID: q.Get("workspaceId"),
		ChannelID:   q.Get("channelId"),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Limit = n
		}
	}

	messages, err := h.service.Search(r.Context(), middleware.UserID(r.Context()), opts)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if messages == nil {
		messages = []*Message{}
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
	case errors.Is(err, ErrReactionExists):
		httpx.Error(w, http.StatusBadRequest, "reaction already exists")
	case errors.Is(err, ErrForbidden):
		httpx.Error(w, http.StatusForbidden, "you do not have access to this channel")
	case errors.Is(err, ErrNotAuthor):
		httpx.Error(w, http.StatusForbidden, "you can only modify your own messages")
	case errors.Is(err, ErrReactionNotFound):
		httpx.Error(w, http.StatusNotFound, "reaction not found")
	case errors.Is(err, ErrNotFound):
		httpx.Error(w, http.StatusNotFound, "message not found")
	default:
		httpx.Error(w, http.StatusInternalServerError, "request failed")
	}
}
