package channel

import (
	"encoding/json"
	"errors"
	"net/http"

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

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ch, err := h.service.Create(r.Context(),
		middleware.UserID(r.Context()), chi.URLParam(r, "workspaceId"), &req)
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation), errors.Is(err, ErrNameTaken):
			httpx.Error(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrForbidden):
			httpx.Error(w, http.StatusForbidden, "you are not a member of this workspace")
		default:
			httpx.Error(w, http.StatusInternalServerError, "failed to create channel")
		}
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]*Channel{"channel": ch})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	channels, err := h.service.List(r.Context(),
		middleware.UserID(r.Context()), chi.URLParam(r, "workspaceId"))
	if err != nil {
		if errors.Is(err, ErrForbidden) {
			httpx.Error(w, http.StatusForbidden, "you are not a member of this workspace")
			return
		}
		httpx.Error(w, http.StatusInternalServerError, "failed to fetch channels")
		return
	}
	if channels == nil {
		channels = []Channel{}
	}
	httpx.JSON(w, http.StatusOK, map[string][]Channel{"channels": channels})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ch, err := h.service.Get(r.Context(),
		middleware.UserID(r.Context()), chi.URLParam(r, "channelId"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "channel not found")
			return
		}
		httpx.Error(w, http.StatusInternalServerError, "failed to fetch channel")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]*Channel{"channel": ch})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var upd UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ch, err := h.service.Update(r.Context(),
		middleware.UserID(r.Context()), chi.URLParam(r, "channelId"), upd)
	if err != nil {
		switch {
		case errors.Is(err, ErrForbidden):
			httpx.Error(w, http.StatusForbidden, "only channel admins can update channel")
		case errors.Is(err, ErrNotFound):
			httpx.Error(w, http.StatusNotFound, "channel not found")
		default:
			httpx.Error(w, http.StatusInternalServerError, "failed to update channel")
		}
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]*Channel{"channel": ch})
}

func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	member, err := h.service.Join(r.Context(),
		middleware.UserID(r.Context()), chi.URLParam(r, "channelId"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			httpx.Error(w, http.StatusNotFound, "channel not found")
		case errors.Is(err, ErrForbidden):
			httpx.Error(w, http.StatusForbidden, "you are not a member of this workspace")
		case errors.Is(err, ErrAlreadyMember):
			httpx.Error(w, http.StatusBadRequest, "already a member of this channel")
		default:
			httpx.Error(w, http.StatusInternalServerError, "failed to join channel")
		}
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]*Member{"member": member})
}

func (h *Handler) Leave(w http.ResponseWriter, r *http.Request) {
	err := h.service.Leave(r.Context(),
		middleware.UserID(r.Context()), chi.URLParam(r, "channelId"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			httpx.Error(w, http.StatusNotFound, "channel not found")
		case errors.Is(err, ErrGeneralChannel):
			httpx.Error(w, http.StatusBadRequest, "cannot leave general channel")
		default:
			httpx.Error(w, http.StatusInternalServerError, "failed to leave channel")
		}
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "left channel successfully"})
}
