package workspace

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

	ws, err := h.service.Create(r.Context(), middleware.UserID(r.Context()), &req)
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation), errors.Is(err, ErrSlugTaken):
			httpx.Error(w, http.StatusBadRequest, err.Error())
		default:
			httpx.Error(w, http.StatusInternalServerError, "failed to create workspace")
		}
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]*Workspace{"workspace": ws})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	workspaces, err := h.service.List(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "failed to fetch workspaces")
		return
	}
	if workspaces == nil {
		workspaces = []Workspace{}
	}
	httpx.JSON(w, http.StatusOK, map[string][]Workspace{"workspaces": workspaces})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ws, err := h.service.Get(r.Context(),
		middleware.UserID(r.Context()), chi.URLParam(r, "workspaceId"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "workspace not found")
			return
		}
		httpx.Error(w, http.StatusInternalServerError, "failed to fetch workspace")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]*Workspace{"workspace": ws})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var upd UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ws, err := h.service.Update(r.Context(),
		middleware.UserID(r.Context()), chi.URLParam(r, "workspaceId"), upd)
	if err != nil {
		switch {
		case errors.Is(err, ErrForbidden):
			httpx.Error(w, http.StatusForbidden, "only admins and owners can update workspace")
		case errors.Is(err, ErrNotFound):
			httpx.Error(w, http.StatusNotFound, "workspace not found")
		default:
			httpx.Error(w, http.StatusInternalServerError, "failed to update workspace")
		}
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]*Workspace{"workspace": ws})
}

func (h *Handler) Invite(w http.ResponseWriter, r *http.Request) {
	var req InviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	member, err := h.service.Invite(r.Context(),
		middleware.UserID(r.Context()), chi.URLParam(r, "workspaceId"), &req)
	if err != nil {
		switch {
		case errors.Is(err, ErrForbidden):
			httpx.Error(w, http.StatusForbidden, "only admins can invite users")
		case errors.Is(err, ErrUserNotFound):
			httpx.Error(w, http.StatusNotFound, "user not found")
		case errors.Is(err, ErrAlreadyMember):
			httpx.Error(w, http.StatusBadRequest, "user is already a member")
		default:
			httpx.Error(w, http.StatusInternalServerError, "failed to invite user")
		}
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]*Member{"member": member})
}
