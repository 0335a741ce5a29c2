package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cercabus/cercabus/internal/api/models"
	"github.com/cercabus/cercabus/internal/api/response"
	"github.com/cercabus/cercabus/internal/watch"
)

// WatchHandler handles watch CRUD endpoints.
type WatchHandler struct {
	service *watch.Service
}

// NewWatchHandler creates a new WatchHandler.
func NewWatchHandler(service *watch.Service) *WatchHandler {
	return &WatchHandler{service: service}
}

// ListWatches handles GET /v1/watches - list saved watches.
func (h *WatchHandler) ListWatches(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > 100 {
			response.BadRequest(w, r, "limit must be between 1 and 100", nil)
			return
		}
		limit = v
	}

	watches, err := h.service.List(r.Context(), limit)
	if err != nil {
		response.InternalError(w, r, "failed to list watches")
		return
	}

	response.JSON(w, r, http.StatusOK, watches)
}

// CreateWatch handles POST /v1/watches - create a watch.
func (h *WatchHandler) CreateWatch(w http.ResponseWriter, r *http.Request) {
	var input models.WatchCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	created, err := h.service.Create(r.Context(), &input)
	if err != nil {
		var vErr *watch.ValidationError
		if errors.As(err, &vErr) {
			response.BadRequest(w, r, "invalid watch", vErr.Errors)
			return
		}
		response.InternalError(w, r, "failed to create watch")
		return
	}

	location := fmt.Sprintf("/v1/watches/%s", created.ID)
	response.Created(w, r, location, created)
}

// GetWatch handles GET /v1/watches/{watchId} - get a watch.
func (h *WatchHandler) GetWatch(w http.ResponseWriter, r *http.Request) {
	watchID := chi.URLParam(r, "watchId")
	if watchID == "" {
		response.BadRequest(w, r, "watchId is required", nil)
		return
	}

	result, err := h.service.Get(r.Context(), watchID)
	if err != nil {
		if errors.Is(err, watch.ErrWatchNotFound) {
			response.NotFound(w, r, "watch not found")
			return
		}
		response.InternalError(w, r, "failed to get watch")
		return
	}

	response.JSON(w, r, http.StatusOK, result)
}

// UpdateWatch handles PATCH /v1/watches/{watchId} - update a watch.
func (h *WatchHandler) UpdateWatch(w http.ResponseWriter, r *http.Request) {
	watchID := chi.URLParam(r, "watchId")
	if watchID == "" {
		response.BadRequest(w, r, "watchId is required", nil)
		return
	}

	var input models.WatchUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	updated, err := h.service.Update(r.Context(), watchID, &input)
	if err != nil {
		var vErr *watch.ValidationError
		switch {
		case errors.Is(err, watch.ErrWatchNotFound):
			response.NotFound(w, r, "watch not found")
		case errors.As(err, &vErr):
			response.BadRequest(w, r, "invalid watch", vErr.Errors)
		default:
			response.InternalError(w, r, "failed to update watch")
		}
		return
	}

	response.JSON(w, r, http.StatusOK, updated)
}

// DeleteWatch handles DELETE /v1/watches/{watchId} - delete a watch.
func (h *WatchHandler) DeleteWatch(w http.ResponseWriter, r *http.Request) {
	watchID := chi.URLParam(r, "watchId")
	if watchID == "" {
		response.BadRequest(w, r, "watchId is required", nil)
		return
	}

	if err := h.service.Delete(r.Context(), watchID); err != nil {
		if errors.Is(err, watch.ErrWatchNotFound) {
			response.NotFound(w, r, "watch not found")
			return
		}
		response.InternalError(w, r, "failed to delete watch")
		return
	}

	response.NoContent(w, r)
}
