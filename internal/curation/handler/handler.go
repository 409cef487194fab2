// Package handler exposes the curation mutations and queries as a JSON HTTP
// API. It is the mutation layer that triggers domain event publication; the
// response never reflects event delivery outcome.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/curation-tools/corpus-platform/internal/curation"
	"github.com/curation-tools/corpus-platform/internal/surfaces"
	apperrors "github.com/curation-tools/corpus-platform/pkg/errors"
	"github.com/curation-tools/corpus-platform/pkg/logger"
)

type Handler struct {
	service *curation.Service
	logger  *slog.Logger
}

func New(service *curation.Service) *Handler {
	return &Handler{
		service: service,
		logger:  slog.Default().With("component", "curation-handler"),
	}
}

// Routes registers all endpoints on the mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/items", h.ApproveItem)
	mux.HandleFunc("PUT /api/v1/items/{externalId}", h.UpdateItem)
	mux.HandleFunc("DELETE /api/v1/items/{externalId}", h.RemoveItem)
	mux.HandleFunc("POST /api/v1/items/reject", h.RejectItem)
	mux.HandleFunc("POST /api/v1/schedule", h.ScheduleItem)
	mux.HandleFunc("DELETE /api/v1/schedule/{externalId}", h.UnscheduleItem)
	mux.HandleFunc("PUT /api/v1/schedule/{externalId}", h.RescheduleItem)
	mux.HandleFunc("GET /api/v1/schedule", h.ListScheduledItems)
	mux.HandleFunc("GET /api/v1/surfaces", h.ListSurfaces)
}

func (h *Handler) ApproveItem(w http.ResponseWriter, r *http.Request) {
	var req curation.ApproveItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.service.ApproveItem(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, r, "approve item failed", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, item)
}

func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req curation.UpdateItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.service.UpdateItem(r.Context(), r.PathValue("externalId"), &req)
	if err != nil {
		h.writeServiceError(w, r, "update item failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, item)
}

func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.RemoveItem(r.Context(), r.PathValue("externalId"))
	if err != nil {
		h.writeServiceError(w, r, "remove item failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, item)
}

func (h *Handler) RejectItem(w http.ResponseWriter, r *http.Request) {
	var req curation.RejectItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.service.RejectItem(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, r, "reject item failed", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, item)
}

func (h *Handler) ScheduleItem(w http.ResponseWriter, r *http.Request) {
	var req curation.ScheduleItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.service.ScheduleItem(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, r, "schedule item failed", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) UnscheduleItem(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.UnscheduleItem(r.Context(), r.PathValue("externalId"))
	if err != nil {
		h.writeServiceError(w, r, "unschedule item failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) RescheduleItem(w http.ResponseWriter, r *http.Request) {
	var req curation.RescheduleItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.service.RescheduleItem(r.Context(), r.PathValue("externalId"), &req)
	if err != nil {
		h.writeServiceError(w, r, "reschedule item failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) ListScheduledItems(w http.ResponseWriter, r *http.Request) {
	surfaceGUID := r.URL.Query().Get("surface")
	date := r.URL.Query().Get("date")
	items, err := h.service.ListScheduledItems(r.Context(), surfaceGUID, date)
	if err != nil {
		h.writeServiceError(w, r, "list scheduled items failed", err)
		return
	}
	if items == nil {
		items = []curation.ScheduledItem{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"surface": surfaceGUID,
		"date":    date,
		"items":   items,
	})
}

func (h *Handler) ListSurfaces(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"surfaces": surfaces.All()})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return false
	}
	return true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	statusCode := apperrors.HTTPStatusCode(err)
	log := logger.FromContext(r.Context())
	if statusCode >= 500 {
		log.Error(msg, "error", err, "status_code", statusCode)
	} else {
		log.Warn(msg, "error", err, "status_code", statusCode)
	}
	h.writeJSON(w, statusCode, map[string]string{"error": err.Error()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}
