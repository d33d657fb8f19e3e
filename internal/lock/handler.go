package lock

import (
	"encoding/json"
	"net/http"

	"minutepad/middleware"
	"minutepad/pkg/apperr"
	"minutepad/pkg/logger"
)

type Handler struct {
	Service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{Service: service}
}

type lockRequest struct {
	UnitID string `json:"unitId"`
}

func (h *Handler) Acquire(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req lockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UnitID == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.Service.Acquire(r.Context(), req.UnitID, middleware.ParticipantID(r))
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to acquire lock on %s: %v", req.UnitID, err)
		http.Error(w, err.Error(), apperr.HTTPStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req lockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UnitID == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.Service.Release(r.Context(), req.UnitID, middleware.ParticipantID(r)); err != nil {
		logger.Sugar.Errorf("Handler: Failed to release lock on %s: %v", req.UnitID, err)
		http.Error(w, err.Error(), apperr.HTTPStatus(err))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Lock released"))
}
