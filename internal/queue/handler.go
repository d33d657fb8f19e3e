package queue

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

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := h.Service.Submit(r.Context(), middleware.ParticipantID(r), req)
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to submit change for unit %s: %v", req.UnitID, err)
		http.Error(w, err.Error(), apperr.HTTPStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	unitID := r.URL.Query().Get("unitId") // Empty means sweep every pending unit

	processed, err := h.Service.Process(r.Context(), middleware.ParticipantID(r), unitID)
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to process queue: %v", err)
		http.Error(w, err.Error(), apperr.HTTPStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"processed": processed})
}

func (h *Handler) Append(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req AppendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	fp, err := h.Service.AppendPriority(r.Context(), middleware.ParticipantID(r), req)
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to append priority content: %v", err)
		http.Error(w, err.Error(), apperr.HTTPStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"fingerprint": fp})
}
