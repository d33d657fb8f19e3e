package presence

import (
	"encoding/json"
	"net/http"

	"minutepad/middleware"
	"minutepad/pkg/apperr"
	"minutepad/pkg/logger"
)

type Handler struct {
	Tracker *Tracker
}

func NewHandler(tracker *Tracker) *Handler {
	return &Handler{Tracker: tracker}
}

func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	docID := r.URL.Query().Get("docId")
	if docID == "" {
		http.Error(w, "Missing docId parameter", http.StatusBadRequest)
		return
	}

	if err := h.Tracker.Heartbeat(r.Context(), docID, middleware.ParticipantID(r)); err != nil {
		logger.Sugar.Errorf("Handler: Heartbeat failed for doc %s: %v", docID, err)
		http.Error(w, err.Error(), apperr.HTTPStatus(err))
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *Handler) Online(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	docID := r.URL.Query().Get("docId")
	if docID == "" {
		http.Error(w, "Missing docId parameter", http.StatusBadRequest)
		return
	}

	online, err := h.Tracker.ListOnline(r.Context(), docID)
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to list online participants for doc %s: %v", docID, err)
		http.Error(w, err.Error(), apperr.HTTPStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(online)
}
