package updates

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

// GetUpdates serves the polling endpoint. With unitId it reports a single
// unit, skipping content when the caller's fingerprint is still current;
// with docId it reports the whole document state.
func (h *Handler) GetUpdates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	participantID := middleware.ParticipantID(r)

	if unitID := r.URL.Query().Get("unitId"); unitID != "" {
		update, err := h.Service.ForUnit(r.Context(), participantID, unitID, r.URL.Query().Get("since"))
		if err != nil {
			logger.Sugar.Errorf("Handler: Failed to fetch updates for unit %s: %v", unitID, err)
			http.Error(w, err.Error(), apperr.HTTPStatus(err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(update)
		return
	}

	docID := r.URL.Query().Get("docId")
	if docID == "" {
		http.Error(w, "Missing unitId or docId parameter", http.StatusBadRequest)
		return
	}

	update, err := h.Service.ForDocument(r.Context(), participantID, docID)
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to fetch updates for doc %s: %v", docID, err)
		http.Error(w, err.Error(), apperr.HTTPStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(update)
}
