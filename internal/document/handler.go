package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"minutepad/internal/document/model"
	"minutepad/internal/document/service"
	"minutepad/middleware"
	"minutepad/pkg/apperr"
	"minutepad/pkg/logger"
)

type DocumentHandler struct {
	Service *service.DocumentService
}

func NewDocumentHandler(service *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{Service: service}
}

func (h *DocumentHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	participantID := middleware.ParticipantID(r)

	var req model.CreateDocRequest
	_ = json.NewDecoder(r.Body).Decode(&req) // Ignore error, default to empty

	resp, err := h.Service.CreateDocument(r.Context(), participantID, req)
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to create document: %v", err)
		http.Error(w, err.Error(), apperr.HTTPStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	docID := r.URL.Query().Get("docId")
	if docID == "" {
		http.Error(w, "Missing docId parameter", http.StatusBadRequest)
		return
	}

	if err := h.Service.DeleteDocument(r.Context(), middleware.ParticipantID(r), docID); err != nil {
		logger.Sugar.Errorf("Handler: Failed to delete document %s: %v", docID, err)
		http.Error(w, err.Error(), apperr.HTTPStatus(err))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Document deleted"))
}

func (h *DocumentHandler) FinalizeDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	docID := r.URL.Query().Get("docId")
	if docID == "" {
		http.Error(w, "Missing docId parameter", http.StatusBadRequest)
		return
	}

	if err := h.Service.Finalize(r.Context(), middleware.ParticipantID(r), docID); err != nil {
		logger.Sugar.Errorf("Handler: Failed to finalize document %s: %v", docID, err)
		http.Error(w, err.Error(), apperr.HTTPStatus(err))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Document finalized"))
}

func (h *DocumentHandler) Invite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req model.InviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.Service.Invite(r.Context(), middleware.ParticipantID(r), req); err != nil {
		logger.Sugar.Errorf("Handler: Failed to invite collaborator: %v", err)
		http.Error(w, err.Error(), apperr.HTTPStatus(err))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Collaborator added"))
}

func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	docs, err := h.Service.ListDocuments(r.Context(), middleware.ParticipantID(r))
	if err != nil {
		logger.Sugar.Errorf("Error fetching documents: %v", err)
		http.Error(w, err.Error(), apperr.HTTPStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(docs)
}

func (h *DocumentHandler) GetParagraphs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	docID := r.URL.Query().Get("docId")
	if docID == "" {
		http.Error(w, "Missing docId parameter", http.StatusBadRequest)
		return
	}

	paras, err := h.Service.ListParagraphs(r.Context(), middleware.ParticipantID(r), docID)
	if err != nil {
		logger.Sugar.Errorf("Error fetching paragraphs for doc %s: %v", docID, err)
		http.Error(w, err.Error(), apperr.HTTPStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(paras)
}

func (h *DocumentHandler) AddParagraph(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req model.AddParagraphRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	p, err := h.Service.AddParagraph(r.Context(), middleware.ParticipantID(r), req)
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to add paragraph: %v", err)
		http.Error(w, err.Error(), apperr.HTTPStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(p)
}

func (h *DocumentHandler) DeleteParagraph(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	paragraphID := r.URL.Query().Get("paragraphId")
	if paragraphID == "" {
		http.Error(w, "Missing paragraphId parameter", http.StatusBadRequest)
		return
	}

	if err := h.Service.DeleteParagraph(r.Context(), middleware.ParticipantID(r), paragraphID); err != nil {
		logger.Sugar.Errorf("Handler: Failed to delete paragraph %s: %v", paragraphID, err)
		http.Error(w, err.Error(), apperr.HTTPStatus(err))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Paragraph deleted"))
}

func (h *DocumentHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req model.ReorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.Service.Reorder(r.Context(), middleware.ParticipantID(r), req); err != nil {
		logger.Sugar.Errorf("Handler: Failed to reorder paragraphs: %v", err)
		http.Error(w, err.Error(), apperr.HTTPStatus(err))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Paragraphs reordered"))
}

func (h *DocumentHandler) Save(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req model.SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := h.Service.Save(r.Context(), middleware.ParticipantID(r), req)
	if err != nil {
		logger.Sugar.Errorf("Error saving unit %s: %v", req.UnitID, err)
		http.Error(w, err.Error(), apperr.HTTPStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *DocumentHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	unitID := r.URL.Query().Get("unitId")
	if unitID == "" {
		http.Error(w, "Missing unitId parameter", http.StatusBadRequest)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	snaps, err := h.Service.History(r.Context(), middleware.ParticipantID(r), unitID, limit)
	if err != nil {
		logger.Sugar.Errorf("Error fetching history for unit %s: %v", unitID, err)
		http.Error(w, err.Error(), apperr.HTTPStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snaps)
}
