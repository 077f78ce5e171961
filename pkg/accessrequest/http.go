package accessrequest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/opalhealth/backend/pkg/common/logger"
	"github.com/opalhealth/backend/pkg/common/models"
	"github.com/opalhealth/backend/pkg/common/validation"
	"github.com/opalhealth/backend/pkg/relationships"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/access-requests", h.handleCreate).Methods(http.MethodPost)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req models.AccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	result, err := h.service.CreateAccessRequest(r.Context(), req)
	if err != nil {
		var fieldErrs validation.FieldErrors
		switch {
		case errors.As(err, &fieldErrs):
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"errors": fieldErrs})
		case errors.Is(err, relationships.ErrTypeNotFound),
			errors.Is(err, relationships.ErrPatientNotFound),
			errors.Is(err, relationships.ErrCaregiverNotFound):
			writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": err.Error()})
		case errors.Is(err, relationships.ErrDuplicateRelationship),
			errors.Is(err, relationships.ErrDuplicateMRN):
			writeJSON(w, http.StatusConflict, map[string]interface{}{"error": err.Error()})
		case errors.Is(err, ErrCaregiverNotMirrored):
			logger.Log.WithError(err).Error("access request hit a caller contract violation")
			writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{"error": err.Error()})
		default:
			logger.Log.WithError(err).Error("failed to create access request")
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "failed to create access request"})
		}
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
