package relationships

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/opalhealth/backend/pkg/common/logger"
	"github.com/opalhealth/backend/pkg/common/models"
	"github.com/opalhealth/backend/pkg/common/validation"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/relationship-types", h.handleCreateType).Methods(http.MethodPost)
	r.HandleFunc("/relationship-types", h.handleListTypes).Methods(http.MethodGet)
	r.HandleFunc("/relationship-types/{id}", h.handleGetType).Methods(http.MethodGet)
	r.HandleFunc("/relationship-types/{id}", h.handleUpdateType).Methods(http.MethodPut)
	r.HandleFunc("/relationship-types/{id}", h.handleDeleteType).Methods(http.MethodDelete)
	r.HandleFunc("/patients/{id}/relationship-types", h.handleValidTypes).Methods(http.MethodGet)
	r.HandleFunc("/caregivers", h.handleFindCaregiver).Methods(http.MethodGet)
	r.HandleFunc("/relationships", h.handleListRelationships).Methods(http.MethodGet)
	r.HandleFunc("/relationships/{id}", h.handleGetRelationship).Methods(http.MethodGet)
	r.HandleFunc("/relationships/{id}/status", h.handleUpdateStatus).Methods(http.MethodPatch)
}

func (h *Handler) handleCreateType(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRelationshipTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	created, err := h.service.CreateType(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "failed to create relationship type")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"relationship_type": created})
}

func (h *Handler) handleListTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.service.ListTypes(r.Context())
	if err != nil {
		writeDomainError(w, err, "failed to list relationship types")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": types})
}

func (h *Handler) handleGetType(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid relationship type id", http.StatusBadRequest)
		return
	}
	t, err := h.service.GetType(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "failed to get relationship type")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"relationship_type": t})
}

func (h *Handler) handleUpdateType(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid relationship type id", http.StatusBadRequest)
		return
	}
	var req models.CreateRelationshipTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	updated, err := h.service.UpdateType(r.Context(), id, req)
	if err != nil {
		writeDomainError(w, err, "failed to update relationship type")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"relationship_type": updated})
}

func (h *Handler) handleDeleteType(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid relationship type id", http.StatusBadRequest)
		return
	}
	if err := h.service.DeleteType(r.Context(), id); err != nil {
		writeDomainError(w, err, "failed to delete relationship type")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleValidTypes(w http.ResponseWriter, r *http.Request) {
	patientID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid patient id", http.StatusBadRequest)
		return
	}
	today := time.Now().UTC()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			http.Error(w, "invalid date; expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		today = parsed
	}
	types, err := h.service.ValidTypesForPatient(r.Context(), patientID, today)
	if err != nil {
		writeDomainError(w, err, "failed to list valid relationship types")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": types})
}

func (h *Handler) handleFindCaregiver(w http.ResponseWriter, r *http.Request) {
	caregiver, err := h.service.FindCaregiver(r.Context(), r.URL.Query().Get("email"), r.URL.Query().Get("phone"))
	if err != nil {
		writeDomainError(w, err, "failed to find caregiver")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"caregiver": caregiver})
}

func (h *Handler) handleListRelationships(w http.ResponseWriter, r *http.Request) {
	filter := RelationshipFilter{Limit: parseLimit(r, 50)}
	if raw := r.URL.Query().Get("patient_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid patient_id", http.StatusBadRequest)
			return
		}
		filter.PatientID = &id
	}
	if raw := r.URL.Query().Get("caregiver_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid caregiver_id", http.StatusBadRequest)
			return
		}
		filter.CaregiverID = &id
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		filter.Status = models.RelationshipStatus(raw)
	}
	items, err := h.service.ListRelationships(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err, "failed to list relationships")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (h *Handler) handleGetRelationship(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid relationship id", http.StatusBadRequest)
		return
	}
	rel, err := h.service.GetRelationship(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "failed to get relationship")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"relationship": rel})
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid relationship id", http.StatusBadRequest)
		return
	}
	var req models.UpdateRelationshipStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Status == "" {
		http.Error(w, "status is required", http.StatusBadRequest)
		return
	}
	updated, err := h.service.UpdateStatus(r.Context(), id, req)
	if err != nil {
		writeDomainError(w, err, "failed to update relationship status")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"relationship": updated})
}

func parseLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	if v, err := strconv.Atoi(raw); err == nil && v > 0 {
		return v
	}
	return fallback
}

// writeDomainError maps service errors to HTTP responses. Validation
// failures carry their field errors; everything unexpected is logged and
// hidden behind a generic message.
func writeDomainError(w http.ResponseWriter, err error, message string) {
	var fieldErrs validation.FieldErrors
	if errors.As(err, &fieldErrs) {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"errors": fieldErrs})
		return
	}

	switch {
	case errors.Is(err, ErrTypeNotFound),
		errors.Is(err, ErrPatientNotFound),
		errors.Is(err, ErrCaregiverNotFound),
		errors.Is(err, ErrRelationshipNotFound),
		errors.Is(err, ErrCodeNotFound):
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": err.Error()})
	case errors.Is(err, ErrDuplicateRestrictedRole),
		errors.Is(err, ErrProtectedRoleDeletion),
		errors.Is(err, ErrProtectedRoleChange),
		errors.Is(err, ErrDuplicateRelationship),
		errors.Is(err, ErrDuplicateMRN):
		writeJSON(w, http.StatusConflict, map[string]interface{}{"error": err.Error()})
	default:
		logger.Log.WithError(err).Error(message)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": message})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
