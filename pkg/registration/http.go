package registration

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
	r.HandleFunc("/registration/{code}/verify", h.handleSendVerification).Methods(http.MethodPost)
	r.HandleFunc("/registration/{code}/verify/check", h.handleCheckVerification).Methods(http.MethodPost)
	r.HandleFunc("/registration/{code}/register", h.handleRedeem).Methods(http.MethodPost)
}

func (h *Handler) handleSendVerification(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	if err := h.service.SendVerificationCode(r.Context(), code); err != nil {
		writeRegistrationError(w, err, "failed to send verification code")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCheckVerification(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	var payload struct {
		VerificationCode string `json:"verification_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if payload.VerificationCode == "" {
		http.Error(w, "verification_code is required", http.StatusBadRequest)
		return
	}
	if err := h.service.VerifyCode(r.Context(), code, payload.VerificationCode); err != nil {
		writeRegistrationError(w, err, "failed to verify code")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req models.RedemptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	req.Code = mux.Vars(r)["code"]

	rel, err := h.service.Redeem(r.Context(), req)
	if err != nil {
		writeRegistrationError(w, err, "failed to complete registration")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"relationship": rel})
}

func writeRegistrationError(w http.ResponseWriter, err error, message string) {
	var fieldErrs validation.FieldErrors
	switch {
	case errors.As(err, &fieldErrs):
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"errors": fieldErrs})
	case errors.Is(err, relationships.ErrCodeNotFound),
		errors.Is(err, relationships.ErrRelationshipNotFound):
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "registration code not found"})
	case errors.Is(err, ErrVerificationRequired):
		writeJSON(w, http.StatusForbidden, map[string]interface{}{"error": err.Error()})
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
