package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/spbu-ds-practicum-2025/loan-service/internal/domain"
)

// handleDomainError converts service errors to HTTP responses
func (h *Handler) handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrLoanNotFound):
		sendErrorResponse(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidTermCount),
		errors.Is(err, domain.ErrInvalidCurrency),
		errors.Is(err, domain.ErrCurrencyMismatch):
		sendErrorResponse(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
	case errors.Is(err, domain.ErrAlreadyRepaid):
		sendErrorResponse(w, http.StatusConflict, "ALREADY_REPAID", err.Error())
	case errors.Is(err, domain.ErrOverpaymentExceedsOutstanding):
		sendErrorResponse(w, http.StatusConflict, "OVERPAYMENT", err.Error())
	case errors.Is(err, domain.ErrNoMatchingInstallment):
		h.log.WithError(err).Error("schedule integrity error")
		sendErrorResponse(w, http.StatusInternalServerError, "SCHEDULE_MISMATCH", err.Error())
	default:
		h.log.WithError(err).Error("request failed")
		sendErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}

// sendErrorResponse sends an error response in the expected format
func sendErrorResponse(w http.ResponseWriter, statusCode int, code, description string) {
	errorResp := BaseError{
		Code:        code,
		Description: &description,
		Id:          uuid.New(),
	}
	writeJSON(w, statusCode, errorResp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Warn("failed to encode response")
	}
}
