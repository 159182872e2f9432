package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"
	"github.com/sirupsen/logrus"

	"github.com/spbu-ds-practicum-2025/loan-service/internal/analytics"
	"github.com/spbu-ds-practicum-2025/loan-service/internal/domain"
)

// LoanService is the part of domain.LoanService the HTTP layer needs.
type LoanService interface {
	CreateLoan(ctx context.Context, borrowerID uuid.UUID, principal int64, currency domain.Currency, terms int, processedAt time.Time) (*domain.LoanDetails, error)
	ApplyRepayment(ctx context.Context, loanID uuid.UUID, amount int64, currency domain.Currency, receivedAt time.Time) (*domain.Loan, error)
	GetLoan(ctx context.Context, loanID uuid.UUID) (*domain.LoanDetails, error)
	ListBorrowerLoans(ctx context.Context, borrowerID uuid.UUID) ([]*domain.Loan, error)
	InstallmentsDueOn(ctx context.Context, date time.Time) ([]domain.ScheduledInstallment, error)
}

// OperationLister reads the loan operation log.
type OperationLister interface {
	ListLoanOperations(ctx context.Context, loanID string, limit int) ([]*analytics.Operation, error)
}

// HealthChecker reports whether a backing store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Handler serves the loan HTTP API.
type Handler struct {
	service    LoanService
	operations OperationLister
	health     HealthChecker
	clock      domain.Clock
	log        logrus.FieldLogger
}

// NewHandler creates a new Handler. Missing request dates resolve to the clock's today.
// operations may be nil when the operation log is disabled.
func NewHandler(service LoanService, operations OperationLister, clock domain.Clock, log logrus.FieldLogger) *Handler {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Handler{service: service, operations: operations, clock: clock, log: log}
}

// WithHealthCheck makes /healthz report the state of the given store.
func (h *Handler) WithHealthCheck(checker HealthChecker) *Handler {
	h.health = checker
	return h
}

// CreateLoan handles POST /api/v1/loans
func (h *Handler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var req CreateLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to parse request body: "+err.Error())
		return
	}
	if req.BorrowerID == uuid.Nil {
		sendErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "borrowerId is required")
		return
	}

	currency, err := domain.ParseCurrency(req.CurrencyCode)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	processedAt, err := h.dateOrToday(req.ProcessedAt)
	if err != nil {
		sendErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	details, err := h.service.CreateLoan(r.Context(), req.BorrowerID, req.Amount, currency, req.Terms, processedAt)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toLoanDetailsResponse(details))
}

// GetLoan handles GET /api/v1/loans/{loanId}
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	loanID, ok := bindUUIDParam(w, r, "loanId")
	if !ok {
		return
	}

	details, err := h.service.GetLoan(r.Context(), loanID)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toLoanDetailsResponse(details))
}

// ApplyRepayment handles POST /api/v1/loans/{loanId}/repayments
func (h *Handler) ApplyRepayment(w http.ResponseWriter, r *http.Request) {
	loanID, ok := bindUUIDParam(w, r, "loanId")
	if !ok {
		return
	}

	var req RepaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to parse request body: "+err.Error())
		return
	}

	currency, err := domain.ParseCurrency(req.CurrencyCode)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	receivedAt, err := h.dateOrToday(req.ReceivedAt)
	if err != nil {
		sendErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	loan, err := h.service.ApplyRepayment(r.Context(), loanID, req.Amount, currency, receivedAt)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toLoanResponse(loan))
}

// ListLoanOperations handles GET /api/v1/loans/{loanId}/operations?limit=N
func (h *Handler) ListLoanOperations(w http.ResponseWriter, r *http.Request) {
	if h.operations == nil {
		sendErrorResponse(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Operation log is disabled")
		return
	}

	loanID, ok := bindUUIDParam(w, r, "loanId")
	if !ok {
		return
	}

	var limit *int
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		sendErrorResponse(w, http.StatusBadRequest, "INVALID_ARGUMENT", fmt.Sprintf("Invalid format for parameter limit: %s", err))
		return
	}
	n := 0
	if limit != nil {
		if *limit < 1 {
			sendErrorResponse(w, http.StatusBadRequest, "INVALID_ARGUMENT", "limit must be positive")
			return
		}
		n = *limit
	}

	operations, err := h.operations.ListLoanOperations(r.Context(), loanID.String(), n)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	resp := ListResponse[OperationResponse]{Content: make([]OperationResponse, 0, len(operations))}
	for _, op := range operations {
		resp.Content = append(resp.Content, toOperationResponse(op))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListBorrowerLoans handles GET /api/v1/borrowers/{borrowerId}/loans
func (h *Handler) ListBorrowerLoans(w http.ResponseWriter, r *http.Request) {
	borrowerID, ok := bindUUIDParam(w, r, "borrowerId")
	if !ok {
		return
	}

	loans, err := h.service.ListBorrowerLoans(r.Context(), borrowerID)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	resp := ListResponse[LoanResponse]{Content: make([]LoanResponse, 0, len(loans))}
	for _, loan := range loans {
		resp.Content = append(resp.Content, toLoanResponse(loan))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListDueInstallments handles GET /api/v1/installments/due?date=YYYY-MM-DD
func (h *Handler) ListDueInstallments(w http.ResponseWriter, r *http.Request) {
	var date *string
	if err := runtime.BindQueryParameter("form", true, false, "date", r.URL.Query(), &date); err != nil {
		sendErrorResponse(w, http.StatusBadRequest, "INVALID_ARGUMENT", fmt.Sprintf("Invalid format for parameter date: %s", err))
		return
	}

	day, err := h.dateOrToday(date)
	if err != nil {
		sendErrorResponse(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}

	installments, err := h.service.InstallmentsDueOn(r.Context(), day)
	if err != nil {
		h.handleDomainError(w, err)
		return
	}

	resp := ListResponse[DueInstallmentResponse]{Content: make([]DueInstallmentResponse, 0, len(installments))}
	for _, installment := range installments {
		resp.Content = append(resp.Content, DueInstallmentResponse{
			LoanID:              installment.LoanID,
			InstallmentResponse: toInstallmentResponse(installment),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.Ping(r.Context()); err != nil {
			h.log.WithError(err).Warn("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// bindUUIDParam binds a required uuid path parameter, writing a 400 on failure.
func bindUUIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	var id uuid.UUID
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		sendErrorResponse(w, http.StatusBadRequest, "INVALID_ARGUMENT", fmt.Sprintf("Invalid format for parameter %s: %s", name, err))
		return uuid.Nil, false
	}
	return id, true
}

// dateOrToday parses a calendar date, accepting RFC3339 timestamps too.
// A nil or empty value means today.
func (h *Handler) dateOrToday(value *string) (time.Time, error) {
	if value == nil || *value == "" {
		return domain.DateOf(h.clock.Now()), nil
	}
	if t, err := time.Parse(domain.DateLayout, *value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, *value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", *value)
	}
	return domain.DateOf(t), nil
}
