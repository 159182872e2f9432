package httpapi

import (
	"time"

	"github.com/google/uuid"

	"github.com/spbu-ds-practicum-2025/loan-service/internal/analytics"
	"github.com/spbu-ds-practicum-2025/loan-service/internal/domain"
)

// CreateLoanRequest is the body of POST /api/v1/loans.
// Amounts are integer minor units.
type CreateLoanRequest struct {
	BorrowerID   uuid.UUID `json:"borrowerId"`
	Amount       int64     `json:"amount"`
	CurrencyCode string    `json:"currencyCode"`
	Terms        int       `json:"terms"`
	ProcessedAt  *string   `json:"processedAt,omitempty"` // YYYY-MM-DD or RFC3339, defaults to today
}

// RepaymentRequest is the body of POST /api/v1/loans/{loanId}/repayments.
type RepaymentRequest struct {
	Amount       int64   `json:"amount"`
	CurrencyCode string  `json:"currencyCode"`
	ReceivedAt   *string `json:"receivedAt,omitempty"` // YYYY-MM-DD or RFC3339, defaults to today
}

// LoanResponse is the JSON view of a loan.
type LoanResponse struct {
	ID                uuid.UUID `json:"id"`
	BorrowerID        uuid.UUID `json:"borrowerId"`
	Principal         int64     `json:"principal"`
	CurrencyCode      string    `json:"currencyCode"`
	Terms             int       `json:"terms"`
	OutstandingAmount int64     `json:"outstandingAmount"`
	Status            string    `json:"status"`
	ProcessedAt       time.Time `json:"processedAt"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// InstallmentResponse is the JSON view of a scheduled installment.
type InstallmentResponse struct {
	ID                uuid.UUID `json:"id"`
	Amount            int64     `json:"amount"`
	OutstandingAmount int64     `json:"outstandingAmount"`
	CurrencyCode      string    `json:"currencyCode"`
	DueDate           string    `json:"dueDate"`
	Status            string    `json:"status"`
}

// DueInstallmentResponse is an open installment listed by due date.
type DueInstallmentResponse struct {
	LoanID uuid.UUID `json:"loanId"`
	InstallmentResponse
}

// PaymentResponse is the JSON view of a received payment.
type PaymentResponse struct {
	ID           uuid.UUID `json:"id"`
	Amount       int64     `json:"amount"`
	CurrencyCode string    `json:"currencyCode"`
	ReceivedAt   string    `json:"receivedAt"`
}

// LoanDetailsResponse is a loan together with its schedule and payments.
type LoanDetailsResponse struct {
	LoanResponse
	Installments []InstallmentResponse `json:"installments"`
	Payments     []PaymentResponse     `json:"payments"`
}

// Amount is a decimal monetary value with currency.
type Amount struct {
	Value        string `json:"value"`
	CurrencyCode string `json:"currencyCode"`
}

// OperationResponse is one entry of the loan operation log.
type OperationResponse struct {
	ID                string  `json:"id"`
	Type              string  `json:"type"`
	Timestamp         string  `json:"timestamp"`
	Amount            Amount  `json:"amount"`
	OutstandingAmount Amount  `json:"outstandingAmount"`
	LoanStatus        string  `json:"loanStatus"`
	InstallmentID     *string `json:"installmentId,omitempty"`
	DueDate           *string `json:"dueDate,omitempty"`
}

// ListResponse wraps collection results.
type ListResponse[T any] struct {
	Content []T `json:"content"`
}

// BaseError is the error body returned for every failed request.
type BaseError struct {
	Code        string    `json:"code"`
	Description *string   `json:"description,omitempty"`
	Id          uuid.UUID `json:"id"`
}

func toLoanResponse(loan *domain.Loan) LoanResponse {
	return LoanResponse{
		ID:                loan.ID,
		BorrowerID:        loan.BorrowerID,
		Principal:         loan.Principal,
		CurrencyCode:      string(loan.Currency),
		Terms:             loan.TermCount,
		OutstandingAmount: loan.OutstandingAmount,
		Status:            string(loan.Status),
		ProcessedAt:       loan.ProcessedAt,
		CreatedAt:         loan.CreatedAt,
		UpdatedAt:         loan.UpdatedAt,
	}
}

func toInstallmentResponse(installment domain.ScheduledInstallment) InstallmentResponse {
	return InstallmentResponse{
		ID:                installment.ID,
		Amount:            installment.Amount,
		OutstandingAmount: installment.OutstandingAmount,
		CurrencyCode:      string(installment.Currency),
		DueDate:           installment.DueDate.Format(domain.DateLayout),
		Status:            string(installment.Status),
	}
}

func toLoanDetailsResponse(details *domain.LoanDetails) LoanDetailsResponse {
	resp := LoanDetailsResponse{
		LoanResponse: toLoanResponse(details.Loan),
		Installments: make([]InstallmentResponse, 0, len(details.Installments)),
		Payments:     make([]PaymentResponse, 0, len(details.Payments)),
	}
	for _, installment := range details.Installments {
		resp.Installments = append(resp.Installments, toInstallmentResponse(installment))
	}
	for _, payment := range details.Payments {
		resp.Payments = append(resp.Payments, PaymentResponse{
			ID:           payment.ID,
			Amount:       payment.Amount,
			CurrencyCode: string(payment.Currency),
			ReceivedAt:   payment.ReceivedAt.Format(domain.DateLayout),
		})
	}
	return resp
}

func toOperationResponse(op *analytics.Operation) OperationResponse {
	resp := OperationResponse{
		ID:                op.ID,
		Type:              op.OperationType,
		Timestamp:         op.Timestamp.UTC().Format(time.RFC3339),
		Amount:            Amount{Value: op.Amount.StringFixed(2), CurrencyCode: op.Currency},
		OutstandingAmount: Amount{Value: op.Outstanding.StringFixed(2), CurrencyCode: op.Currency},
		LoanStatus:        op.LoanStatus,
	}
	if op.InstallmentID != "" {
		resp.InstallmentID = &op.InstallmentID
	}
	if op.DueDate != "" {
		resp.DueDate = &op.DueDate
	}
	return resp
}
