package analytics

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/spbu-ds-practicum-2025/loan-service/internal/domain"
)

// Operation is one row of the loan operation log.
type Operation struct {
	ID            string
	LoanID        string
	BorrowerID    string
	OperationType string
	Timestamp     time.Time
	Amount        decimal.Decimal
	Outstanding   decimal.Decimal
	Currency      string
	LoanStatus    string
	InstallmentID string // Only populated for installment.due
	DueDate       string // Only populated for installment.due
}

// NewOperation flattens a domain event into an operation row.
func NewOperation(event domain.Event) *Operation {
	op := &Operation{
		ID:            event.ID.String(),
		LoanID:        event.LoanID.String(),
		BorrowerID:    event.BorrowerID.String(),
		OperationType: string(event.Type),
		Timestamp:     event.OccurredAt.UTC(),
		Amount:        decimal.New(event.Amount, -2),
		Outstanding:   decimal.New(event.OutstandingAmount, -2),
		Currency:      string(event.Currency),
		LoanStatus:    string(event.LoanStatus),
	}
	if event.InstallmentID != nil {
		op.InstallmentID = event.InstallmentID.String()
	}
	if event.DueDate != nil {
		op.DueDate = event.DueDate.Format(domain.DateLayout)
	}
	return op
}
