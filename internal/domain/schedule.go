package domain

import (
	"time"

	"github.com/google/uuid"
)

// SplitPrincipal divides principal into terms installment amounts.
// Every installment gets floor(principal/terms); the last one also absorbs
// principal mod terms, so the amounts always sum to principal.
func SplitPrincipal(principal int64, terms int) ([]int64, error) {
	if err := ValidateTermCount(terms); err != nil {
		return nil, err
	}
	if err := ValidateAmount(principal); err != nil {
		return nil, err
	}

	base := principal / int64(terms)
	remainder := principal % int64(terms)

	amounts := make([]int64, terms)
	for i := range amounts {
		amounts[i] = base
	}
	amounts[terms-1] += remainder

	return amounts, nil
}

// BuildSchedule creates a new loan and its installments. Installment k
// (1-based) is due k months after processedAt. Nothing is persisted here.
func BuildSchedule(
	borrowerID uuid.UUID,
	principal int64,
	currency Currency,
	terms int,
	processedAt time.Time,
	now time.Time,
) (*Loan, []ScheduledInstallment, error) {
	amounts, err := SplitPrincipal(principal, terms)
	if err != nil {
		return nil, nil, err
	}

	start := DateOf(processedAt)
	loan := NewLoan(borrowerID, principal, currency, terms, processedAt, now)

	installments := make([]ScheduledInstallment, terms)
	for i, amount := range amounts {
		installments[i] = ScheduledInstallment{
			ID:                uuid.New(),
			LoanID:            loan.ID,
			Amount:            amount,
			OutstandingAmount: amount,
			Currency:          currency,
			DueDate:           AddMonths(start, i+1),
			Status:            InstallmentStatusDue,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
	}

	return loan, installments, nil
}
