package domain

import (
	"time"

	"github.com/google/uuid"
)

// Loan represents an installment loan owned by a borrower.
// Amounts are integers in the smallest currency unit.
type Loan struct {
	ID                uuid.UUID  // Unique identifier of the loan
	BorrowerID        uuid.UUID  // Borrower the loan was originated for
	Principal         int64      // Total amount borrowed
	Currency          Currency   // Currency tag, carried but never converted
	TermCount         int        // Number of monthly installments (3 or 6)
	OutstandingAmount int64      // Principal minus everything received so far
	Status            LoanStatus // DUE until the balance reaches zero, then REPAID
	ProcessedAt       time.Time  // Origination date; installment due dates count from it
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ScheduledInstallment is one planned repayment of a loan's principal.
// It references its loan by id and is never added or removed after origination.
type ScheduledInstallment struct {
	ID                uuid.UUID
	LoanID            uuid.UUID
	Amount            int64 // Amount due for this period
	OutstandingAmount int64 // Unpaid part of Amount, never increases
	Currency          Currency
	DueDate           time.Time // Calendar date (UTC midnight)
	Status            InstallmentStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ReceivedPayment is an immutable record of money received against a loan.
type ReceivedPayment struct {
	ID         uuid.UUID
	LoanID     uuid.UUID
	Amount     int64
	Currency   Currency
	ReceivedAt time.Time
	CreatedAt  time.Time
}

// LoanDetails bundles a loan with its child collections.
type LoanDetails struct {
	Loan         *Loan
	Installments []ScheduledInstallment // ordered by due date
	Payments     []ReceivedPayment      // ordered by received date
}

// LoanStatus represents the lifecycle state of a loan.
type LoanStatus string

const (
	// LoanStatusDue indicates the loan still has an outstanding balance
	LoanStatusDue LoanStatus = "DUE"

	// LoanStatusRepaid indicates the loan is closed and accepts no payments
	LoanStatusRepaid LoanStatus = "REPAID"
)

// InstallmentStatus represents the repayment state of a single installment.
type InstallmentStatus string

const (
	InstallmentStatusDue     InstallmentStatus = "DUE"
	InstallmentStatusPartial InstallmentStatus = "PARTIAL"
	InstallmentStatusRepaid  InstallmentStatus = "REPAID"
)

// Currency is an opaque currency tag. Only equality and storage are defined on it.
type Currency string

const (
	CurrencyTRY Currency = "TRY"
	CurrencyEUR Currency = "EUR"
	CurrencyLEU Currency = "LEU"
	CurrencyUSD Currency = "USD"
)

// SupportedCurrencies lists every accepted currency tag.
var SupportedCurrencies = []Currency{CurrencyTRY, CurrencyEUR, CurrencyLEU, CurrencyUSD}

// NewLoan creates a loan in DUE status with the whole principal outstanding.
func NewLoan(borrowerID uuid.UUID, principal int64, currency Currency, termCount int, processedAt, now time.Time) *Loan {
	return &Loan{
		ID:                uuid.New(),
		BorrowerID:        borrowerID,
		Principal:         principal,
		Currency:          currency,
		TermCount:         termCount,
		OutstandingAmount: principal,
		Status:            LoanStatusDue,
		ProcessedAt:       processedAt,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// NewReceivedPayment creates the audit record for an incoming payment.
func NewReceivedPayment(loanID uuid.UUID, amount int64, currency Currency, receivedAt, now time.Time) *ReceivedPayment {
	return &ReceivedPayment{
		ID:         uuid.New(),
		LoanID:     loanID,
		Amount:     amount,
		Currency:   currency,
		ReceivedAt: receivedAt,
		CreatedAt:  now,
	}
}

// IsRepaid reports whether the loan reached its terminal state.
func (l *Loan) IsRepaid() bool {
	return l.OutstandingAmount == 0 && l.Status == LoanStatusRepaid
}

// PaidAmount returns how much of the installment has been paid so far.
func (i *ScheduledInstallment) PaidAmount() int64 {
	return i.Amount - i.OutstandingAmount
}

// Apply takes up to amount from the installment's outstanding part and
// returns whatever could not be absorbed.
func (i *ScheduledInstallment) Apply(amount int64, now time.Time) (carryOver int64) {
	if amount >= i.OutstandingAmount {
		carryOver = amount - i.OutstandingAmount
		i.OutstandingAmount = 0
		i.Status = InstallmentStatusRepaid
	} else {
		i.OutstandingAmount -= amount
		i.Status = InstallmentStatusPartial
	}
	i.UpdatedAt = now
	return carryOver
}

// DateOf truncates t to its calendar date in UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddMonths shifts a calendar date by n months using Go's date normalization
// (Jan 31 + 1 month = Mar 3 in a non-leap year).
func AddMonths(date time.Time, n int) time.Time {
	return DateOf(date).AddDate(0, n, 0)
}

// SameDate reports whether a and b fall on the same calendar date.
func SameDate(a, b time.Time) bool {
	return DateOf(a).Equal(DateOf(b))
}
