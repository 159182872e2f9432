package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// LoanRepository defines the interface for loan data access operations.
type LoanRepository interface {
	// Create persists a new loan.
	Create(ctx context.Context, loan *Loan) error

	// GetByID retrieves a loan by its identifier.
	// Returns ErrLoanNotFound if the loan doesn't exist.
	GetByID(ctx context.Context, id uuid.UUID) (*Loan, error)

	// Lock retrieves a loan and holds a lock on it until the surrounding
	// transaction ends. Must be called within a transaction context.
	Lock(ctx context.Context, id uuid.UUID) (*Loan, error)

	// Update persists balance and status changes of an existing loan.
	Update(ctx context.Context, loan *Loan) error

	// ListByBorrower returns the borrower's loans, newest first.
	ListByBorrower(ctx context.Context, borrowerID uuid.UUID) ([]*Loan, error)
}

// InstallmentRepository defines the interface for scheduled installment access.
type InstallmentRepository interface {
	// CreateBatch persists the full schedule of a loan.
	CreateBatch(ctx context.Context, installments []ScheduledInstallment) error

	// ListByLoan returns a loan's installments ordered by due date.
	ListByLoan(ctx context.Context, loanID uuid.UUID) ([]ScheduledInstallment, error)

	// FindByDueDate returns the loan's installment due exactly on date.
	// Returns nil, nil when no installment matches.
	FindByDueDate(ctx context.Context, loanID uuid.UUID, date time.Time) (*ScheduledInstallment, error)

	// Update persists the outstanding amount and status of an installment.
	Update(ctx context.Context, installment *ScheduledInstallment) error

	// SumAmountByStatus sums Amount over the loan's installments in status.
	SumAmountByStatus(ctx context.Context, loanID uuid.UUID, status InstallmentStatus) (int64, error)

	// SumOutstandingByStatus sums OutstandingAmount over the loan's installments in status.
	SumOutstandingByStatus(ctx context.Context, loanID uuid.UUID, status InstallmentStatus) (int64, error)

	// ListOpenDueOn returns installments of any loan due on date that are not repaid.
	ListOpenDueOn(ctx context.Context, date time.Time) ([]ScheduledInstallment, error)
}

// PaymentRepository defines the interface for the append-only payment log.
type PaymentRepository interface {
	// Create appends a received payment.
	Create(ctx context.Context, payment *ReceivedPayment) error

	// ListByLoan returns a loan's payments ordered by receipt date.
	ListByLoan(ctx context.Context, loanID uuid.UUID) ([]ReceivedPayment, error)
}

// TransactionManager defines the interface for managing transactions.
// This abstraction allows the service layer to work with transactions
// without being coupled to a specific storage implementation.
type TransactionManager interface {
	// WithTransaction executes the given function within a transaction.
	// If the function returns an error, the transaction is rolled back.
	// Otherwise, the transaction is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }
