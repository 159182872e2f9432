package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrInvalidTermCount is returned when a loan is requested with terms other than 3 or 6
	ErrInvalidTermCount = errors.New("invalid term count: must be 3 or 6")

	// ErrAlreadyRepaid is returned when a payment targets a closed loan
	ErrAlreadyRepaid = errors.New("loan is already repaid")

	// ErrOverpaymentExceedsOutstanding is returned when a payment is larger than the loan balance
	ErrOverpaymentExceedsOutstanding = errors.New("payment exceeds outstanding loan amount")

	// ErrNoMatchingInstallment signals a data-integrity defect: no installment
	// is due exactly on the date a payment (or its carry-over) is applied to
	ErrNoMatchingInstallment = errors.New("no installment due on payment date")

	// ErrLoanNotFound is returned when a loan doesn't exist
	ErrLoanNotFound = errors.New("loan not found")

	// ErrInvalidAmount is returned when an amount is not positive
	ErrInvalidAmount = errors.New("invalid amount: must be positive")

	// ErrInvalidCurrency is returned for currency codes outside SupportedCurrencies
	ErrInvalidCurrency = errors.New("unsupported currency")

	// ErrCurrencyMismatch is returned when a payment currency differs from the loan currency
	ErrCurrencyMismatch = errors.New("currency mismatch between loan and payment")
)

// DateLayout is the calendar date format used in logs and on the wire.
const DateLayout = "2006-01-02"

// LoanService originates loans and allocates repayments against their schedules.
// It keeps no mutable state of its own: every operation works through the
// repositories inside a transaction scoped to a single loan.
type LoanService struct {
	loanRepo        LoanRepository
	installmentRepo InstallmentRepository
	paymentRepo     PaymentRepository
	txManager       TransactionManager
	clock           Clock
	log             logrus.FieldLogger
	// Optional event publisher to emit domain events (e.g. repayment applied)
	eventPublisher EventPublisher
}

// NewLoanService creates a new instance of LoanService.
// Pass nil for eventPublisher if no events should be emitted.
func NewLoanService(
	loanRepo LoanRepository,
	installmentRepo InstallmentRepository,
	paymentRepo PaymentRepository,
	txManager TransactionManager,
	clock Clock,
	log logrus.FieldLogger,
	eventPublisher EventPublisher,
) *LoanService {
	if clock == nil {
		clock = SystemClock{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LoanService{
		loanRepo:        loanRepo,
		installmentRepo: installmentRepo,
		paymentRepo:     paymentRepo,
		txManager:       txManager,
		clock:           clock,
		log:             log,
		eventPublisher:  eventPublisher,
	}
}

// CreateLoan originates a loan and persists its installment schedule.
// The loan and all installments are written in one transaction.
func (s *LoanService) CreateLoan(
	ctx context.Context,
	borrowerID uuid.UUID,
	principal int64,
	currency Currency,
	terms int,
	processedAt time.Time,
) (*LoanDetails, error) {
	if _, err := ParseCurrency(string(currency)); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	loan, installments, err := BuildSchedule(borrowerID, principal, currency, terms, processedAt, now)
	if err != nil {
		return nil, err
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.loanRepo.Create(txCtx, loan); err != nil {
			return fmt.Errorf("failed to create loan: %w", err)
		}
		if err := s.installmentRepo.CreateBatch(txCtx, installments); err != nil {
			return fmt.Errorf("failed to create installments: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"loan_id":   loan.ID,
		"principal": principal,
		"currency":  currency,
		"terms":     terms,
	}).Info("loan created")

	s.publish(ctx, NewLoanEvent(EventLoanCreated, loan, principal, now))

	return &LoanDetails{Loan: loan, Installments: installments}, nil
}

// ApplyRepayment allocates a received payment against the loan's schedule.
//
// The whole allocation runs in one transaction holding a lock on the loan:
// 1. Reject payments on repaid loans and payments above the loan balance
// 2. Recompute the loan balance from installment state and persist it
// 3. Apply the payment to the installment due exactly on receivedAt
// 4. Carry any excess to the installment due one month later, repeating
// 5. Append the received payment to the loan's payment log
// 6. Close the loan when its balance reaches zero
//
// A rejected payment leaves no trace. Returns the updated loan.
func (s *LoanService) ApplyRepayment(
	ctx context.Context,
	loanID uuid.UUID,
	amount int64,
	currency Currency,
	receivedAt time.Time,
) (*Loan, error) {
	if err := ValidateAmount(amount); err != nil {
		return nil, err
	}

	var (
		updated *Loan
		payment *ReceivedPayment
	)
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		loan, err := s.loanRepo.Lock(txCtx, loanID)
		if err != nil {
			return fmt.Errorf("failed to lock loan: %w", err)
		}

		if loan.IsRepaid() {
			return ErrAlreadyRepaid
		}
		if amount > loan.OutstandingAmount {
			return fmt.Errorf("%w: paid %d, outstanding %d", ErrOverpaymentExceedsOutstanding, amount, loan.OutstandingAmount)
		}
		if currency != loan.Currency {
			return fmt.Errorf("%w: loan is %s, payment is %s", ErrCurrencyMismatch, loan.Currency, currency)
		}

		now := s.clock.Now()

		balance, err := s.recomputeOutstanding(txCtx, loan, amount)
		if err != nil {
			return err
		}
		loan.OutstandingAmount = balance
		if balance == 0 {
			loan.Status = LoanStatusRepaid
		}
		loan.UpdatedAt = now
		if err := s.loanRepo.Update(txCtx, loan); err != nil {
			return fmt.Errorf("failed to update loan: %w", err)
		}

		if err := s.allocate(txCtx, loan, amount, receivedAt, now); err != nil {
			return err
		}

		payment = NewReceivedPayment(loan.ID, amount, currency, receivedAt, now)
		if err := s.paymentRepo.Create(txCtx, payment); err != nil {
			return fmt.Errorf("failed to record payment: %w", err)
		}

		updated, err = s.loanRepo.GetByID(txCtx, loan.ID)
		if err != nil {
			return fmt.Errorf("failed to reload loan: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNoMatchingInstallment) {
			s.log.WithFields(logrus.Fields{
				"loan_id":     loanID,
				"amount":      amount,
				"received_at": receivedAt.Format(DateLayout),
			}).WithError(err).Error("repayment could not be allocated to the schedule")
		}
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"loan_id":     updated.ID,
		"payment_id":  payment.ID,
		"amount":      amount,
		"outstanding": updated.OutstandingAmount,
		"status":      updated.Status,
	}).Info("repayment applied")

	s.publish(ctx, NewLoanEvent(EventRepaymentApplied, updated, amount, payment.CreatedAt))
	if updated.Status == LoanStatusRepaid {
		s.publish(ctx, NewLoanEvent(EventLoanRepaid, updated, updated.Principal, payment.CreatedAt))
	}

	return updated, nil
}

// recomputeOutstanding derives the loan balance after a payment of amount from
// what the installments have already absorbed: fully repaid installments count
// with their whole amount, partial ones with the part paid so far.
func (s *LoanService) recomputeOutstanding(ctx context.Context, loan *Loan, amount int64) (int64, error) {
	repaid, err := s.installmentRepo.SumAmountByStatus(ctx, loan.ID, InstallmentStatusRepaid)
	if err != nil {
		return 0, fmt.Errorf("failed to sum repaid installments: %w", err)
	}
	partialAmount, err := s.installmentRepo.SumAmountByStatus(ctx, loan.ID, InstallmentStatusPartial)
	if err != nil {
		return 0, fmt.Errorf("failed to sum partial installments: %w", err)
	}
	partialOutstanding, err := s.installmentRepo.SumOutstandingByStatus(ctx, loan.ID, InstallmentStatusPartial)
	if err != nil {
		return 0, fmt.Errorf("failed to sum partial installments: %w", err)
	}

	balance := loan.Principal - repaid - (partialAmount - partialOutstanding) - amount
	if balance < 0 {
		return 0, fmt.Errorf("%w: balance would become %d", ErrOverpaymentExceedsOutstanding, balance)
	}
	return balance, nil
}

// allocate applies amount to the installment due on receivedAt and carries any
// excess forward one month at a time. A loan has TermCount installments, so
// the chain never needs more steps than that.
func (s *LoanService) allocate(ctx context.Context, loan *Loan, amount int64, receivedAt, now time.Time) error {
	date := DateOf(receivedAt)
	remaining := amount

	for step := 0; remaining > 0; step++ {
		if step >= loan.TermCount {
			return fmt.Errorf("%w: %d left unallocated after %d installments", ErrNoMatchingInstallment, remaining, loan.TermCount)
		}

		installment, err := s.installmentRepo.FindByDueDate(ctx, loan.ID, date)
		if err != nil {
			return fmt.Errorf("failed to find installment: %w", err)
		}
		if installment == nil {
			return fmt.Errorf("%w: loan %s, date %s", ErrNoMatchingInstallment, loan.ID, date.Format(DateLayout))
		}

		carryOver := installment.Apply(remaining, now)
		if err := s.installmentRepo.Update(ctx, installment); err != nil {
			return fmt.Errorf("failed to update installment: %w", err)
		}

		s.log.WithFields(logrus.Fields{
			"loan_id":        loan.ID,
			"installment_id": installment.ID,
			"due_date":       date.Format(DateLayout),
			"applied":        remaining - carryOver,
			"carry_over":     carryOver,
		}).Debug("installment allocated")

		remaining = carryOver
		date = AddMonths(date, 1)
	}

	return nil
}

// GetLoan retrieves a loan with its installments and received payments.
func (s *LoanService) GetLoan(ctx context.Context, loanID uuid.UUID) (*LoanDetails, error) {
	loan, err := s.loanRepo.GetByID(ctx, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}

	installments, err := s.installmentRepo.ListByLoan(ctx, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list installments: %w", err)
	}

	payments, err := s.paymentRepo.ListByLoan(ctx, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}

	return &LoanDetails{Loan: loan, Installments: installments, Payments: payments}, nil
}

// ListBorrowerLoans returns every loan of a borrower, newest first.
func (s *LoanService) ListBorrowerLoans(ctx context.Context, borrowerID uuid.UUID) ([]*Loan, error) {
	loans, err := s.loanRepo.ListByBorrower(ctx, borrowerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	return loans, nil
}

// InstallmentsDueOn returns the installments due on date that are not yet repaid.
func (s *LoanService) InstallmentsDueOn(ctx context.Context, date time.Time) ([]ScheduledInstallment, error) {
	installments, err := s.installmentRepo.ListOpenDueOn(ctx, DateOf(date))
	if err != nil {
		return nil, fmt.Errorf("failed to list due installments: %w", err)
	}
	return installments, nil
}

// RemindDueInstallments publishes an installment.due event for every open
// installment due on date and returns how many were published.
func (s *LoanService) RemindDueInstallments(ctx context.Context, date time.Time) (int, error) {
	installments, err := s.InstallmentsDueOn(ctx, date)
	if err != nil {
		return 0, err
	}
	if s.eventPublisher == nil {
		return 0, nil
	}

	now := s.clock.Now()
	loans := make(map[uuid.UUID]*Loan)
	published := 0
	for _, installment := range installments {
		loan, ok := loans[installment.LoanID]
		if !ok {
			loan, err = s.loanRepo.GetByID(ctx, installment.LoanID)
			if err != nil {
				return published, fmt.Errorf("failed to get loan %s: %w", installment.LoanID, err)
			}
			loans[installment.LoanID] = loan
		}

		if err := s.eventPublisher.Publish(ctx, NewInstallmentDueEvent(loan, installment, now)); err != nil {
			return published, fmt.Errorf("failed to publish reminder for installment %s: %w", installment.ID, err)
		}
		published++
	}

	return published, nil
}

// publish emits an event after a committed change. Failures are logged only:
// the change is already durable and must not be reported as failed.
func (s *LoanService) publish(ctx context.Context, event Event) {
	if s.eventPublisher == nil {
		return
	}
	if err := s.eventPublisher.Publish(ctx, event); err != nil {
		s.log.WithFields(logrus.Fields{
			"event_type": event.Type,
			"loan_id":    event.LoanID,
		}).WithError(err).Warn("failed to publish event")
	}
}
