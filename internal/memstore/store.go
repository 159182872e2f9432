// Package memstore keeps loans in memory, one arena per loan holding the loan
// and its child installments and payments. It implements every repository
// interface of the domain package and is used by tests and by the
// STORAGE_BACKEND=memory mode of the server.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spbu-ds-practicum-2025/loan-service/internal/domain"
)

// txKey marks a context that already holds the store lock.
type txKey struct{}

type arena struct {
	loan         domain.Loan
	installments []domain.ScheduledInstallment // sorted by due date
	payments     []domain.ReceivedPayment
}

func (a *arena) clone() *arena {
	c := &arena{loan: a.loan}
	c.installments = append([]domain.ScheduledInstallment(nil), a.installments...)
	c.payments = append([]domain.ReceivedPayment(nil), a.payments...)
	return c
}

// Store is an in-memory loan store keyed by loan id.
// Transactions serialize on a single store-wide lock.
type Store struct {
	mu     sync.Mutex
	arenas map[uuid.UUID]*arena
}

// New creates an empty Store.
func New() *Store {
	return &Store{arenas: make(map[uuid.UUID]*arena)}
}

// Loans returns a LoanRepository view of the store.
func (s *Store) Loans() *LoanRepository { return &LoanRepository{s: s} }

// Installments returns an InstallmentRepository view of the store.
func (s *Store) Installments() *InstallmentRepository { return &InstallmentRepository{s: s} }

// Payments returns a PaymentRepository view of the store.
func (s *Store) Payments() *PaymentRepository { return &PaymentRepository{s: s} }

// WithTransaction runs fn holding the store lock. Arenas are snapshotted first
// and restored if fn returns an error, so a failed fn leaves no changes.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[uuid.UUID]*arena, len(s.arenas))
	for id, a := range s.arenas {
		snapshot[id] = a.clone()
	}

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.arenas = snapshot
		return err
	}
	return nil
}

// lock acquires the store lock unless ctx is inside WithTransaction.
func (s *Store) lock(ctx context.Context) func() {
	if inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func inTx(ctx context.Context) bool {
	held, _ := ctx.Value(txKey{}).(bool)
	return held
}

func (s *Store) arena(id uuid.UUID) (*arena, error) {
	a, ok := s.arenas[id]
	if !ok {
		return nil, domain.ErrLoanNotFound
	}
	return a, nil
}

// LoanRepository implements domain.LoanRepository.
type LoanRepository struct{ s *Store }

// Create persists a new loan.
func (r *LoanRepository) Create(ctx context.Context, loan *domain.Loan) error {
	defer r.s.lock(ctx)()
	if _, exists := r.s.arenas[loan.ID]; exists {
		return fmt.Errorf("loan %s already exists", loan.ID)
	}
	r.s.arenas[loan.ID] = &arena{loan: *loan}
	return nil
}

// GetByID retrieves a loan by its identifier.
func (r *LoanRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	defer r.s.lock(ctx)()
	a, err := r.s.arena(id)
	if err != nil {
		return nil, err
	}
	loan := a.loan
	return &loan, nil
}

// Lock retrieves a loan. Inside WithTransaction the store lock is already held.
func (r *LoanRepository) Lock(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	return r.GetByID(ctx, id)
}

// Update persists balance and status changes of an existing loan.
func (r *LoanRepository) Update(ctx context.Context, loan *domain.Loan) error {
	defer r.s.lock(ctx)()
	a, err := r.s.arena(loan.ID)
	if err != nil {
		return err
	}
	a.loan.OutstandingAmount = loan.OutstandingAmount
	a.loan.Status = loan.Status
	a.loan.UpdatedAt = loan.UpdatedAt
	return nil
}

// ListByBorrower returns the borrower's loans, newest first.
func (r *LoanRepository) ListByBorrower(ctx context.Context, borrowerID uuid.UUID) ([]*domain.Loan, error) {
	defer r.s.lock(ctx)()
	var loans []*domain.Loan
	for _, a := range r.s.arenas {
		if a.loan.BorrowerID == borrowerID {
			loan := a.loan
			loans = append(loans, &loan)
		}
	}
	sort.Slice(loans, func(i, j int) bool {
		return loans[i].CreatedAt.After(loans[j].CreatedAt)
	})
	return loans, nil
}

// InstallmentRepository implements domain.InstallmentRepository.
type InstallmentRepository struct{ s *Store }

// CreateBatch persists the full schedule of a loan.
func (r *InstallmentRepository) CreateBatch(ctx context.Context, installments []domain.ScheduledInstallment) error {
	defer r.s.lock(ctx)()
	for _, inst := range installments {
		a, err := r.s.arena(inst.LoanID)
		if err != nil {
			return err
		}
		a.installments = append(a.installments, inst)
		sort.SliceStable(a.installments, func(i, j int) bool {
			return a.installments[i].DueDate.Before(a.installments[j].DueDate)
		})
	}
	return nil
}

// ListByLoan returns a loan's installments ordered by due date.
func (r *InstallmentRepository) ListByLoan(ctx context.Context, loanID uuid.UUID) ([]domain.ScheduledInstallment, error) {
	defer r.s.lock(ctx)()
	a, err := r.s.arena(loanID)
	if err != nil {
		return nil, err
	}
	return append([]domain.ScheduledInstallment(nil), a.installments...), nil
}

// FindByDueDate returns the loan's installment due exactly on date, or nil.
func (r *InstallmentRepository) FindByDueDate(ctx context.Context, loanID uuid.UUID, date time.Time) (*domain.ScheduledInstallment, error) {
	defer r.s.lock(ctx)()
	a, err := r.s.arena(loanID)
	if err != nil {
		return nil, err
	}
	for _, inst := range a.installments {
		if domain.SameDate(inst.DueDate, date) {
			found := inst
			return &found, nil
		}
	}
	return nil, nil
}

// Update persists the outstanding amount and status of an installment.
func (r *InstallmentRepository) Update(ctx context.Context, installment *domain.ScheduledInstallment) error {
	defer r.s.lock(ctx)()
	a, err := r.s.arena(installment.LoanID)
	if err != nil {
		return err
	}
	for i := range a.installments {
		if a.installments[i].ID == installment.ID {
			a.installments[i].OutstandingAmount = installment.OutstandingAmount
			a.installments[i].Status = installment.Status
			a.installments[i].UpdatedAt = installment.UpdatedAt
			return nil
		}
	}
	return fmt.Errorf("installment %s not found", installment.ID)
}

// SumAmountByStatus sums Amount over the loan's installments in status.
func (r *InstallmentRepository) SumAmountByStatus(ctx context.Context, loanID uuid.UUID, status domain.InstallmentStatus) (int64, error) {
	return r.sum(ctx, loanID, status, func(i domain.ScheduledInstallment) int64 { return i.Amount })
}

// SumOutstandingByStatus sums OutstandingAmount over the loan's installments in status.
func (r *InstallmentRepository) SumOutstandingByStatus(ctx context.Context, loanID uuid.UUID, status domain.InstallmentStatus) (int64, error) {
	return r.sum(ctx, loanID, status, func(i domain.ScheduledInstallment) int64 { return i.OutstandingAmount })
}

func (r *InstallmentRepository) sum(
	ctx context.Context,
	loanID uuid.UUID,
	status domain.InstallmentStatus,
	field func(domain.ScheduledInstallment) int64,
) (int64, error) {
	defer r.s.lock(ctx)()
	a, err := r.s.arena(loanID)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, inst := range a.installments {
		if inst.Status == status {
			total += field(inst)
		}
	}
	return total, nil
}

// ListOpenDueOn returns installments of any loan due on date that are not repaid.
func (r *InstallmentRepository) ListOpenDueOn(ctx context.Context, date time.Time) ([]domain.ScheduledInstallment, error) {
	defer r.s.lock(ctx)()
	var due []domain.ScheduledInstallment
	for _, a := range r.s.arenas {
		for _, inst := range a.installments {
			if inst.Status != domain.InstallmentStatusRepaid && domain.SameDate(inst.DueDate, date) {
				due = append(due, inst)
			}
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].LoanID.String() < due[j].LoanID.String()
	})
	return due, nil
}

// PaymentRepository implements domain.PaymentRepository.
type PaymentRepository struct{ s *Store }

// Create appends a received payment.
func (r *PaymentRepository) Create(ctx context.Context, payment *domain.ReceivedPayment) error {
	defer r.s.lock(ctx)()
	a, err := r.s.arena(payment.LoanID)
	if err != nil {
		return err
	}
	a.payments = append(a.payments, *payment)
	return nil
}

// ListByLoan returns a loan's payments ordered by receipt date.
func (r *PaymentRepository) ListByLoan(ctx context.Context, loanID uuid.UUID) ([]domain.ReceivedPayment, error) {
	defer r.s.lock(ctx)()
	a, err := r.s.arena(loanID)
	if err != nil {
		return nil, err
	}
	payments := append([]domain.ReceivedPayment(nil), a.payments...)
	sort.SliceStable(payments, func(i, j int) bool {
		return payments[i].ReceivedAt.Before(payments[j].ReceivedAt)
	})
	return payments, nil
}
