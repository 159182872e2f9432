package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spbu-ds-practicum-2025/loan-service/internal/domain"
)

const loanColumns = `
	id, borrower_id, principal, currency_code, term_count,
	outstanding_amount, status, processed_at, created_at, updated_at`

// LoanRepository implements domain.LoanRepository using PostgreSQL.
type LoanRepository struct {
	pool *pgxpool.Pool
}

// NewLoanRepository creates a new LoanRepository.
func NewLoanRepository(pool *pgxpool.Pool) *LoanRepository {
	return &LoanRepository{
		pool: pool,
	}
}

// Create persists a new loan.
func (r *LoanRepository) Create(ctx context.Context, loan *domain.Loan) error {
	query := `
		INSERT INTO loans (` + loanColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := conn(ctx, r.pool).Exec(ctx, query,
		loan.ID,
		loan.BorrowerID,
		loan.Principal,
		string(loan.Currency),
		loan.TermCount,
		loan.OutstandingAmount,
		string(loan.Status),
		loan.ProcessedAt,
		loan.CreatedAt,
		loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}

	return nil
}

// GetByID retrieves a loan by its unique identifier.
func (r *LoanRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// Lock acquires a pessimistic lock on the loan for the duration of the transaction.
// This method MUST be called within a transaction context.
// Uses SELECT ... FOR UPDATE to lock the row.
func (r *LoanRepository) Lock(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	if getTx(ctx) == nil {
		return nil, errors.New("loan lock requires a transaction")
	}
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, query, id)
}

func (r *LoanRepository) getOne(ctx context.Context, query string, id uuid.UUID) (*domain.Loan, error) {
	loan, err := scanLoan(conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrLoanNotFound
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

// Update persists balance and status changes of an existing loan.
func (r *LoanRepository) Update(ctx context.Context, loan *domain.Loan) error {
	query := `
		UPDATE loans
		SET outstanding_amount = $2,
		    status = $3,
		    updated_at = $4
		WHERE id = $1
	`

	result, err := conn(ctx, r.pool).Exec(ctx, query,
		loan.ID,
		loan.OutstandingAmount,
		string(loan.Status),
		loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrLoanNotFound
	}

	return nil
}

// ListByBorrower returns the borrower's loans, newest first.
func (r *LoanRepository) ListByBorrower(ctx context.Context, borrowerID uuid.UUID) ([]*domain.Loan, error) {
	query := `
		SELECT ` + loanColumns + `
		FROM loans
		WHERE borrower_id = $1
		ORDER BY created_at DESC
	`

	rows, err := conn(ctx, r.pool).Query(ctx, query, borrowerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	defer rows.Close()

	var loans []*domain.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate loans: %w", err)
	}

	return loans, nil
}

func scanLoan(row pgx.Row) (*domain.Loan, error) {
	var loan domain.Loan
	var currency, status string

	err := row.Scan(
		&loan.ID,
		&loan.BorrowerID,
		&loan.Principal,
		&currency,
		&loan.TermCount,
		&loan.OutstandingAmount,
		&status,
		&loan.ProcessedAt,
		&loan.CreatedAt,
		&loan.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	loan.Currency = domain.Currency(currency)
	loan.Status = domain.LoanStatus(status)
	return &loan, nil
}
