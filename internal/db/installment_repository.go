package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spbu-ds-practicum-2025/loan-service/internal/domain"
)

const installmentColumns = `
	id, loan_id, amount, outstanding_amount, currency_code,
	due_date, status, created_at, updated_at`

// InstallmentRepository implements domain.InstallmentRepository using PostgreSQL.
type InstallmentRepository struct {
	pool *pgxpool.Pool
}

// NewInstallmentRepository creates a new InstallmentRepository.
func NewInstallmentRepository(pool *pgxpool.Pool) *InstallmentRepository {
	return &InstallmentRepository{
		pool: pool,
	}
}

// CreateBatch persists the full schedule of a loan in a single round trip.
func (r *InstallmentRepository) CreateBatch(ctx context.Context, installments []domain.ScheduledInstallment) error {
	query := `
		INSERT INTO scheduled_installments (` + installmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	batch := &pgx.Batch{}
	for _, inst := range installments {
		batch.Queue(query,
			inst.ID,
			inst.LoanID,
			inst.Amount,
			inst.OutstandingAmount,
			string(inst.Currency),
			inst.DueDate,
			string(inst.Status),
			inst.CreatedAt,
			inst.UpdatedAt,
		)
	}

	var results pgx.BatchResults
	if tx := getTx(ctx); tx != nil {
		results = tx.SendBatch(ctx, batch)
	} else {
		results = r.pool.SendBatch(ctx, batch)
	}

	for range installments {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("failed to create installment: %w", err)
		}
	}

	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to create installments: %w", err)
	}
	return nil
}

// ListByLoan returns a loan's installments ordered by due date.
func (r *InstallmentRepository) ListByLoan(ctx context.Context, loanID uuid.UUID) ([]domain.ScheduledInstallment, error) {
	query := `
		SELECT ` + installmentColumns + `
		FROM scheduled_installments
		WHERE loan_id = $1
		ORDER BY due_date ASC
	`
	return r.list(ctx, query, loanID)
}

// FindByDueDate returns the loan's installment due exactly on date.
// Returns nil, nil when no installment matches.
func (r *InstallmentRepository) FindByDueDate(ctx context.Context, loanID uuid.UUID, date time.Time) (*domain.ScheduledInstallment, error) {
	query := `
		SELECT ` + installmentColumns + `
		FROM scheduled_installments
		WHERE loan_id = $1 AND due_date = $2
	`

	inst, err := scanInstallment(conn(ctx, r.pool).QueryRow(ctx, query, loanID, domain.DateOf(date)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find installment: %w", err)
	}
	return inst, nil
}

// Update persists the outstanding amount and status of an installment.
func (r *InstallmentRepository) Update(ctx context.Context, installment *domain.ScheduledInstallment) error {
	query := `
		UPDATE scheduled_installments
		SET outstanding_amount = $2,
		    status = $3,
		    updated_at = $4
		WHERE id = $1
	`

	result, err := conn(ctx, r.pool).Exec(ctx, query,
		installment.ID,
		installment.OutstandingAmount,
		string(installment.Status),
		installment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update installment: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("installment %s not found", installment.ID)
	}

	return nil
}

// SumAmountByStatus sums amount over the loan's installments in status.
func (r *InstallmentRepository) SumAmountByStatus(ctx context.Context, loanID uuid.UUID, status domain.InstallmentStatus) (int64, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)::BIGINT
		FROM scheduled_installments
		WHERE loan_id = $1 AND status = $2
	`
	return r.sum(ctx, query, loanID, status)
}

// SumOutstandingByStatus sums outstanding_amount over the loan's installments in status.
func (r *InstallmentRepository) SumOutstandingByStatus(ctx context.Context, loanID uuid.UUID, status domain.InstallmentStatus) (int64, error) {
	query := `
		SELECT COALESCE(SUM(outstanding_amount), 0)::BIGINT
		FROM scheduled_installments
		WHERE loan_id = $1 AND status = $2
	`
	return r.sum(ctx, query, loanID, status)
}

func (r *InstallmentRepository) sum(ctx context.Context, query string, loanID uuid.UUID, status domain.InstallmentStatus) (int64, error) {
	var total int64
	if err := conn(ctx, r.pool).QueryRow(ctx, query, loanID, string(status)).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum installments: %w", err)
	}
	return total, nil
}

// ListOpenDueOn returns installments of any loan due on date that are not repaid.
func (r *InstallmentRepository) ListOpenDueOn(ctx context.Context, date time.Time) ([]domain.ScheduledInstallment, error) {
	query := `
		SELECT ` + installmentColumns + `
		FROM scheduled_installments
		WHERE due_date = $1 AND status <> $2
		ORDER BY loan_id
	`
	return r.list(ctx, query, domain.DateOf(date), string(domain.InstallmentStatusRepaid))
}

func (r *InstallmentRepository) list(ctx context.Context, query string, args ...any) ([]domain.ScheduledInstallment, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query installments: %w", err)
	}
	defer rows.Close()

	var installments []domain.ScheduledInstallment
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan installment row: %w", err)
		}
		installments = append(installments, *inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate installments: %w", err)
	}

	return installments, nil
}

func scanInstallment(row pgx.Row) (*domain.ScheduledInstallment, error) {
	var inst domain.ScheduledInstallment
	var currency, status string

	err := row.Scan(
		&inst.ID,
		&inst.LoanID,
		&inst.Amount,
		&inst.OutstandingAmount,
		&currency,
		&inst.DueDate,
		&status,
		&inst.CreatedAt,
		&inst.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	inst.Currency = domain.Currency(currency)
	inst.Status = domain.InstallmentStatus(status)
	return &inst, nil
}
