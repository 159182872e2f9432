package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spbu-ds-practicum-2025/loan-service/internal/domain"
)

// PaymentRepository implements domain.PaymentRepository using PostgreSQL.
// Rows are only ever inserted.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository creates a new PaymentRepository.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{
		pool: pool,
	}
}

// Create appends a received payment.
func (r *PaymentRepository) Create(ctx context.Context, payment *domain.ReceivedPayment) error {
	query := `
		INSERT INTO received_payments (
			id, loan_id, amount, currency_code, received_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := conn(ctx, r.pool).Exec(ctx, query,
		payment.ID,
		payment.LoanID,
		payment.Amount,
		string(payment.Currency),
		payment.ReceivedAt,
		payment.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}

	return nil
}

// ListByLoan returns a loan's payments ordered by receipt date.
func (r *PaymentRepository) ListByLoan(ctx context.Context, loanID uuid.UUID) ([]domain.ReceivedPayment, error) {
	query := `
		SELECT id, loan_id, amount, currency_code, received_at, created_at
		FROM received_payments
		WHERE loan_id = $1
		ORDER BY received_at ASC, created_at ASC
	`

	rows, err := conn(ctx, r.pool).Query(ctx, query, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []domain.ReceivedPayment
	for rows.Next() {
		var payment domain.ReceivedPayment
		var currency string
		if err := rows.Scan(
			&payment.ID,
			&payment.LoanID,
			&payment.Amount,
			&currency,
			&payment.ReceivedAt,
			&payment.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		payment.Currency = domain.Currency(currency)
		payments = append(payments, payment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payments: %w", err)
	}

	return payments, nil
}
