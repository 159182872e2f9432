package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OperationRepository stores loan operations in ClickHouse
type OperationRepository struct {
	client *Client
}

// NewOperationRepository creates a new operation repository
func NewOperationRepository(client *Client) *OperationRepository {
	return &OperationRepository{client: client}
}

// InsertOperation appends an operation row.
func (r *OperationRepository) InsertOperation(ctx context.Context, op *Operation) error {
	query := `
		INSERT INTO loan_operations (
			id, loan_id, borrower_id, operation_type, timestamp,
			amount_value, outstanding_value, amount_currency, loan_status,
			installment_id, due_date
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := r.client.Conn().Exec(ctx, query,
		op.ID,
		op.LoanID,
		op.BorrowerID,
		op.OperationType,
		op.Timestamp,
		op.Amount,
		op.Outstanding,
		op.Currency,
		op.LoanStatus,
		op.InstallmentID,
		op.DueDate,
	)
	if err != nil {
		return fmt.Errorf("failed to insert operation %s: %w", op.ID, err)
	}

	return nil
}

// ListLoanOperations returns the operations of a loan, most recent first.
// A positive limit caps the number of rows.
func (r *OperationRepository) ListLoanOperations(ctx context.Context, loanID string, limit int) ([]*Operation, error) {
	query := `
		SELECT
			id, loan_id, borrower_id, operation_type, timestamp,
			amount_value, outstanding_value, amount_currency, loan_status,
			installment_id, due_date
		FROM loan_operations
		WHERE loan_id = ?
		ORDER BY timestamp DESC
	`
	args := []interface{}{loanID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.client.Conn().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	var operations []*Operation
	for rows.Next() {
		var (
			op          Operation
			timestamp   time.Time
			amount      decimal.Decimal
			outstanding decimal.Decimal
		)
		if err := rows.Scan(
			&op.ID,
			&op.LoanID,
			&op.BorrowerID,
			&op.OperationType,
			&timestamp,
			&amount,
			&outstanding,
			&op.Currency,
			&op.LoanStatus,
			&op.InstallmentID,
			&op.DueDate,
		); err != nil {
			return nil, fmt.Errorf("failed to scan operation row: %w", err)
		}
		op.Timestamp = timestamp
		op.Amount = amount
		op.Outstanding = outstanding
		operations = append(operations, &op)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operation rows: %w", err)
	}

	return operations, nil
}
