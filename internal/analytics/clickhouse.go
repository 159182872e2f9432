package analytics

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/spbu-ds-practicum-2025/loan-service/internal/config"
)

// schema is applied on startup; loan_operations is append-only.
const schema = `
	CREATE TABLE IF NOT EXISTS loan_operations (
		id String,
		loan_id String,
		borrower_id String,
		operation_type LowCardinality(String),
		timestamp DateTime64(3),
		amount_value Decimal(18, 2),
		outstanding_value Decimal(18, 2),
		amount_currency String,
		loan_status LowCardinality(String),
		installment_id String,
		due_date String,
		created_at DateTime DEFAULT now()
	) ENGINE = MergeTree()
	ORDER BY (loan_id, timestamp)
	PRIMARY KEY (loan_id, timestamp)
`

// Client wraps the ClickHouse driver connection
type Client struct {
	conn driver.Conn
}

// NewClient connects to ClickHouse and verifies the connection with a ping.
func NewClient(ctx context.Context, cfg config.ClickHouseConfig) (*Client, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Host},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &Client{conn: conn}, nil
}

// EnsureSchema creates the loan_operations table if it does not exist.
func (c *Client) EnsureSchema(ctx context.Context) error {
	if err := c.conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create loan_operations table: %w", err)
	}
	return nil
}

// Conn returns the underlying ClickHouse connection
func (c *Client) Conn() driver.Conn {
	return c.conn
}

// Close closes the ClickHouse connection
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
