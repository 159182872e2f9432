package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/spbu-ds-practicum-2025/loan-service/internal/domain"
)

func TestNewAmount(t *testing.T) {
	tests := []struct {
		minor    int64
		expected string
	}{
		{minor: 0, expected: "0.00"},
		{minor: 1, expected: "0.01"},
		{minor: 1666, expected: "16.66"},
		{minor: 5000, expected: "50.00"},
		{minor: 123456789, expected: "1234567.89"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			amount := NewAmount(tt.minor, domain.CurrencyTRY)
			if amount.Value != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, amount.Value)
			}
			if amount.CurrencyCode != "TRY" {
				t.Errorf("expected currency TRY, got %s", amount.CurrencyCode)
			}
		})
	}
}

func TestMarshalRepaymentApplied(t *testing.T) {
	loan := &domain.Loan{
		ID:                uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		BorrowerID:        uuid.MustParse("22222222-2222-2222-2222-222222222222"),
		Principal:         5000,
		Currency:          domain.CurrencyEUR,
		TermCount:         3,
		OutstandingAmount: 3000,
		Status:            domain.LoanStatusDue,
	}
	occurredAt := time.Date(2022, 2, 20, 10, 30, 0, 0, time.UTC)
	event := domain.NewLoanEvent(domain.EventRepaymentApplied, loan, 2000, occurredAt)

	body, err := Marshal(event)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}

	if decoded["eventType"] != "repayment.applied" {
		t.Errorf("unexpected eventType %v", decoded["eventType"])
	}
	if decoded["eventTimestamp"] != "2022-02-20T10:30:00Z" {
		t.Errorf("unexpected eventTimestamp %v", decoded["eventTimestamp"])
	}
	if decoded["loanId"] != loan.ID.String() || decoded["borrowerId"] != loan.BorrowerID.String() {
		t.Errorf("unexpected ids %v / %v", decoded["loanId"], decoded["borrowerId"])
	}
	amount := decoded["amount"].(map[string]any)
	if amount["value"] != "20.00" || amount["currencyCode"] != "EUR" {
		t.Errorf("unexpected amount %v", amount)
	}
	outstanding := decoded["outstandingAmount"].(map[string]any)
	if outstanding["value"] != "30.00" {
		t.Errorf("unexpected outstanding amount %v", outstanding)
	}
	if decoded["loanStatus"] != "DUE" {
		t.Errorf("unexpected loanStatus %v", decoded["loanStatus"])
	}
	if _, ok := decoded["installmentId"]; ok {
		t.Error("installmentId must be omitted for loan events")
	}
	if _, ok := decoded["dueDate"]; ok {
		t.Error("dueDate must be omitted for loan events")
	}
}

func TestNewLoanEventInstallmentDue(t *testing.T) {
	loan := &domain.Loan{ID: uuid.New(), BorrowerID: uuid.New(), Currency: domain.CurrencyUSD, Status: domain.LoanStatusDue}
	installment := domain.ScheduledInstallment{
		ID:                uuid.New(),
		LoanID:            loan.ID,
		Amount:            1666,
		OutstandingAmount: 666,
		Currency:          domain.CurrencyUSD,
		DueDate:           time.Date(2022, 3, 20, 0, 0, 0, 0, time.UTC),
		Status:            domain.InstallmentStatusPartial,
	}

	payload := NewLoanEvent(domain.NewInstallmentDueEvent(loan, installment, time.Now()))

	if payload.InstallmentID == nil || *payload.InstallmentID != installment.ID.String() {
		t.Errorf("expected installmentId %s, got %v", installment.ID, payload.InstallmentID)
	}
	if payload.DueDate == nil || *payload.DueDate != "2022-03-20" {
		t.Errorf("expected dueDate 2022-03-20, got %v", payload.DueDate)
	}
	if payload.Amount.Value != "16.66" || payload.OutstandingAmount.Value != "6.66" {
		t.Errorf("unexpected amounts %s / %s", payload.Amount.Value, payload.OutstandingAmount.Value)
	}
}

func TestRoutingKey(t *testing.T) {
	if key := RoutingKey(domain.EventLoanRepaid); key != "loans.loan.repaid" {
		t.Errorf("expected loans.loan.repaid, got %s", key)
	}
}

type stubPublisher struct {
	calls int
	err   error
}

func (p *stubPublisher) Publish(ctx context.Context, event domain.Event) error {
	p.calls++
	return p.err
}

func TestFanoutPublishesToAll(t *testing.T) {
	failing := &stubPublisher{err: errors.New("broker down")}
	healthy := &stubPublisher{}

	err := Fanout{failing, healthy}.Publish(context.Background(), domain.Event{Type: domain.EventLoanCreated})

	if err == nil || !errors.Is(err, failing.err) {
		t.Errorf("expected joined broker error, got %v", err)
	}
	if failing.calls != 1 || healthy.calls != 1 {
		t.Errorf("expected every publisher to be called once, got %d and %d", failing.calls, healthy.calls)
	}

	if err := (Fanout{healthy}).Publish(context.Background(), domain.Event{}); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}
