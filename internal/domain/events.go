package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType names a domain event emitted by the loan service.
type EventType string

const (
	EventLoanCreated      EventType = "loan.created"
	EventRepaymentApplied EventType = "repayment.applied"
	EventLoanRepaid       EventType = "loan.repaid"
	EventInstallmentDue   EventType = "installment.due"
)

// Event is a domain event describing a committed change to a loan.
type Event struct {
	ID                uuid.UUID
	Type              EventType
	OccurredAt        time.Time
	LoanID            uuid.UUID
	BorrowerID        uuid.UUID
	Amount            int64 // principal, payment or installment amount depending on Type
	Currency          Currency
	OutstandingAmount int64 // loan balance, or installment balance for installment.due
	LoanStatus        LoanStatus
	InstallmentID     *uuid.UUID
	DueDate           *time.Time
}

// EventPublisher publishes domain events to external systems (e.g. RabbitMQ).
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// NewLoanEvent builds an event carrying the loan's current balance and status.
func NewLoanEvent(eventType EventType, loan *Loan, amount int64, occurredAt time.Time) Event {
	return Event{
		ID:                uuid.New(),
		Type:              eventType,
		OccurredAt:        occurredAt,
		LoanID:            loan.ID,
		BorrowerID:        loan.BorrowerID,
		Amount:            amount,
		Currency:          loan.Currency,
		OutstandingAmount: loan.OutstandingAmount,
		LoanStatus:        loan.Status,
	}
}

// NewInstallmentDueEvent builds the reminder event for an open installment.
func NewInstallmentDueEvent(loan *Loan, installment ScheduledInstallment, occurredAt time.Time) Event {
	id := installment.ID
	due := installment.DueDate
	return Event{
		ID:                uuid.New(),
		Type:              EventInstallmentDue,
		OccurredAt:        occurredAt,
		LoanID:            loan.ID,
		BorrowerID:        loan.BorrowerID,
		Amount:            installment.Amount,
		Currency:          installment.Currency,
		OutstandingAmount: installment.OutstandingAmount,
		LoanStatus:        loan.Status,
		InstallmentID:     &id,
		DueDate:           &due,
	}
}
