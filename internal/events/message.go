package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/spbu-ds-practicum-2025/loan-service/internal/domain"
)

// minorUnitExponent converts integer minor units to the major unit (cents to whole).
const minorUnitExponent = -2

// Amount is a monetary value with currency as it appears on the wire.
type Amount struct {
	Value        string `json:"value"`        // Decimal string with 2 decimal places (e.g., "16.66")
	CurrencyCode string `json:"currencyCode"` // Currency tag (e.g., "TRY")
}

// LoanEvent is the JSON payload published for every domain event.
type LoanEvent struct {
	EventID           string  `json:"eventId"`
	EventType         string  `json:"eventType"`
	EventTimestamp    string  `json:"eventTimestamp"`
	LoanID            string  `json:"loanId"`
	BorrowerID        string  `json:"borrowerId"`
	Amount            Amount  `json:"amount"`
	OutstandingAmount Amount  `json:"outstandingAmount"`
	LoanStatus        string  `json:"loanStatus"`
	InstallmentID     *string `json:"installmentId,omitempty"`
	DueDate           *string `json:"dueDate,omitempty"`
}

// NewAmount renders minor units as a fixed two-decimal string.
func NewAmount(minorUnits int64, currency domain.Currency) Amount {
	return Amount{
		Value:        decimal.New(minorUnits, minorUnitExponent).StringFixed(2),
		CurrencyCode: string(currency),
	}
}

// NewLoanEvent converts a domain event into its wire payload.
func NewLoanEvent(event domain.Event) LoanEvent {
	payload := LoanEvent{
		EventID:           event.ID.String(),
		EventType:         string(event.Type),
		EventTimestamp:    event.OccurredAt.UTC().Format(time.RFC3339),
		LoanID:            event.LoanID.String(),
		BorrowerID:        event.BorrowerID.String(),
		Amount:            NewAmount(event.Amount, event.Currency),
		OutstandingAmount: NewAmount(event.OutstandingAmount, event.Currency),
		LoanStatus:        string(event.LoanStatus),
	}
	if event.InstallmentID != nil {
		id := event.InstallmentID.String()
		payload.InstallmentID = &id
	}
	if event.DueDate != nil {
		due := event.DueDate.Format(domain.DateLayout)
		payload.DueDate = &due
	}
	return payload
}

// RoutingKey returns the topic routing key for an event type.
func RoutingKey(eventType domain.EventType) string {
	return fmt.Sprintf("loans.%s", eventType)
}

// Marshal encodes the wire payload of a domain event.
func Marshal(event domain.Event) ([]byte, error) {
	body, err := json.Marshal(NewLoanEvent(event))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", event.Type, err)
	}
	return body, nil
}
