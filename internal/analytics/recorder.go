package analytics

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/spbu-ds-practicum-2025/loan-service/internal/domain"
)

// OperationWriter persists operation rows.
type OperationWriter interface {
	InsertOperation(ctx context.Context, op *Operation) error
}

// Recorder is a domain.EventPublisher that writes every event to the
// operation log.
type Recorder struct {
	writer OperationWriter
	log    logrus.FieldLogger
}

// NewRecorder creates a new Recorder.
func NewRecorder(writer OperationWriter, log logrus.FieldLogger) *Recorder {
	return &Recorder{writer: writer, log: log}
}

// Publish records the event as an operation row.
func (r *Recorder) Publish(ctx context.Context, event domain.Event) error {
	op := NewOperation(event)
	if err := r.writer.InsertOperation(ctx, op); err != nil {
		return err
	}

	r.log.WithFields(logrus.Fields{
		"operation_id":   op.ID,
		"operation_type": op.OperationType,
		"loan_id":        op.LoanID,
	}).Debug("operation recorded")

	return nil
}
