package events

import (
	"context"
	"errors"

	"github.com/spbu-ds-practicum-2025/loan-service/internal/domain"
)

// Fanout delivers every event to all of its publishers.
// Every publisher is tried even if an earlier one fails; the errors are joined.
type Fanout []domain.EventPublisher

// Publish sends the event to each publisher in order.
func (f Fanout) Publish(ctx context.Context, event domain.Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
