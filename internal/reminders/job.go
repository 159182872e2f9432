package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/spbu-ds-practicum-2025/loan-service/internal/domain"
)

// Reminder publishes installment.due events for a calendar date.
type Reminder interface {
	RemindDueInstallments(ctx context.Context, date time.Time) (int, error)
}

// Job runs the due-installment reminder on a cron schedule.
type Job struct {
	reminder Reminder
	clock    domain.Clock
	log      logrus.FieldLogger
	timeout  time.Duration
	cron     *cron.Cron
}

// NewJob registers the reminder under the given cron spec (standard five-field format).
func NewJob(schedule string, reminder Reminder, clock domain.Clock, log logrus.FieldLogger) (*Job, error) {
	if clock == nil {
		clock = domain.SystemClock{}
	}

	j := &Job{
		reminder: reminder,
		clock:    clock,
		log:      log.WithField("component", "reminders"),
		timeout:  5 * time.Minute,
		cron:     cron.New(cron.WithLocation(time.UTC)),
	}

	if _, err := j.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
		defer cancel()
		j.RunOnce(ctx)
	}); err != nil {
		return nil, fmt.Errorf("invalid reminder schedule %q: %w", schedule, err)
	}

	return j, nil
}

// RunOnce sends reminders for installments due today and returns how many were sent.
func (j *Job) RunOnce(ctx context.Context) int {
	today := domain.DateOf(j.clock.Now())
	log := j.log.WithField("due_date", today.Format(domain.DateLayout))

	sent, err := j.reminder.RemindDueInstallments(ctx, today)
	if err != nil {
		log.WithError(err).WithField("sent", sent).Error("reminder run failed")
		return sent
	}

	log.WithField("sent", sent).Info("reminder run completed")
	return sent
}

// Start begins running the schedule in the background.
func (j *Job) Start() {
	j.cron.Start()
}

// Stop halts the schedule and waits for a running job to finish or ctx to expire.
func (j *Job) Stop(ctx context.Context) {
	done := j.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		j.log.Warn("reminder job did not finish before shutdown")
	}
}
