package reminders

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type fakeReminder struct {
	dates []time.Time
	sent  int
	err   error
}

func (r *fakeReminder) RemindDueInstallments(ctx context.Context, date time.Time) (int, error) {
	r.dates = append(r.dates, date)
	return r.sent, r.err
}

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestRunOnce(t *testing.T) {
	clock := fixedClock(time.Date(2022, 3, 20, 8, 0, 5, 0, time.UTC))

	tests := []struct {
		name     string
		reminder *fakeReminder
		expected int
	}{
		{name: "reports sent reminders", reminder: &fakeReminder{sent: 3}, expected: 3},
		{name: "partial run on error", reminder: &fakeReminder{sent: 1, err: errors.New("broker down")}, expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, err := NewJob("0 8 * * *", tt.reminder, clock, quietLogger())
			if err != nil {
				t.Fatalf("NewJob failed: %v", err)
			}

			if sent := job.RunOnce(context.Background()); sent != tt.expected {
				t.Errorf("expected %d sent, got %d", tt.expected, sent)
			}
			if len(tt.reminder.dates) != 1 {
				t.Fatalf("expected one reminder call, got %d", len(tt.reminder.dates))
			}
			want := time.Date(2022, 3, 20, 0, 0, 0, 0, time.UTC)
			if !tt.reminder.dates[0].Equal(want) {
				t.Errorf("expected reminder for %v, got %v", want, tt.reminder.dates[0])
			}
		})
	}
}

func TestNewJobRejectsInvalidSchedule(t *testing.T) {
	if _, err := NewJob("every morning", &fakeReminder{}, nil, quietLogger()); err == nil {
		t.Error("expected error for invalid cron spec")
	}
}

func TestStartStop(t *testing.T) {
	job, err := NewJob("@every 1h", &fakeReminder{}, nil, quietLogger())
	if err != nil {
		t.Fatalf("NewJob failed: %v", err)
	}

	job.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	job.Stop(ctx)
}
