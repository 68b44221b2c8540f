package report

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	GetSchedule(ctx context.Context, id uuid.UUID) (*ScheduledReport, error)
	ListSchedules(ctx context.Context) ([]ScheduledReport, error)
	// ListDue returns active schedules with next_run <= now, oldest first.
	ListDue(ctx context.Context, now time.Time) ([]ScheduledReport, error)
	InsertSchedule(ctx context.Context, r *ScheduledReport) error
	UpdateSchedule(ctx context.Context, r *ScheduledReport) error
	// DeleteSchedule retires a schedule. Its executions are kept.
	DeleteSchedule(ctx context.Context, id uuid.UUID) error

	InsertExecution(ctx context.Context, e *Execution) error
	// ListExecutions returns the newest executions first, without artifacts.
	ListExecutions(ctx context.Context, scheduleID uuid.UUID, limit int) ([]Execution, error)
	// FinishRun finalises e and stamps r's run fields in one transaction.
	FinishRun(ctx context.Context, e *Execution, r *ScheduledReport) error
}
