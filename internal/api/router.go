package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/telehealth-scheduling/internal/auth"
	"github.com/hackgods/telehealth-scheduling/internal/report"
	"github.com/hackgods/telehealth-scheduling/internal/scheduling"
)

type SchedulingService interface {
	CreateTimeBlock(ctx context.Context, caller auth.Caller, in scheduling.CreateTimeBlockInput) (*scheduling.TimeBlock, error)
	CreateRecurringTimeBlocks(ctx context.Context, caller auth.Caller, in scheduling.RecurringTimeBlockInput) (*scheduling.RecurringResult, error)
	UpdateTimeBlock(ctx context.Context, caller auth.Caller, in scheduling.UpdateTimeBlockInput) (*scheduling.TimeBlock, error)
	DeleteTimeBlock(ctx context.Context, caller auth.Caller, id, doctorID uuid.UUID) (bool, error)
	DeactivateTimeBlock(ctx context.Context, caller auth.Caller, id, doctorID uuid.UUID) (bool, error)
	ActivateTimeBlock(ctx context.Context, caller auth.Caller, id, doctorID uuid.UUID) (bool, error)
	DeleteRecurrenceGroup(ctx context.Context, caller auth.Caller, groupID, doctorID uuid.UUID) (int, error)
	ListTimeBlocks(ctx context.Context, caller auth.Caller, doctorID uuid.UUID, from, to time.Time) ([]scheduling.TimeBlock, error)
	FindConflict(ctx context.Context, caller auth.Caller, doctorID uuid.UUID, candidate scheduling.TimeInterval, ex scheduling.Exclusions) (*scheduling.Conflict, error)
	RescheduleAppointment(ctx context.Context, caller auth.Caller, appointmentID uuid.UUID, newStart time.Time) (*scheduling.Appointment, error)
	WeekSchedule(ctx context.Context, caller auth.Caller, doctorID uuid.UUID, day time.Time) (*scheduling.WeekSchedule, error)
}

type ReportService interface {
	Catalogue() []report.Definition
	Create(ctx context.Context, caller auth.Caller, in report.ScheduleInput) (*report.ScheduledReport, error)
	Update(ctx context.Context, caller auth.Caller, id uuid.UUID, in report.ScheduleInput) (*report.ScheduledReport, error)
	Delete(ctx context.Context, caller auth.Caller, id uuid.UUID) error
	Get(ctx context.Context, caller auth.Caller, id uuid.UUID) (*report.ScheduledReport, error)
	List(ctx context.Context, caller auth.Caller) ([]report.ScheduledReport, error)
	ListExecutions(ctx context.Context, caller auth.Caller, id uuid.UUID, limit int) ([]report.Execution, error)
	ExecuteNow(ctx context.Context, caller auth.Caller, id uuid.UUID, sendEmail bool) (*report.ExecutionResult, error)
}

type RouterConfig struct {
	Scheduling SchedulingService
	Reports    ReportService
	Verifier   *auth.TokenVerifier
	Health     *HealthHandler
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Logger  zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(RecoveryMiddleware)

	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Verifier))

		sched := &schedulingHandlers{svc: cfg.Scheduling}
		r.Route("/doctors/{doctorID}", func(r chi.Router) {
			r.Get("/time-blocks", sched.list)
			r.Post("/time-blocks", sched.create)
			r.Post("/time-blocks/recurring", sched.createRecurring)
			r.Post("/time-blocks/check-conflict", sched.checkConflict)
			r.Delete("/time-blocks/{id}", sched.transition(cfg.Scheduling.DeleteTimeBlock))
			r.Post("/time-blocks/{id}/deactivate", sched.transition(cfg.Scheduling.DeactivateTimeBlock))
			r.Post("/time-blocks/{id}/activate", sched.transition(cfg.Scheduling.ActivateTimeBlock))
			r.Delete("/recurrence-groups/{groupID}", sched.deleteGroup)
			r.Get("/schedule/week", sched.week)
		})
		r.Patch("/time-blocks/{id}", sched.update)
		r.Post("/appointments/{id}/reschedule", sched.reschedule)

		reports := &reportHandlers{svc: cfg.Reports}
		r.Route("/scheduled-reports", func(r chi.Router) {
			r.Get("/", reports.list)
			r.Post("/", reports.create)
			r.Get("/catalogue", reports.catalogue)
			r.Get("/{id}", reports.get)
			r.Put("/{id}", reports.update)
			r.Delete("/{id}", reports.delete)
			r.Get("/{id}/executions", reports.executions)
			r.Post("/{id}/execute", reports.execute)
		})
	})

	return r
}

func callerFrom(r *http.Request) auth.Caller {
	c, _ := auth.CallerFrom(r.Context())
	return c
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_id",
			Field:   name,
			Details: name + " must be a valid UUID",
		})
		return uuid.Nil, false
	}
	return id, true
}
