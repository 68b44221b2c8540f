package report

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/telehealth-scheduling/internal/auth"
)

const (
	maxNameLength        = 200
	defaultExecutionPage = 20
	maxExecutionPage     = 200
)

// ScheduleInput is the client-editable part of a schedule. NextRun is not
// part of it on purpose: the server always computes it.
type ScheduleInput struct {
	ReportType   string
	Name         string
	CronSchedule string
	Frequency    string
	Timezone     string
	Recipients   []string
	Format       string
	Active       *bool
}

type Service struct {
	repo     Repository
	executor *Executor
	calc     *Calculator
	logger   zerolog.Logger
}

func NewService(repo Repository, executor *Executor, calc *Calculator, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		executor: executor,
		calc:     calc,
		logger:   logger,
	}
}

func (s *Service) Catalogue() []Definition {
	return Catalogue
}

func (s *Service) Create(ctx context.Context, caller auth.Caller, in ScheduleInput) (*ScheduledReport, error) {
	if !caller.IsAdmin() {
		return nil, ErrForbidden
	}

	r := &ScheduledReport{
		ID:        uuid.New(),
		Active:    true,
		CreatedBy: caller.ID,
	}
	if err := s.apply(r, in); err != nil {
		return nil, err
	}

	now := s.calc.Now()
	r.CreatedAt = now
	r.UpdatedAt = now
	r.NextRun = s.calc.NextRunFrom(now, r)

	if err := s.repo.InsertSchedule(ctx, r); err != nil {
		return nil, err
	}

	s.logger.Info().
		Stringer("schedule_id", r.ID).
		Str("report_type", r.ReportType).
		Str("frequency", string(r.Frequency)).
		Time("next_run", r.NextRun).
		Msg("scheduled report created")
	return r, nil
}

func (s *Service) Update(ctx context.Context, caller auth.Caller, id uuid.UUID, in ScheduleInput) (*ScheduledReport, error) {
	if !caller.IsAdmin() {
		return nil, ErrForbidden
	}

	r, err := s.repo.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(r, in); err != nil {
		return nil, err
	}

	now := s.calc.Now()
	r.UpdatedAt = now
	r.NextRun = s.calc.NextRunFrom(now, r)

	if err := s.repo.UpdateSchedule(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) Delete(ctx context.Context, caller auth.Caller, id uuid.UUID) error {
	if !caller.IsAdmin() {
		return ErrForbidden
	}
	return s.repo.DeleteSchedule(ctx, id)
}

func (s *Service) Get(ctx context.Context, caller auth.Caller, id uuid.UUID) (*ScheduledReport, error) {
	if !caller.IsAdmin() {
		return nil, ErrForbidden
	}
	return s.repo.GetSchedule(ctx, id)
}

func (s *Service) List(ctx context.Context, caller auth.Caller) ([]ScheduledReport, error) {
	if !caller.IsAdmin() {
		return nil, ErrForbidden
	}
	return s.repo.ListSchedules(ctx)
}

func (s *Service) ListExecutions(ctx context.Context, caller auth.Caller, id uuid.UUID, limit int) ([]Execution, error) {
	if !caller.IsAdmin() {
		return nil, ErrForbidden
	}
	if _, err := s.repo.GetSchedule(ctx, id); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultExecutionPage
	}
	if limit > maxExecutionPage {
		limit = maxExecutionPage
	}
	return s.repo.ListExecutions(ctx, id, limit)
}

// ExecuteNow runs a schedule out of band. It counts as a run: the execution is
// recorded and the next run is recomputed.
func (s *Service) ExecuteNow(ctx context.Context, caller auth.Caller, id uuid.UUID, sendEmail bool) (*ExecutionResult, error) {
	if !caller.IsAdmin() {
		return nil, ErrForbidden
	}
	return s.executor.Execute(ctx, id, sendEmail)
}

func (s *Service) apply(r *ScheduledReport, in ScheduleInput) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if len(name) > maxNameLength {
		return &ValidationError{Field: "name", Reason: fmt.Sprintf("must be at most %d characters", maxNameLength)}
	}

	reportType := strings.TrimSpace(in.ReportType)
	if FindDefinition(reportType) == nil {
		return &ValidationError{Field: "report_type", Reason: fmt.Sprintf("unknown report %q", reportType)}
	}

	spec, err := ParseCron(in.CronSchedule)
	if err != nil {
		return err
	}

	freq, err := ParseFrequency(in.Frequency)
	if err != nil {
		return err
	}
	format, err := ParseFormat(in.Format)
	if err != nil {
		return err
	}

	tz := strings.TrimSpace(in.Timezone)
	if tz == "" {
		tz = DefaultTimezone
	}
	if _, err := LoadLocation(tz); err != nil {
		return &ValidationError{Field: "timezone", Reason: fmt.Sprintf("unknown timezone %q", tz)}
	}

	recipients, err := normalizeRecipients(in.Recipients)
	if err != nil {
		return err
	}

	r.Name = name
	r.ReportType = reportType
	r.CronSchedule = spec.String()
	r.Frequency = freq
	r.Format = format
	r.Timezone = tz
	r.Recipients = recipients
	if in.Active != nil {
		r.Active = *in.Active
	}
	return nil
}

// ParseFrequency accepts the enum in any case, with or without separators
// ("Bi-Weekly", "bi_weekly", "biweekly").
func ParseFrequency(s string) (Frequency, error) {
	key := strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(s)))
	switch key {
	case "daily":
		return Daily, nil
	case "weekly":
		return Weekly, nil
	case "biweekly":
		return BiWeekly, nil
	case "monthly":
		return Monthly, nil
	case "quarterly":
		return Quarterly, nil
	}
	return "", &ValidationError{Field: "frequency", Reason: fmt.Sprintf("unknown frequency %q", s)}
}

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pdf":
		return FormatPDF, nil
	case "excel", "xlsx":
		return FormatExcel, nil
	case "csv":
		return FormatCSV, nil
	}
	return "", &ValidationError{Field: "format", Reason: fmt.Sprintf("unknown format %q", s)}
}

func normalizeRecipients(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, raw := range in {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		addr, err := mail.ParseAddress(raw)
		if err != nil {
			return nil, &ValidationError{Field: "recipients", Reason: fmt.Sprintf("%q is not an email address", raw)}
		}
		key := strings.ToLower(addr.Address)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, addr.Address)
	}
	return out, nil
}
