package report

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telehealth-scheduling/internal/auth"
	"github.com/hackgods/telehealth-scheduling/internal/mail"
)

var ist = time.FixedZone("IST", 5*60*60+30*60)

type memRepo struct {
	mu         sync.Mutex
	schedules  map[uuid.UUID]*ScheduledReport
	retired    map[uuid.UUID]*ScheduledReport
	executions []*Execution
	finishErr  error
}

func newMemRepo() *memRepo {
	return &memRepo{
		schedules: map[uuid.UUID]*ScheduledReport{},
		retired:   map[uuid.UUID]*ScheduledReport{},
	}
}

func cloneSchedule(r *ScheduledReport) *ScheduledReport {
	cp := *r
	cp.Recipients = append([]string(nil), r.Recipients...)
	return &cp
}

func (m *memRepo) add(r ScheduledReport) *ScheduledReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	m.schedules[r.ID] = cloneSchedule(&r)
	return &r
}

func (m *memRepo) schedule(id uuid.UUID) *ScheduledReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneSchedule(m.schedules[id])
}

func (m *memRepo) executionsFor(id uuid.UUID) []Execution {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Execution{}
	for _, e := range m.executions {
		if e.ScheduleID == id {
			out = append(out, *e)
		}
	}
	return out
}

func (m *memRepo) GetSchedule(_ context.Context, id uuid.UUID) (*ScheduledReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.schedules[id]
	if !ok {
		return nil, ErrReportNotFound
	}
	return cloneSchedule(r), nil
}

func (m *memRepo) ListSchedules(_ context.Context) ([]ScheduledReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []ScheduledReport{}
	for _, r := range m.schedules {
		out = append(out, *cloneSchedule(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memRepo) ListDue(_ context.Context, now time.Time) ([]ScheduledReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []ScheduledReport{}
	for _, r := range m.schedules {
		if r.Active && !r.NextRun.After(now) {
			out = append(out, *cloneSchedule(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRun.Before(out[j].NextRun) })
	return out, nil
}

func (m *memRepo) InsertSchedule(_ context.Context, r *ScheduledReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[r.ID] = cloneSchedule(r)
	return nil
}

func (m *memRepo) UpdateSchedule(_ context.Context, r *ScheduledReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedules[r.ID]; !ok {
		return ErrReportNotFound
	}
	m.schedules[r.ID] = cloneSchedule(r)
	return nil
}

func (m *memRepo) DeleteSchedule(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.schedules[id]
	if !ok {
		return ErrReportNotFound
	}
	r.Active = false
	m.retired[id] = r
	delete(m.schedules, id)
	return nil
}

func (m *memRepo) InsertExecution(_ context.Context, e *Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedules[e.ScheduleID]; !ok {
		return ErrReportNotFound
	}
	cp := *e
	m.executions = append(m.executions, &cp)
	return nil
}

func (m *memRepo) ListExecutions(_ context.Context, scheduleID uuid.UUID, limit int) ([]Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Execution{}
	for i := len(m.executions) - 1; i >= 0 && len(out) < limit; i-- {
		if m.executions[i].ScheduleID == scheduleID {
			out = append(out, *m.executions[i])
		}
	}
	return out, nil
}

func (m *memRepo) FinishRun(_ context.Context, e *Execution, r *ScheduledReport) error {
	if m.finishErr != nil {
		return m.finishErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, stored := range m.executions {
		if stored.ID == e.ID {
			cp := *e
			m.executions[i] = &cp
		}
	}
	if stored, ok := m.schedules[r.ID]; ok {
		stored.LastRun = r.LastRun
		stored.LastRunStatus = r.LastRunStatus
		stored.LastRunError = r.LastRunError
		stored.NextRun = r.NextRun
	}
	return nil
}

type fakeSource struct {
	err      error
	panicMsg string
}

func (s fakeSource) Generate(_ context.Context, reportType string, at time.Time) (*Dataset, error) {
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	if s.err != nil {
		return nil, s.err
	}
	return &Dataset{
		ReportType:  reportType,
		Title:       "Appointment Volume",
		GeneratedAt: at,
		Columns:     []string{"status", "total"},
		Rows:        [][]any{{"confirmed", int64(12)}, {"cancelled", int64(3)}},
	}, nil
}

type fakeMailer struct {
	mu      sync.Mutex
	fail    map[string]bool
	panicOn map[string]bool
	// hang blocks until the send context ends, like an unresponsive SMTP server
	hang map[string]bool
	sent []mail.Message
}

func (f *fakeMailer) Send(ctx context.Context, msg mail.Message) error {
	if f.hang[msg.To] {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.panicOn[msg.To] {
		panic("smtp client exploded")
	}
	if f.fail[msg.To] {
		return errors.New("mailbox unavailable")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

type busyLocker struct{ err error }

func (l busyLocker) WithLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	if l.err != nil {
		return l.err
	}
	return fn(ctx)
}

var admin = auth.Caller{ID: uuid.New(), Role: auth.RoleAdmin}
