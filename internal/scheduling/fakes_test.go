package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telehealth-scheduling/internal/auth"
	redisclient "github.com/hackgods/telehealth-scheduling/internal/redis"
)

type memRepo struct {
	mu     sync.Mutex
	txMu   sync.Mutex
	blocks map[uuid.UUID]*TimeBlock
	appts  map[uuid.UUID]*Appointment
	events []EventLog

	insertErr error
}

func newMemRepo() *memRepo {
	return &memRepo{
		blocks: map[uuid.UUID]*TimeBlock{},
		appts:  map[uuid.UUID]*Appointment{},
	}
}

func (r *memRepo) WithDoctorTx(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context, tx Store) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	return fn(ctx, r)
}

func (r *memRepo) addBlock(b TimeBlock) *TimeBlock {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.State == "" {
		b.State = BlockActive
	}
	b.Date = DateOf(b.Date)
	r.blocks[b.ID] = &b
	return &b
}

func (r *memRepo) addAppointment(a Appointment) *Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = StatusConfirmed
	}
	r.appts[a.ID] = &a
	return &a
}

func (r *memRepo) block(id uuid.UUID) TimeBlock {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.blocks[id]
}

func (r *memRepo) appointment(id uuid.UUID) Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.appts[id]
}

func (r *memRepo) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.EventType)
	}
	return out
}

func (r *memRepo) GetTimeBlock(_ context.Context, id uuid.UUID) (*TimeBlock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.blocks[id]
	if !ok {
		return nil, ErrTimeBlockNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *memRepo) ListActiveTimeBlocksOn(_ context.Context, doctorID uuid.UUID, date time.Time) ([]TimeBlock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []TimeBlock{}
	for _, b := range r.blocks {
		if b.DoctorID == doctorID && b.Date.Equal(DateOf(date)) && b.State == BlockActive {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

func (r *memRepo) ListTimeBlocks(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]TimeBlock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []TimeBlock{}
	for _, b := range r.blocks {
		if b.DoctorID != doctorID || b.State == BlockDeleted {
			continue
		}
		if b.Date.Before(DateOf(from)) || b.Date.After(DateOf(to)) {
			continue
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

func (r *memRepo) InsertTimeBlocks(_ context.Context, blocks []*TimeBlock) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range blocks {
		cp := *b
		r.blocks[b.ID] = &cp
	}
	return nil
}

func (r *memRepo) UpdateTimeBlock(_ context.Context, b *TimeBlock) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.blocks[b.ID]
	if !ok || cur.State == BlockDeleted {
		return ErrTimeBlockNotFound
	}
	cp := *b
	r.blocks[b.ID] = &cp
	return nil
}

func (r *memRepo) SetTimeBlockState(_ context.Context, id uuid.UUID, state BlockState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.blocks[id]
	if !ok || b.State == BlockDeleted {
		return ErrTimeBlockNotFound
	}
	b.State = state
	return nil
}

func (r *memRepo) SetGroupState(_ context.Context, doctorID, groupID uuid.UUID, state BlockState) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.blocks {
		if b.DoctorID != doctorID || b.RecurrenceGroupID == nil || *b.RecurrenceGroupID != groupID {
			continue
		}
		if b.State == BlockDeleted || b.State == state {
			continue
		}
		b.State = state
		n++
	}
	return n, nil
}

func (r *memRepo) GetAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memRepo) ListAppointmentsBetween(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Appointment{}
	for _, a := range r.appts {
		if a.DoctorID != doctorID || a.Status == StatusCancelled {
			continue
		}
		if a.ScheduledAt.Before(to) && a.EndsAt().After(from) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (r *memRepo) UpdateAppointmentTime(_ context.Context, id uuid.UUID, scheduledAt time.Time) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	a.ScheduledAt = scheduledAt
	cp := *a
	return &cp, nil
}

func (r *memRepo) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

type passLocker struct {
	err   error
	calls int
}

func (l *passLocker) WithDoctorLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	l.calls++
	if l.err != nil {
		return l.err
	}
	return fn(ctx)
}

var _ redisclient.Locker = (*passLocker)(nil)

type pushed struct {
	userID    uuid.UUID
	eventType string
}

type recordingPusher struct {
	mu   sync.Mutex
	sent []pushed
}

func (p *recordingPusher) Push(_ context.Context, userID uuid.UUID, eventType string, _ map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, pushed{userID: userID, eventType: eventType})
}

func doctorCaller(id uuid.UUID) auth.Caller {
	return auth.Caller{ID: id, Role: auth.RoleDoctor}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func hm(h, m int) TimeOfDay {
	return NewTimeOfDay(h, m)
}
