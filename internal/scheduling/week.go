package scheduling

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telehealth-scheduling/internal/auth"
)

type DaySchedule struct {
	Date         time.Time
	Appointments []Appointment
	TimeBlocks   []TimeBlock
}

// WeekSchedule is the Monday-to-Sunday read model shown on the doctor's calendar.
type WeekSchedule struct {
	DoctorID  uuid.UUID
	WeekStart time.Time
	WeekEnd   time.Time
	Days      []DaySchedule
}

// WeekStart returns the Monday of the week containing day.
func WeekStart(day time.Time) time.Time {
	d := DateOf(day)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

func (s *Service) WeekSchedule(ctx context.Context, caller auth.Caller, doctorID uuid.UUID, day time.Time) (*WeekSchedule, error) {
	if !caller.CanManageDoctor(doctorID) {
		return nil, ErrDoctorNotFound
	}
	if day.IsZero() {
		return nil, &ValidationError{Field: "week", Reason: "is required"}
	}

	start := WeekStart(day)
	end := start.AddDate(0, 0, 6)
	loc := s.Location()

	blocks, err := s.repo.ListTimeBlocks(ctx, doctorID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list time blocks: %w", err)
	}
	appts, err := s.repo.ListAppointmentsBetween(ctx, doctorID, wallClock(start, Midnight, loc), wallClock(end, EndOfDay, loc))
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	week := &WeekSchedule{
		DoctorID:  doctorID,
		WeekStart: start,
		WeekEnd:   end,
		Days:      make([]DaySchedule, 7),
	}
	for i := range week.Days {
		week.Days[i] = DaySchedule{
			Date:         start.AddDate(0, 0, i),
			Appointments: []Appointment{},
			TimeBlocks:   []TimeBlock{},
		}
	}

	for _, b := range blocks {
		if !b.IsActive() {
			continue
		}
		if idx := dayIndex(start, b.Date); idx >= 0 {
			week.Days[idx].TimeBlocks = append(week.Days[idx].TimeBlocks, b)
		}
	}
	for _, a := range appts {
		if !a.Blocking() {
			continue
		}
		if idx := dayIndex(start, DateOf(a.ScheduledAt.In(loc))); idx >= 0 {
			week.Days[idx].Appointments = append(week.Days[idx].Appointments, a)
		}
	}

	for i := range week.Days {
		day := &week.Days[i]
		sort.Slice(day.TimeBlocks, func(a, b int) bool {
			return day.TimeBlocks[a].StartTime < day.TimeBlocks[b].StartTime
		})
		sort.Slice(day.Appointments, func(a, b int) bool {
			return day.Appointments[a].ScheduledAt.Before(day.Appointments[b].ScheduledAt)
		})
	}

	return week, nil
}

func dayIndex(weekStart, date time.Time) int {
	idx := int(date.Sub(weekStart).Hours() / 24)
	if idx < 0 || idx > 6 {
		return -1
	}
	return idx
}
