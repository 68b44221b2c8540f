package scheduling

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"
)

// MaxRecurrenceSpan bounds how far one recurring request may reach.
const MaxRecurrenceSpan = 366 * 24 * time.Hour

var rruleWeekdays = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

type RecurrenceRequest struct {
	DoctorID   uuid.UUID
	DaysOfWeek []time.Weekday
	RangeStart time.Time
	RangeEnd   time.Time
	StartTime  TimeOfDay
	EndTime    TimeOfDay
	Reason     string
}

// SkippedDate is a date left out of a series because it collided with Conflict.
type SkippedDate struct {
	Date     time.Time
	Conflict *Conflict
}

// Expansion is the outcome of expanding one recurring request. An empty
// Candidates list with a Reason is a normal result, not an error.
type Expansion struct {
	GroupID    uuid.UUID
	Candidates []*TimeBlock
	Skipped    []SkippedDate
	Reason     string
}

type RecurrenceExpander struct {
	checker *ConflictChecker
	now     func() time.Time
}

func NewRecurrenceExpander(checker *ConflictChecker, now func() time.Time) *RecurrenceExpander {
	if now == nil {
		now = time.Now
	}
	return &RecurrenceExpander{checker: checker, now: now}
}

// Dates lists every date in [RangeStart, RangeEnd] whose weekday is selected.
// The returned reason explains an empty result.
func (e *RecurrenceExpander) Dates(req RecurrenceRequest) ([]time.Time, string, error) {
	if req.RangeStart.IsZero() || req.RangeEnd.IsZero() {
		return nil, "", &ValidationError{Field: "date_range", Reason: "start and end dates are required"}
	}
	start := DateOf(req.RangeStart)
	end := DateOf(req.RangeEnd)
	if err := (TimeInterval{Date: start, Start: req.StartTime, End: req.EndTime}).Validate(); err != nil {
		return nil, "", err
	}
	if end.Before(start) {
		return nil, fmt.Sprintf("date range end %s is before start %s", FormatDate(end), FormatDate(start)), nil
	}
	if end.Sub(start) > MaxRecurrenceSpan {
		return nil, "", &ValidationError{Field: "date_range", Reason: "must not span more than 366 days"}
	}

	weekdays := uniqueWeekdays(req.DaysOfWeek)
	if len(weekdays) == 0 {
		return nil, "no days of week selected", nil
	}

	byDay := make([]rrule.Weekday, 0, len(weekdays))
	for _, wd := range weekdays {
		byDay = append(byDay, rruleWeekdays[wd])
	}

	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Dtstart:   start,
		Until:     end,
		Byweekday: byDay,
	})
	if err != nil {
		return nil, "", fmt.Errorf("build recurrence rule: %w", err)
	}

	dates := rule.All()
	if len(dates) == 0 {
		names := make([]string, 0, len(weekdays))
		for _, wd := range weekdays {
			names = append(names, wd.String())
		}
		return nil, fmt.Sprintf("no %s falls between %s and %s", strings.Join(names, "/"), FormatDate(start), FormatDate(end)), nil
	}

	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		out = append(out, DateOf(d))
	}
	return out, "", nil
}

// Expand turns the request into time block candidates, skipping and reporting
// the dates that conflict with the doctor's existing calendar in store.
func (e *RecurrenceExpander) Expand(ctx context.Context, store Store, req RecurrenceRequest) (*Expansion, error) {
	dates, reason, err := e.Dates(req)
	if err != nil {
		return nil, err
	}

	exp := &Expansion{GroupID: uuid.New(), Reason: reason}
	if len(dates) == 0 {
		return exp, nil
	}

	now := e.now().UTC()
	groupID := exp.GroupID
	for _, date := range dates {
		candidate := TimeInterval{Date: date, Start: req.StartTime, End: req.EndTime}

		conflict, err := e.checker.FindConflict(ctx, store, req.DoctorID, candidate, Exclusions{})
		if err != nil {
			return nil, fmt.Errorf("check %s: %w", FormatDate(date), err)
		}
		if conflict != nil {
			exp.Skipped = append(exp.Skipped, SkippedDate{Date: date, Conflict: conflict})
			continue
		}

		exp.Candidates = append(exp.Candidates, &TimeBlock{
			ID:                uuid.New(),
			DoctorID:          req.DoctorID,
			Date:              date,
			StartTime:         req.StartTime,
			EndTime:           req.EndTime,
			Reason:            req.Reason,
			State:             BlockActive,
			RecurrenceGroupID: &groupID,
			CreatedAt:         now,
			UpdatedAt:         now,
		})
	}

	if len(exp.Candidates) == 0 {
		exp.Reason = "every date in the range conflicts with an existing booking"
	}
	return exp, nil
}

func uniqueWeekdays(days []time.Weekday) []time.Weekday {
	seen := make(map[time.Weekday]bool, len(days))
	out := make([]time.Weekday, 0, len(days))
	for _, d := range days {
		if d < time.Sunday || d > time.Saturday || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
