package scheduling

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock offset from midnight in minutes. 24:00 is only
// meaningful as the exclusive end of an interval.
type TimeOfDay int

const (
	Midnight TimeOfDay = 0
	EndOfDay TimeOfDay = 24 * 60
)

const dateOnly = "2006-01-02"

func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// ParseTimeOfDay accepts "HH:MM" (and "24:00").
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return 0, fmt.Errorf("time of day %q: want HH:MM", s)
	}
	h, errH := strconv.Atoi(hh)
	m, errM := strconv.Atoi(mm)
	if errH != nil || errM != nil {
		return 0, fmt.Errorf("time of day %q: want HH:MM", s)
	}
	if m < 0 || m > 59 || h < 0 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("time of day %q: out of range", s)
	}
	return NewTimeOfDay(h, m), nil
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

func (t TimeOfDay) Duration() time.Duration {
	return time.Duration(t) * time.Minute
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// DateOf truncates t to its calendar day in t's own location and returns that
// day as midnight UTC, the canonical representation of a date in this package.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(dateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: want YYYY-MM-DD", s)
	}
	return d, nil
}

func FormatDate(d time.Time) string {
	return d.Format(dateOnly)
}

// TimeInterval is a half-open [Start, End) span on a single calendar day.
type TimeInterval struct {
	Date  time.Time
	Start TimeOfDay
	End   TimeOfDay
}

func NewTimeInterval(date time.Time, start, end TimeOfDay) TimeInterval {
	return TimeInterval{Date: DateOf(date), Start: start, End: end}
}

func (i TimeInterval) Validate() error {
	if i.Date.IsZero() {
		return &ValidationError{Field: "date", Reason: "is required"}
	}
	if i.Start < Midnight || i.Start >= EndOfDay {
		return &ValidationError{Field: "start_time", Reason: "must be within the day"}
	}
	if i.End <= Midnight || i.End > EndOfDay {
		return &ValidationError{Field: "end_time", Reason: "must be within the day; split intervals that cross midnight"}
	}
	if i.Start == i.End {
		return &ValidationError{Field: "end_time", Reason: "zero-length interval"}
	}
	if i.Start > i.End {
		return &ValidationError{Field: "end_time", Reason: "must be after start_time"}
	}
	return nil
}

// Overlaps uses half-open semantics: touching intervals do not overlap.
func (i TimeInterval) Overlaps(o TimeInterval) bool {
	if !i.Date.Equal(o.Date) {
		return false
	}
	return i.Start < o.End && o.Start < i.End
}

// StartIn returns the absolute start instant when the date is read in loc.
func (i TimeInterval) StartIn(loc *time.Location) time.Time {
	return wallClock(i.Date, i.Start, loc)
}

func (i TimeInterval) EndIn(loc *time.Location) time.Time {
	return wallClock(i.Date, i.End, loc)
}

func (i TimeInterval) String() string {
	return fmt.Sprintf("%s %s-%s", FormatDate(i.Date), i.Start, i.End)
}

func wallClock(date time.Time, t TimeOfDay, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, loc)
}

// intervalsForSpan places [start, end) on the calendar in loc, producing one
// interval per day the span touches.
func intervalsForSpan(start, end time.Time, loc *time.Location) []TimeInterval {
	start = start.In(loc)
	end = end.In(loc)
	if !end.After(start) {
		return nil
	}

	var out []TimeInterval
	for cur := start; cur.Before(end); {
		day := DateOf(cur)
		nextMidnight := time.Date(cur.Year(), cur.Month(), cur.Day()+1, 0, 0, 0, 0, loc)

		from := TimeOfDay(cur.Hour()*60 + cur.Minute())
		to := EndOfDay
		if end.Before(nextMidnight) {
			to = TimeOfDay(end.Hour()*60 + end.Minute())
			// sub-minute tails still occupy the minute they start in
			if end.Second() > 0 || end.Nanosecond() > 0 {
				to++
			}
		}
		if to > from {
			out = append(out, TimeInterval{Date: day, Start: from, End: to})
		}
		cur = nextMidnight
	}
	return out
}
