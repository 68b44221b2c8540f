package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// DefaultTimezone anchors schedules created without an explicit zone.
const DefaultTimezone = "Asia/Kolkata"

var istFallback = time.FixedZone("IST", 5*60*60+30*60)

// CronSpec is the accepted schedule form: "minute hour * * *".
type CronSpec struct {
	Minute int
	Hour   int
}

func (c CronSpec) String() string {
	return fmt.Sprintf("%d %d * * *", c.Minute, c.Hour)
}

// ParseCron validates a schedule for storage. Day-of-month, month and
// day-of-week are not interpreted, so anything other than "*" is rejected
// instead of being silently ignored.
func ParseCron(schedule string) (CronSpec, error) {
	fields := strings.Fields(schedule)
	if len(fields) != 5 {
		return CronSpec{}, &ValidationError{Field: "cron_schedule", Reason: "want five fields: minute hour * * *"}
	}
	minute, hour, ok := parseClock(fields)
	if !ok {
		return CronSpec{}, &ValidationError{Field: "cron_schedule", Reason: "minute must be 0-59 and hour 0-23"}
	}
	for _, f := range fields[2:] {
		if f != "*" {
			return CronSpec{}, &ValidationError{Field: "cron_schedule", Reason: "day-of-month, month and day-of-week must be *; use frequency instead"}
		}
	}
	return CronSpec{Minute: minute, Hour: hour}, nil
}

func parseClock(fields []string) (minute, hour int, ok bool) {
	if len(fields) < 5 {
		return 0, 0, false
	}
	minute, errM := strconv.Atoi(fields[0])
	hour, errH := strconv.Atoi(fields[1])
	if errM != nil || errH != nil {
		return 0, 0, false
	}
	if minute < 0 || minute > 59 || hour < 0 || hour > 23 {
		return 0, 0, false
	}
	return minute, hour, true
}

// LoadLocation resolves an IANA zone name; empty means DefaultTimezone.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		if name == DefaultTimezone {
			return istFallback, nil
		}
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}

// NextRunAt returns the first run strictly after now. The schedule's hour and
// minute are wall-clock time in loc; the result is UTC. A schedule that cannot
// be read yields now+24h so a broken entry keeps recurring.
func NextRunAt(now time.Time, schedule string, freq Frequency, loc *time.Location) time.Time {
	minute, hour, ok := parseClock(strings.Fields(schedule))
	if !ok {
		return now.UTC().Add(24 * time.Hour)
	}
	if loc == nil {
		loc = istFallback
	}

	local := now.In(loc)
	base := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)

	if base.After(now) {
		return base.UTC()
	}

	// Weekly and bi-weekly runs whose slot has passed today move to the next
	// day first and only then step by whole periods.
	switch freq {
	case Weekly, BiWeekly:
		step := 7
		if freq == BiWeekly {
			step = 14
		}
		candidate := base.AddDate(0, 0, 1)
		for !candidate.After(now) {
			candidate = candidate.AddDate(0, 0, step)
		}
		return candidate.UTC()
	}

	candidate := base
	for k := 1; !candidate.After(now); k++ {
		candidate = advance(base, freq, k)
	}
	return candidate.UTC()
}

// advance moves base forward by k daily, monthly or quarterly steps. Month
// steps are computed from base each time so a 31st keeps returning to the
// 31st where it exists.
func advance(base time.Time, freq Frequency, k int) time.Time {
	switch freq {
	case Monthly:
		return addMonthsClamped(base, k)
	case Quarterly:
		return addMonthsClamped(base, 3*k)
	default:
		return base.AddDate(0, 0, k)
	}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), 0, 0, t.Location())
}

// Calculator stamps schedules with their next run.
type Calculator struct {
	defaultLoc *time.Location
	now        func() time.Time
}

func NewCalculator(defaultLoc *time.Location, now func() time.Time) *Calculator {
	if defaultLoc == nil {
		defaultLoc, _ = LoadLocation(DefaultTimezone)
	}
	if now == nil {
		now = time.Now
	}
	return &Calculator{defaultLoc: defaultLoc, now: now}
}

func (c *Calculator) Now() time.Time {
	return c.now().UTC()
}

// Location returns the schedule's zone, or the default when name is empty or unknown.
func (c *Calculator) Location(name string) *time.Location {
	if name == "" {
		return c.defaultLoc
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return c.defaultLoc
	}
	return loc
}

func (c *Calculator) NextRun(r *ScheduledReport) time.Time {
	return c.NextRunFrom(c.Now(), r)
}

func (c *Calculator) NextRunFrom(now time.Time, r *ScheduledReport) time.Time {
	return NextRunAt(now, r.CronSchedule, r.Frequency, c.Location(r.Timezone))
}
