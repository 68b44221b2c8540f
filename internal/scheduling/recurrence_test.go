package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExpander() *RecurrenceExpander {
	now := func() time.Time { return time.Date(2023, time.December, 1, 0, 0, 0, 0, time.UTC) }
	return NewRecurrenceExpander(NewConflictChecker(time.UTC), now)
}

func TestRecurrenceDates(t *testing.T) {
	req := RecurrenceRequest{
		DoctorID:   uuid.New(),
		DaysOfWeek: []time.Weekday{time.Wednesday, time.Monday, time.Monday},
		RangeStart: date(2024, time.January, 1),
		RangeEnd:   date(2024, time.January, 31),
		StartTime:  hm(12, 0),
		EndTime:    hm(13, 0),
	}

	dates, reason, err := newExpander().Dates(req)
	require.NoError(t, err)
	assert.Empty(t, reason)

	want := []time.Time{}
	for _, d := range []int{1, 3, 8, 10, 15, 17, 22, 24, 29, 31} {
		want = append(want, date(2024, time.January, d))
	}
	assert.Equal(t, want, dates)

	for _, d := range dates {
		assert.Contains(t, []time.Weekday{time.Monday, time.Wednesday}, d.Weekday())
	}
}

func TestRecurrenceDatesSingleDay(t *testing.T) {
	req := RecurrenceRequest{
		DaysOfWeek: []time.Weekday{time.Friday},
		RangeStart: date(2024, time.February, 2),
		RangeEnd:   date(2024, time.February, 2),
		StartTime:  hm(9, 0),
		EndTime:    hm(10, 0),
	}

	dates, _, err := newExpander().Dates(req)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{date(2024, time.February, 2)}, dates)
}

func TestRecurrenceDatesEmptyResults(t *testing.T) {
	base := RecurrenceRequest{
		DaysOfWeek: []time.Weekday{time.Saturday},
		RangeStart: date(2024, time.January, 1),
		RangeEnd:   date(2024, time.January, 5),
		StartTime:  hm(9, 0),
		EndTime:    hm(10, 0),
	}

	t.Run("no matching weekday", func(t *testing.T) {
		dates, reason, err := newExpander().Dates(base)
		require.NoError(t, err)
		assert.Empty(t, dates)
		assert.Contains(t, reason, "Saturday")
	})

	t.Run("no weekdays", func(t *testing.T) {
		req := base
		req.DaysOfWeek = nil
		dates, reason, err := newExpander().Dates(req)
		require.NoError(t, err)
		assert.Empty(t, dates)
		assert.NotEmpty(t, reason)
	})

	t.Run("end before start", func(t *testing.T) {
		req := base
		req.RangeStart, req.RangeEnd = req.RangeEnd, req.RangeStart
		dates, reason, err := newExpander().Dates(req)
		require.NoError(t, err)
		assert.Empty(t, dates)
		assert.Contains(t, reason, "before")
	})
}

func TestRecurrenceDatesValidation(t *testing.T) {
	base := RecurrenceRequest{
		DaysOfWeek: []time.Weekday{time.Monday},
		RangeStart: date(2024, time.January, 1),
		RangeEnd:   date(2024, time.January, 31),
		StartTime:  hm(9, 0),
		EndTime:    hm(10, 0),
	}

	cases := map[string]func(r *RecurrenceRequest){
		"missing start":   func(r *RecurrenceRequest) { r.RangeStart = time.Time{} },
		"reversed times":  func(r *RecurrenceRequest) { r.StartTime, r.EndTime = r.EndTime, r.StartTime },
		"too long a span": func(r *RecurrenceRequest) { r.RangeEnd = date(2025, time.June, 1) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := base
			mutate(&req)
			_, _, err := newExpander().Dates(req)
			require.Error(t, err)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestExpandSkipsConflictingDates(t *testing.T) {
	ctx := context.Background()
	doctor := uuid.New()

	repo := newMemRepo()
	existing := repo.addBlock(TimeBlock{DoctorID: doctor, Date: date(2024, time.January, 8), StartTime: hm(12, 30), EndTime: hm(13, 30)})

	exp, err := newExpander().Expand(ctx, repo, RecurrenceRequest{
		DoctorID:   doctor,
		DaysOfWeek: []time.Weekday{time.Monday},
		RangeStart: date(2024, time.January, 1),
		RangeEnd:   date(2024, time.January, 22),
		StartTime:  hm(12, 0),
		EndTime:    hm(13, 0),
		Reason:     "lunch",
	})
	require.NoError(t, err)

	require.Len(t, exp.Candidates, 3)
	require.Len(t, exp.Skipped, 1)
	assert.Equal(t, date(2024, time.January, 8), exp.Skipped[0].Date)
	assert.Equal(t, existing.ID, exp.Skipped[0].Conflict.EntityID)
	assert.Empty(t, exp.Reason)

	for _, c := range exp.Candidates {
		require.NotNil(t, c.RecurrenceGroupID)
		assert.Equal(t, exp.GroupID, *c.RecurrenceGroupID)
		assert.Equal(t, "lunch", c.Reason)
		assert.Equal(t, BlockActive, c.State)
		assert.NotEqual(t, date(2024, time.January, 8), c.Date)
	}
}

func TestExpandAllConflicting(t *testing.T) {
	ctx := context.Background()
	doctor := uuid.New()

	repo := newMemRepo()
	repo.addBlock(TimeBlock{DoctorID: doctor, Date: date(2024, time.January, 1), StartTime: Midnight, EndTime: EndOfDay})

	exp, err := newExpander().Expand(ctx, repo, RecurrenceRequest{
		DoctorID:   doctor,
		DaysOfWeek: []time.Weekday{time.Monday},
		RangeStart: date(2024, time.January, 1),
		RangeEnd:   date(2024, time.January, 1),
		StartTime:  hm(9, 0),
		EndTime:    hm(10, 0),
	})
	require.NoError(t, err)
	assert.Empty(t, exp.Candidates)
	assert.Len(t, exp.Skipped, 1)
	assert.NotEmpty(t, exp.Reason)
}
