package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeekStart(t *testing.T) {
	monday := date(2024, time.January, 15)
	for i := 0; i < 7; i++ {
		assert.Equal(t, monday, WeekStart(monday.AddDate(0, 0, i)), "day %d", i)
	}
	assert.Equal(t, date(2024, time.January, 22), WeekStart(date(2024, time.January, 22)))
}

func TestWeekSchedule(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture()
	doctor := uuid.New()

	f.repo.addBlock(TimeBlock{DoctorID: doctor, Date: date(2024, time.January, 17), StartTime: hm(14, 0), EndTime: hm(15, 0)})
	f.repo.addBlock(TimeBlock{DoctorID: doctor, Date: date(2024, time.January, 17), StartTime: hm(9, 0), EndTime: hm(10, 0)})
	f.repo.addBlock(TimeBlock{DoctorID: doctor, Date: date(2024, time.January, 18), StartTime: hm(9, 0), EndTime: hm(10, 0), State: BlockInactive})
	f.repo.addBlock(TimeBlock{DoctorID: doctor, Date: date(2024, time.January, 22), StartTime: hm(9, 0), EndTime: hm(10, 0)})
	appt := f.repo.addAppointment(Appointment{DoctorID: doctor, ScheduledAt: time.Date(2024, time.January, 21, 16, 0, 0, 0, time.UTC), DurationMinutes: 30})
	f.repo.addAppointment(Appointment{DoctorID: doctor, ScheduledAt: time.Date(2024, time.January, 16, 16, 0, 0, 0, time.UTC), DurationMinutes: 30, Status: StatusCancelled})

	week, err := f.svc.WeekSchedule(ctx, doctorCaller(doctor), doctor, date(2024, time.January, 17))
	require.NoError(t, err)

	assert.Equal(t, date(2024, time.January, 15), week.WeekStart)
	assert.Equal(t, date(2024, time.January, 21), week.WeekEnd)
	require.Len(t, week.Days, 7)

	wednesday := week.Days[2]
	assert.Equal(t, date(2024, time.January, 17), wednesday.Date)
	require.Len(t, wednesday.TimeBlocks, 2)
	assert.Equal(t, hm(9, 0), wednesday.TimeBlocks[0].StartTime)
	assert.Equal(t, hm(14, 0), wednesday.TimeBlocks[1].StartTime)

	assert.Empty(t, week.Days[3].TimeBlocks, "inactive blocks are hidden")
	assert.Empty(t, week.Days[1].Appointments, "cancelled appointments are hidden")

	sunday := week.Days[6]
	require.Len(t, sunday.Appointments, 1)
	assert.Equal(t, appt.ID, sunday.Appointments[0].ID)

	for _, d := range week.Days {
		assert.NotNil(t, d.TimeBlocks)
		assert.NotNil(t, d.Appointments)
	}
}

func TestWeekScheduleRequiresAccess(t *testing.T) {
	f := newServiceFixture()
	_, err := f.svc.WeekSchedule(context.Background(), doctorCaller(uuid.New()), uuid.New(), date(2024, time.January, 17))
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}
