package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindConflict(t *testing.T) {
	ctx := context.Background()
	doctor := uuid.New()
	day := date(2024, time.January, 15)

	repo := newMemRepo()
	block := repo.addBlock(TimeBlock{DoctorID: doctor, Date: day, StartTime: hm(9, 0), EndTime: hm(10, 0)})
	repo.addBlock(TimeBlock{DoctorID: doctor, Date: day, StartTime: hm(13, 0), EndTime: hm(14, 0), State: BlockInactive})
	repo.addBlock(TimeBlock{DoctorID: uuid.New(), Date: day, StartTime: hm(15, 0), EndTime: hm(16, 0)})
	appt := repo.addAppointment(Appointment{
		DoctorID:        doctor,
		ScheduledAt:     time.Date(2024, time.January, 15, 11, 0, 0, 0, time.UTC),
		DurationMinutes: 30,
	})
	repo.addAppointment(Appointment{
		DoctorID:        doctor,
		ScheduledAt:     time.Date(2024, time.January, 15, 16, 0, 0, 0, time.UTC),
		DurationMinutes: 30,
		Status:          StatusCancelled,
	})

	checker := NewConflictChecker(time.UTC)

	cases := []struct {
		name     string
		iv       TimeInterval
		ex       Exclusions
		wantKind ConflictKind
		wantID   uuid.UUID
	}{
		{name: "overlaps active block", iv: NewTimeInterval(day, hm(9, 30), hm(9, 45)), wantKind: ConflictTimeBlock, wantID: block.ID},
		{name: "touches block end", iv: NewTimeInterval(day, hm(10, 0), hm(10, 30))},
		{name: "inactive block ignored", iv: NewTimeInterval(day, hm(13, 0), hm(14, 0))},
		{name: "other doctor ignored", iv: NewTimeInterval(day, hm(15, 0), hm(16, 0))},
		{name: "overlaps appointment", iv: NewTimeInterval(day, hm(11, 15), hm(12, 0)), wantKind: ConflictAppointment, wantID: appt.ID},
		{name: "cancelled appointment ignored", iv: NewTimeInterval(day, hm(16, 0), hm(16, 30))},
		{name: "excluded block", iv: NewTimeInterval(day, hm(9, 0), hm(10, 0)), ex: Exclusions{TimeBlockID: &block.ID}},
		{name: "excluded appointment", iv: NewTimeInterval(day, hm(11, 0), hm(11, 30)), ex: Exclusions{AppointmentID: &appt.ID}},
		{name: "next day free", iv: NewTimeInterval(day.AddDate(0, 0, 1), hm(9, 0), hm(10, 0))},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conflict, err := checker.FindConflict(ctx, repo, doctor, tc.iv, tc.ex)
			require.NoError(t, err)

			has, err := checker.HasConflict(ctx, repo, doctor, tc.iv, tc.ex)
			require.NoError(t, err)

			if tc.wantKind == "" {
				assert.Nil(t, conflict)
				assert.False(t, has)
				return
			}
			require.NotNil(t, conflict)
			assert.True(t, has)
			assert.Equal(t, tc.wantKind, conflict.Kind)
			assert.Equal(t, tc.wantID, conflict.EntityID)
		})
	}
}

func TestFindConflictAppointmentAcrossMidnight(t *testing.T) {
	ctx := context.Background()
	doctor := uuid.New()

	repo := newMemRepo()
	appt := repo.addAppointment(Appointment{
		DoctorID:        doctor,
		ScheduledAt:     time.Date(2024, time.January, 15, 23, 30, 0, 0, time.UTC),
		DurationMinutes: 60,
	})

	checker := NewConflictChecker(time.UTC)

	conflict, err := checker.FindConflict(ctx, repo, doctor, NewTimeInterval(date(2024, time.January, 16), Midnight, hm(0, 15)), Exclusions{})
	require.NoError(t, err)
	require.NotNil(t, conflict)
	assert.Equal(t, appt.ID, conflict.EntityID)
	assert.Equal(t, hm(0, 30), conflict.Interval.End)

	conflict, err = checker.FindConflict(ctx, repo, doctor, NewTimeInterval(date(2024, time.January, 16), hm(0, 30), hm(1, 0)), Exclusions{})
	require.NoError(t, err)
	assert.Nil(t, conflict)
}

func TestFindConflictUsesClinicTimezone(t *testing.T) {
	ctx := context.Background()
	doctor := uuid.New()
	ist := time.FixedZone("IST", 5*3600+1800)

	repo := newMemRepo()
	// 04:00 UTC is 09:30 IST
	repo.addAppointment(Appointment{
		DoctorID:        doctor,
		ScheduledAt:     time.Date(2024, time.January, 15, 4, 0, 0, 0, time.UTC),
		DurationMinutes: 30,
	})

	has, err := NewConflictChecker(ist).HasConflict(ctx, repo, doctor, NewTimeInterval(date(2024, time.January, 15), hm(9, 30), hm(10, 0)), Exclusions{})
	require.NoError(t, err)
	assert.True(t, has)

	has, err = NewConflictChecker(time.UTC).HasConflict(ctx, repo, doctor, NewTimeInterval(date(2024, time.January, 15), hm(9, 30), hm(10, 0)), Exclusions{})
	require.NoError(t, err)
	assert.False(t, has)
}
