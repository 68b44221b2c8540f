package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/telehealth-scheduling/internal/auth"
	"github.com/hackgods/telehealth-scheduling/internal/notify"
)

func TestRescheduleAppointment(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture()
	doctor, patient := uuid.New(), uuid.New()
	appt := f.repo.addAppointment(Appointment{
		DoctorID:        doctor,
		PatientID:       patient,
		ScheduledAt:     time.Date(2024, time.January, 15, 9, 0, 0, 0, time.UTC),
		DurationMinutes: 30,
	})

	// overlapping its own current slot is fine
	newStart := time.Date(2024, time.January, 15, 9, 15, 0, 0, time.UTC)
	moved, err := f.svc.RescheduleAppointment(ctx, doctorCaller(doctor), appt.ID, newStart)
	require.NoError(t, err)
	assert.True(t, moved.ScheduledAt.Equal(newStart))
	assert.True(t, f.repo.appointment(appt.ID).ScheduledAt.Equal(newStart))
	assert.Equal(t, 30, moved.DurationMinutes)

	assert.Equal(t, []string{EventAppointmentMoved}, f.repo.eventTypes())
	require.Len(t, f.pusher.sent, 2)
	assert.Equal(t, pushed{userID: doctor, eventType: notify.EventAppointmentReschedule}, f.pusher.sent[0])
	assert.Equal(t, pushed{userID: patient, eventType: notify.EventAppointmentReschedule}, f.pusher.sent[1])
}

func TestRescheduleAppointmentConflictKeepsOriginalTime(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture()
	doctor := uuid.New()
	original := time.Date(2024, time.January, 15, 9, 0, 0, 0, time.UTC)
	appt := f.repo.addAppointment(Appointment{DoctorID: doctor, ScheduledAt: original, DurationMinutes: 30})
	f.repo.addBlock(TimeBlock{DoctorID: doctor, Date: date(2024, time.January, 15), StartTime: hm(14, 0), EndTime: hm(15, 0)})
	other := f.repo.addAppointment(Appointment{DoctorID: doctor, ScheduledAt: time.Date(2024, time.January, 15, 11, 0, 0, 0, time.UTC), DurationMinutes: 60})

	_, err := f.svc.RescheduleAppointment(ctx, doctorCaller(doctor), appt.ID, time.Date(2024, time.January, 15, 14, 45, 0, 0, time.UTC))
	require.True(t, IsConflict(err))

	_, err = f.svc.RescheduleAppointment(ctx, doctorCaller(doctor), appt.ID, time.Date(2024, time.January, 15, 11, 30, 0, 0, time.UTC))
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, other.ID, conflict.With.EntityID)

	assert.True(t, f.repo.appointment(appt.ID).ScheduledAt.Equal(original))
	assert.Empty(t, f.pusher.sent)
}

func TestRescheduleAppointmentRejections(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture()
	doctor := uuid.New()
	start := time.Date(2024, time.January, 15, 9, 0, 0, 0, time.UTC)

	cancelled := f.repo.addAppointment(Appointment{DoctorID: doctor, ScheduledAt: start, DurationMinutes: 30, Status: StatusCancelled})
	_, err := f.svc.RescheduleAppointment(ctx, doctorCaller(doctor), cancelled.ID, start.Add(time.Hour))
	assert.True(t, IsValidation(err))

	appt := f.repo.addAppointment(Appointment{DoctorID: doctor, ScheduledAt: start, DurationMinutes: 60})
	_, err = f.svc.RescheduleAppointment(ctx, doctorCaller(doctor), appt.ID, time.Date(2024, time.January, 15, 23, 30, 0, 0, time.UTC))
	assert.True(t, IsValidation(err), "crossing midnight")

	_, err = f.svc.RescheduleAppointment(ctx, doctorCaller(doctor), appt.ID, time.Time{})
	assert.True(t, IsValidation(err))

	_, err = f.svc.RescheduleAppointment(ctx, doctorCaller(uuid.New()), appt.ID, start.Add(time.Hour))
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	_, err = f.svc.RescheduleAppointment(ctx, auth.Caller{ID: uuid.New(), Role: auth.RolePatient}, appt.ID, start.Add(time.Hour))
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	_, err = f.svc.RescheduleAppointment(ctx, doctorCaller(doctor), uuid.New(), start.Add(time.Hour))
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	assert.True(t, f.repo.appointment(appt.ID).ScheduledAt.Equal(start))
}
