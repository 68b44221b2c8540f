package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telehealth-scheduling/internal/auth"
	"github.com/hackgods/telehealth-scheduling/internal/notify"
)

// RescheduleAppointment moves an appointment to newStart keeping its duration.
// Either the new slot is free and the appointment moves, or nothing changes.
func (s *Service) RescheduleAppointment(ctx context.Context, caller auth.Caller, appointmentID uuid.UUID, newStart time.Time) (*Appointment, error) {
	if newStart.IsZero() {
		return nil, &ValidationError{Field: "new_date_time", Reason: "is required"}
	}

	appt, err := s.ownedAppointment(ctx, s.repo, caller, appointmentID)
	if err != nil {
		return nil, err
	}
	previous := appt.ScheduledAt

	var moved *Appointment
	var candidate TimeInterval
	err = s.mutate(ctx, appt.DoctorID, func(ctx context.Context, tx Store) error {
		current, err := s.ownedAppointment(ctx, tx, caller, appointmentID)
		if err != nil {
			return err
		}
		if current.Status == StatusCancelled || current.Status == StatusCompleted {
			return &ValidationError{Field: "status", Reason: fmt.Sprintf("%s appointments cannot be rescheduled", current.Status)}
		}

		end := newStart.Add(time.Duration(current.DurationMinutes) * time.Minute)
		intervals := intervalsForSpan(newStart, end, s.Location())
		if len(intervals) != 1 {
			return &ValidationError{Field: "new_date_time", Reason: "appointment must start and end on the same day"}
		}
		candidate = intervals[0]

		self := current.ID
		conflict, err := s.checker.FindConflict(ctx, tx, current.DoctorID, candidate, Exclusions{AppointmentID: &self})
		if err != nil {
			return err
		}
		if conflict != nil {
			return &ConflictError{Candidate: candidate, With: conflict}
		}

		moved, err = tx.UpdateAppointmentTime(ctx, current.ID, newStart.UTC())
		return err
	})
	if err != nil {
		return nil, s.writeError("reschedule", candidate, err)
	}

	s.logEvent(ctx, moved.ID, EventAppointmentMoved, map[string]any{
		"doctor_id": moved.DoctorID.String(),
		"from":      previous.UTC(),
		"to":        moved.ScheduledAt.UTC(),
		"caller_id": caller.ID.String(),
	})

	payload := map[string]any{
		"appointment_id": moved.ID.String(),
		"previous":       previous.UTC(),
		"scheduled_at":   moved.ScheduledAt.UTC(),
	}
	s.pusher.Push(ctx, moved.DoctorID, notify.EventAppointmentReschedule, payload)
	s.pusher.Push(ctx, moved.PatientID, notify.EventAppointmentReschedule, payload)

	return moved, nil
}

func (s *Service) ownedAppointment(ctx context.Context, store Store, caller auth.Caller, id uuid.UUID) (*Appointment, error) {
	appt, err := store.GetAppointment(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if !caller.CanManageDoctor(appt.DoctorID) {
		return nil, ErrAppointmentNotFound
	}
	return appt, nil
}
