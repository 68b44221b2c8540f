package scheduling

import (
	"time"

	"github.com/google/uuid"
)

type BlockState string

const (
	BlockActive   BlockState = "active"
	BlockInactive BlockState = "inactive"
	BlockDeleted  BlockState = "deleted"
)

type AppointmentStatus string

const (
	StatusPending    AppointmentStatus = "pending"
	StatusConfirmed  AppointmentStatus = "confirmed"
	StatusInProgress AppointmentStatus = "in_progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCancelled  AppointmentStatus = "cancelled"
)

// TimeBlock is a doctor-declared interval during which nothing can be booked.
type TimeBlock struct {
	ID                uuid.UUID
	DoctorID          uuid.UUID
	Date              time.Time
	StartTime         TimeOfDay
	EndTime           TimeOfDay
	Reason            string
	State             BlockState
	RecurrenceGroupID *uuid.UUID
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (b *TimeBlock) Interval() TimeInterval {
	return TimeInterval{Date: b.Date, Start: b.StartTime, End: b.EndTime}
}

func (b *TimeBlock) IsActive() bool {
	return b.State == BlockActive
}

// Appointment is read here only to place it on the doctor's calendar and to
// move it when rescheduling.
type Appointment struct {
	ID              uuid.UUID
	DoctorID        uuid.UUID
	PatientID       uuid.UUID
	ScheduledAt     time.Time
	DurationMinutes int
	Status          AppointmentStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (a *Appointment) EndsAt() time.Time {
	return a.ScheduledAt.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// Blocking reports whether the appointment occupies the doctor's calendar.
func (a *Appointment) Blocking() bool {
	return a.Status != StatusCancelled
}

// Intervals returns the wall-clock intervals the appointment occupies in loc.
func (a *Appointment) Intervals(loc *time.Location) []TimeInterval {
	return intervalsForSpan(a.ScheduledAt, a.EndsAt(), loc)
}

type ConflictKind string

const (
	ConflictTimeBlock   ConflictKind = "time_block"
	ConflictAppointment ConflictKind = "appointment"
)

// Conflict names the entity that competes with a candidate interval.
type Conflict struct {
	Kind     ConflictKind
	EntityID uuid.UUID
	Interval TimeInterval
}

// Exclusions lets an update ignore the entity being moved.
type Exclusions struct {
	TimeBlockID   *uuid.UUID
	AppointmentID *uuid.UUID
}

type EventLog struct {
	ID        int64
	EventType string
	EntityID  *uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}
