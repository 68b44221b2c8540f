package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// errOverlapConstraint is returned by stores when the database exclusion
// constraint rejects a write the application-level check let through.
var errOverlapConstraint = errors.New("time block overlap constraint violated")

// Store contains all reads and writes the scheduling service needs.
type Store interface {
	GetTimeBlock(ctx context.Context, id uuid.UUID) (*TimeBlock, error)
	// ListActiveTimeBlocksOn returns the doctor's active blocks on date.
	ListActiveTimeBlocksOn(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]TimeBlock, error)
	// ListTimeBlocks returns non-deleted blocks with from <= date <= to.
	ListTimeBlocks(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]TimeBlock, error)
	InsertTimeBlocks(ctx context.Context, blocks []*TimeBlock) error
	UpdateTimeBlock(ctx context.Context, b *TimeBlock) error
	SetTimeBlockState(ctx context.Context, id uuid.UUID, state BlockState) error
	// SetGroupState moves every non-deleted block of a recurrence group and
	// returns how many rows changed.
	SetGroupState(ctx context.Context, doctorID, groupID uuid.UUID, state BlockState) (int, error)

	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// ListAppointmentsBetween returns non-cancelled appointments overlapping [from, to).
	ListAppointmentsBetween(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error)
	UpdateAppointmentTime(ctx context.Context, id uuid.UUID, scheduledAt time.Time) (*Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}

// Repository adds a doctor-scoped transaction around Store. Calls for the same
// doctor are serialised so a conflict check and the write that follows it see
// the same calendar.
type Repository interface {
	Store
	WithDoctorTx(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context, tx Store) error) error
}
