package scheduling

import (
	"errors"
	"fmt"
)

var (
	ErrTimeBlockNotFound   = errors.New("time block not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
)

// ValidationError rejects malformed input before any conflict check runs.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError is returned when a candidate interval overlaps an active time
// block or a non-cancelled appointment. With is nil when the overlap was only
// detected by the database constraint.
type ConflictError struct {
	Candidate TimeInterval
	With      *Conflict
}

func (e *ConflictError) Error() string {
	if e.With == nil {
		return fmt.Sprintf("time slot %s conflicts with an existing booking", e.Candidate)
	}
	return fmt.Sprintf("time slot %s conflicts with %s %s (%s)", e.Candidate, e.With.Kind, e.With.EntityID, e.With.Interval)
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}
