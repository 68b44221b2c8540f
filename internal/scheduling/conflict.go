package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ConflictChecker decides whether a candidate interval collides with the
// doctor's active time blocks or booked appointments. It keeps no state and
// must be re-run against the store view that the subsequent write uses.
type ConflictChecker struct {
	loc *time.Location
}

// NewConflictChecker places appointments on calendar days using loc.
func NewConflictChecker(loc *time.Location) *ConflictChecker {
	if loc == nil {
		loc = time.UTC
	}
	return &ConflictChecker{loc: loc}
}

func (c *ConflictChecker) Location() *time.Location {
	return c.loc
}

// FindConflict returns the first competing entity, or nil when the candidate is free.
func (c *ConflictChecker) FindConflict(ctx context.Context, store Store, doctorID uuid.UUID, candidate TimeInterval, ex Exclusions) (*Conflict, error) {
	blocks, err := store.ListActiveTimeBlocksOn(ctx, doctorID, candidate.Date)
	if err != nil {
		return nil, fmt.Errorf("list time blocks: %w", err)
	}
	for i := range blocks {
		b := &blocks[i]
		if !b.IsActive() || excluded(ex.TimeBlockID, b.ID) {
			continue
		}
		if b.Interval().Overlaps(candidate) {
			return &Conflict{Kind: ConflictTimeBlock, EntityID: b.ID, Interval: b.Interval()}, nil
		}
	}

	dayStart := wallClock(candidate.Date, Midnight, c.loc)
	dayEnd := wallClock(candidate.Date, EndOfDay, c.loc)
	appts, err := store.ListAppointmentsBetween(ctx, doctorID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	for i := range appts {
		a := &appts[i]
		if !a.Blocking() || excluded(ex.AppointmentID, a.ID) {
			continue
		}
		for _, iv := range a.Intervals(c.loc) {
			if iv.Overlaps(candidate) {
				return &Conflict{Kind: ConflictAppointment, EntityID: a.ID, Interval: iv}, nil
			}
		}
	}

	return nil, nil
}

func (c *ConflictChecker) HasConflict(ctx context.Context, store Store, doctorID uuid.UUID, candidate TimeInterval, ex Exclusions) (bool, error) {
	conflict, err := c.FindConflict(ctx, store, doctorID, candidate, ex)
	if err != nil {
		return false, err
	}
	return conflict != nil, nil
}

func excluded(exclude *uuid.UUID, id uuid.UUID) bool {
	return exclude != nil && *exclude == id
}
