package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/telehealth-scheduling/internal/auth"
	"github.com/hackgods/telehealth-scheduling/internal/metrics"
	"github.com/hackgods/telehealth-scheduling/internal/notify"
	redisclient "github.com/hackgods/telehealth-scheduling/internal/redis"
)

const (
	EventTimeBlockCreated     = "TIME_BLOCK_CREATED"
	EventTimeBlockUpdated     = "TIME_BLOCK_UPDATED"
	EventTimeBlockDeleted     = "TIME_BLOCK_DELETED"
	EventTimeBlockDeactivated = "TIME_BLOCK_DEACTIVATED"
	EventTimeBlockActivated   = "TIME_BLOCK_ACTIVATED"
	EventRecurringCreated     = "RECURRING_TIME_BLOCKS_CREATED"
	EventGroupDeleted         = "RECURRENCE_GROUP_DELETED"
	EventAppointmentMoved     = "APPOINTMENT_RESCHEDULED"

	DefaultBlockReason = "unavailable"
)

var ErrScheduleBusy = errors.New("doctor schedule is being modified, please retry")

type Options struct {
	// Location places appointments on calendar days. Defaults to UTC.
	Location *time.Location
	Pusher   notify.Pusher
	Metrics  *metrics.Collector
	Logger   zerolog.Logger
	Now      func() time.Time
}

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	checker  *ConflictChecker
	expander *RecurrenceExpander
	pusher   notify.Pusher
	metrics  *metrics.Collector
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Pusher == nil {
		opts.Pusher = notify.Nop{}
	}
	checker := NewConflictChecker(opts.Location)
	return &Service{
		repo:     repo,
		locker:   locker,
		checker:  checker,
		expander: NewRecurrenceExpander(checker, opts.Now),
		pusher:   opts.Pusher,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		now:      opts.Now,
	}
}

func (s *Service) Location() *time.Location {
	return s.checker.Location()
}

type CreateTimeBlockInput struct {
	DoctorID  uuid.UUID
	Date      time.Time
	StartTime TimeOfDay
	EndTime   TimeOfDay
	Reason    string
}

// CreateTimeBlock reserves a single interval on the doctor's calendar.
func (s *Service) CreateTimeBlock(ctx context.Context, caller auth.Caller, in CreateTimeBlockInput) (*TimeBlock, error) {
	if !caller.CanManageDoctor(in.DoctorID) {
		return nil, ErrDoctorNotFound
	}

	candidate := NewTimeInterval(in.Date, in.StartTime, in.EndTime)
	if err := candidate.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	block := &TimeBlock{
		ID:        uuid.New(),
		DoctorID:  in.DoctorID,
		Date:      candidate.Date,
		StartTime: candidate.Start,
		EndTime:   candidate.End,
		Reason:    normalizeReason(in.Reason),
		State:     BlockActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.mutate(ctx, in.DoctorID, func(ctx context.Context, tx Store) error {
		conflict, err := s.checker.FindConflict(ctx, tx, in.DoctorID, candidate, Exclusions{})
		if err != nil {
			return err
		}
		if conflict != nil {
			return &ConflictError{Candidate: candidate, With: conflict}
		}
		return tx.InsertTimeBlocks(ctx, []*TimeBlock{block})
	})
	if err != nil {
		return nil, s.writeError("create", candidate, err)
	}

	s.metrics.TimeBlocksWritten("create", 1)
	s.logEvent(ctx, block.ID, EventTimeBlockCreated, map[string]any{
		"doctor_id": block.DoctorID.String(),
		"interval":  candidate.String(),
		"caller_id": caller.ID.String(),
	})
	s.pusher.Push(ctx, block.DoctorID, notify.EventTimeBlockCreated, blockPayload(block))

	return block, nil
}

type RecurringTimeBlockInput struct {
	DoctorID   uuid.UUID
	DaysOfWeek []time.Weekday
	RangeStart time.Time
	RangeEnd   time.Time
	StartTime  TimeOfDay
	EndTime    TimeOfDay
	Reason     string
}

// RecurringResult may be a partial success: conflicting dates are
// skipped and reported, the rest of the series is created.
type RecurringResult struct {
	GroupID *uuid.UUID
	Created []*TimeBlock
	Skipped []SkippedDate
	Reason  string
}

func (s *Service) CreateRecurringTimeBlocks(ctx context.Context, caller auth.Caller, in RecurringTimeBlockInput) (*RecurringResult, error) {
	if !caller.CanManageDoctor(in.DoctorID) {
		return nil, ErrDoctorNotFound
	}

	req := RecurrenceRequest{
		DoctorID:   in.DoctorID,
		DaysOfWeek: in.DaysOfWeek,
		RangeStart: in.RangeStart,
		RangeEnd:   in.RangeEnd,
		StartTime:  in.StartTime,
		EndTime:    in.EndTime,
		Reason:     normalizeReason(in.Reason),
	}

	// fail fast on malformed input before taking any lock
	if _, _, err := s.expander.Dates(req); err != nil {
		return nil, err
	}

	var exp *Expansion
	err := s.mutate(ctx, in.DoctorID, func(ctx context.Context, tx Store) error {
		var err error
		exp, err = s.expander.Expand(ctx, tx, req)
		if err != nil {
			return err
		}
		if len(exp.Candidates) == 0 {
			return nil
		}
		return tx.InsertTimeBlocks(ctx, exp.Candidates)
	})
	if err != nil {
		return nil, s.writeError("create_recurring", TimeInterval{Date: DateOf(in.RangeStart), Start: in.StartTime, End: in.EndTime}, err)
	}

	result := &RecurringResult{
		Created: exp.Candidates,
		Skipped: exp.Skipped,
		Reason:  exp.Reason,
	}
	if len(exp.Candidates) > 0 {
		groupID := exp.GroupID
		result.GroupID = &groupID
	}
	if result.Created == nil {
		result.Created = []*TimeBlock{}
	}

	s.metrics.TimeBlocksWritten("create_recurring", len(result.Created))
	s.metrics.RecurrenceSkipped(len(result.Skipped))

	if result.GroupID != nil {
		s.logEvent(ctx, *result.GroupID, EventRecurringCreated, map[string]any{
			"doctor_id": in.DoctorID.String(),
			"created":   len(result.Created),
			"skipped":   len(result.Skipped),
			"caller_id": caller.ID.String(),
		})
		s.pusher.Push(ctx, in.DoctorID, notify.EventTimeBlocksRecurring, map[string]any{
			"group_id": result.GroupID.String(),
			"created":  len(result.Created),
			"skipped":  len(result.Skipped),
		})
	}

	s.logger.Info().
		Stringer("doctor_id", in.DoctorID).
		Int("created", len(result.Created)).
		Int("skipped", len(result.Skipped)).
		Str("reason", result.Reason).
		Msg("recurring time blocks expanded")

	return result, nil
}

type UpdateTimeBlockInput struct {
	ID        uuid.UUID
	Date      *time.Time
	StartTime *TimeOfDay
	EndTime   *TimeOfDay
	Reason    *string
}

// UpdateTimeBlock moves or relabels a block. The new interval is re-checked
// against everything except the block itself.
func (s *Service) UpdateTimeBlock(ctx context.Context, caller auth.Caller, in UpdateTimeBlockInput) (*TimeBlock, error) {
	current, err := s.ownedBlock(ctx, s.repo, caller, in.ID)
	if err != nil {
		return nil, err
	}

	var updated *TimeBlock
	var candidate TimeInterval
	err = s.mutate(ctx, current.DoctorID, func(ctx context.Context, tx Store) error {
		b, err := s.ownedBlock(ctx, tx, caller, in.ID)
		if err != nil {
			return err
		}

		next := *b
		if in.Date != nil {
			next.Date = DateOf(*in.Date)
		}
		if in.StartTime != nil {
			next.StartTime = *in.StartTime
		}
		if in.EndTime != nil {
			next.EndTime = *in.EndTime
		}
		if in.Reason != nil {
			next.Reason = normalizeReason(*in.Reason)
		}

		candidate = next.Interval()
		if err := candidate.Validate(); err != nil {
			return err
		}

		if next.IsActive() {
			self := b.ID
			conflict, err := s.checker.FindConflict(ctx, tx, b.DoctorID, candidate, Exclusions{TimeBlockID: &self})
			if err != nil {
				return err
			}
			if conflict != nil {
				return &ConflictError{Candidate: candidate, With: conflict}
			}
		}

		next.UpdatedAt = s.now().UTC()
		if err := tx.UpdateTimeBlock(ctx, &next); err != nil {
			return err
		}
		updated = &next
		return nil
	})
	if err != nil {
		return nil, s.writeError("update", candidate, err)
	}

	s.metrics.TimeBlocksWritten("update", 1)
	s.logEvent(ctx, updated.ID, EventTimeBlockUpdated, map[string]any{
		"doctor_id": updated.DoctorID.String(),
		"from":      current.Interval().String(),
		"to":        updated.Interval().String(),
		"caller_id": caller.ID.String(),
	})
	s.pusher.Push(ctx, updated.DoctorID, notify.EventTimeBlockUpdated, blockPayload(updated))

	return updated, nil
}

// DeleteTimeBlock returns false when the block does not exist or doctorID does
// not own it; that is an expected outcome, not an error.
func (s *Service) DeleteTimeBlock(ctx context.Context, caller auth.Caller, id, doctorID uuid.UUID) (bool, error) {
	return s.transition(ctx, caller, id, doctorID, BlockDeleted)
}

// DeactivateTimeBlock is the soft variant of DeleteTimeBlock: the block stops
// blocking bookings but can be reactivated.
func (s *Service) DeactivateTimeBlock(ctx context.Context, caller auth.Caller, id, doctorID uuid.UUID) (bool, error) {
	return s.transition(ctx, caller, id, doctorID, BlockInactive)
}

// ActivateTimeBlock brings an inactive block back; it must not collide with
// anything booked in the meantime.
func (s *Service) ActivateTimeBlock(ctx context.Context, caller auth.Caller, id, doctorID uuid.UUID) (bool, error) {
	return s.transition(ctx, caller, id, doctorID, BlockActive)
}

func (s *Service) transition(ctx context.Context, caller auth.Caller, id, doctorID uuid.UUID, to BlockState) (bool, error) {
	if !caller.CanManageDoctor(doctorID) {
		return false, nil
	}

	var changed *TimeBlock
	err := s.mutate(ctx, doctorID, func(ctx context.Context, tx Store) error {
		b, err := tx.GetTimeBlock(ctx, id)
		if errors.Is(err, ErrTimeBlockNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if b.DoctorID != doctorID || b.State == BlockDeleted {
			return nil
		}
		if b.State == to {
			changed = b
			return nil
		}

		if to == BlockActive {
			self := b.ID
			conflict, err := s.checker.FindConflict(ctx, tx, doctorID, b.Interval(), Exclusions{TimeBlockID: &self})
			if err != nil {
				return err
			}
			if conflict != nil {
				return &ConflictError{Candidate: b.Interval(), With: conflict}
			}
		}

		if err := tx.SetTimeBlockState(ctx, b.ID, to); err != nil {
			return err
		}
		b.State = to
		changed = b
		return nil
	})
	if err != nil {
		return false, s.writeError("set_"+string(to), TimeInterval{}, err)
	}
	if changed == nil {
		return false, nil
	}

	event, push := EventTimeBlockDeleted, notify.EventTimeBlockDeleted
	switch to {
	case BlockInactive:
		event, push = EventTimeBlockDeactivated, notify.EventTimeBlockDeactivated
	case BlockActive:
		event, push = EventTimeBlockActivated, notify.EventTimeBlockUpdated
	}

	s.metrics.TimeBlocksWritten("set_"+string(to), 1)
	s.logEvent(ctx, changed.ID, event, map[string]any{
		"doctor_id": doctorID.String(),
		"caller_id": caller.ID.String(),
	})
	s.pusher.Push(ctx, doctorID, push, blockPayload(changed))

	return true, nil
}

// DeleteRecurrenceGroup deletes every remaining block of a recurring series
// and returns how many were removed.
func (s *Service) DeleteRecurrenceGroup(ctx context.Context, caller auth.Caller, groupID, doctorID uuid.UUID) (int, error) {
	if !caller.CanManageDoctor(doctorID) {
		return 0, nil
	}

	var n int
	err := s.mutate(ctx, doctorID, func(ctx context.Context, tx Store) error {
		var err error
		n, err = tx.SetGroupState(ctx, doctorID, groupID, BlockDeleted)
		return err
	})
	if err != nil {
		return 0, s.writeError("delete_group", TimeInterval{}, err)
	}

	if n > 0 {
		s.metrics.TimeBlocksWritten("delete_group", n)
		s.logEvent(ctx, groupID, EventGroupDeleted, map[string]any{
			"doctor_id": doctorID.String(),
			"deleted":   n,
			"caller_id": caller.ID.String(),
		})
		s.pusher.Push(ctx, doctorID, notify.EventTimeBlockDeleted, map[string]any{
			"group_id": groupID.String(),
			"deleted":  n,
		})
	}
	return n, nil
}

// ListTimeBlocks returns the doctor's non-deleted blocks dated within [from, to].
func (s *Service) ListTimeBlocks(ctx context.Context, caller auth.Caller, doctorID uuid.UUID, from, to time.Time) ([]TimeBlock, error) {
	if !caller.CanManageDoctor(doctorID) {
		return nil, ErrDoctorNotFound
	}
	from, to = DateOf(from), DateOf(to)
	if to.Before(from) {
		return nil, &ValidationError{Field: "to", Reason: "must not be before from"}
	}

	blocks, err := s.repo.ListTimeBlocks(ctx, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list time blocks: %w", err)
	}
	return blocks, nil
}

// FindConflict is the pre-flight check: nothing is written.
func (s *Service) FindConflict(ctx context.Context, caller auth.Caller, doctorID uuid.UUID, candidate TimeInterval, ex Exclusions) (*Conflict, error) {
	if !caller.CanManageDoctor(doctorID) {
		return nil, ErrDoctorNotFound
	}
	candidate = NewTimeInterval(candidate.Date, candidate.Start, candidate.End)
	if err := candidate.Validate(); err != nil {
		return nil, err
	}
	return s.checker.FindConflict(ctx, s.repo, doctorID, candidate, ex)
}

func (s *Service) HasConflict(ctx context.Context, caller auth.Caller, doctorID uuid.UUID, candidate TimeInterval, ex Exclusions) (bool, error) {
	conflict, err := s.FindConflict(ctx, caller, doctorID, candidate, ex)
	if err != nil {
		return false, err
	}
	return conflict != nil, nil
}

// mutate runs fn under the doctor's distributed lock and inside the doctor's
// database transaction.
func (s *Service) mutate(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context, tx Store) error) error {
	err := s.locker.WithDoctorLock(ctx, doctorID, func(lockCtx context.Context) error {
		return s.repo.WithDoctorTx(lockCtx, doctorID, fn)
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrScheduleBusy
	}
	return err
}

func (s *Service) ownedBlock(ctx context.Context, store Store, caller auth.Caller, id uuid.UUID) (*TimeBlock, error) {
	b, err := store.GetTimeBlock(ctx, id)
	if err != nil {
		if errors.Is(err, ErrTimeBlockNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load time block: %w", err)
	}
	if b.State == BlockDeleted || !caller.CanManageDoctor(b.DoctorID) {
		return nil, ErrTimeBlockNotFound
	}
	return b, nil
}

// writeError normalises errors from a mutation and records conflicts.
func (s *Service) writeError(operation string, candidate TimeInterval, err error) error {
	if errors.Is(err, errOverlapConstraint) {
		err = &ConflictError{Candidate: candidate}
	}

	var conflict *ConflictError
	if errors.As(err, &conflict) {
		kind := "constraint"
		if conflict.With != nil {
			kind = string(conflict.With.Kind)
		}
		s.metrics.Conflict(operation, kind)
		return err
	}

	var validation *ValidationError
	switch {
	case errors.As(err, &validation),
		errors.Is(err, ErrTimeBlockNotFound),
		errors.Is(err, ErrAppointmentNotFound),
		errors.Is(err, ErrDoctorNotFound),
		errors.Is(err, ErrScheduleBusy):
		return err
	}
	return fmt.Errorf("%s time block: %w", operation, err)
}

func (s *Service) logEvent(ctx context.Context, entityID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("marshal event payload")
		data = nil
	}

	id := entityID
	ev := EventLog{
		EventType: eventType,
		EntityID:  &id,
		Payload:   data,
		CreatedAt: s.now().UTC(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Stringer("entity_id", entityID).Msg("insert event log")
	}
}

func normalizeReason(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return DefaultBlockReason
	}
	return reason
}

func blockPayload(b *TimeBlock) map[string]any {
	return map[string]any{
		"id":         b.ID.String(),
		"date":       FormatDate(b.Date),
		"start_time": b.StartTime.String(),
		"end_time":   b.EndTime.String(),
		"reason":     b.Reason,
		"state":      string(b.State),
	}
}
