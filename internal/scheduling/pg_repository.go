package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/telehealth-scheduling/internal/db"
)

type PgRepository struct {
	pool *pgxpool.Pool
	q    db.DBTX
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool, q: pool}
}

// WithDoctorTx serialises writers per doctor with a transaction-scoped
// advisory lock; the exclusion constraint on time_blocks backs it up.
func (r *PgRepository) WithDoctorTx(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context, tx Store) error) error {
	return db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := db.AdvisoryXactLock(ctx, tx, "doctor:"+doctorID.String()); err != nil {
			return err
		}
		return fn(ctx, &PgRepository{pool: r.pool, q: tx})
	})
}

// Helpers

const timeBlockColumns = `id, doctor_id, block_date, start_time, end_time, reason, state, recurrence_group_id, created_at, updated_at`

const appointmentColumns = `id, doctor_id, patient_id, scheduled_at, duration_minutes, status, created_at, updated_at`

func toPgTime(t TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: int64(t) * int64(time.Minute/time.Microsecond), Valid: true}
}

func fromPgTime(t pgtype.Time) TimeOfDay {
	return TimeOfDay(t.Microseconds / int64(time.Minute/time.Microsecond))
}

func scanTimeBlock(row pgx.Row) (*TimeBlock, error) {
	var b TimeBlock
	var start, end pgtype.Time

	err := row.Scan(
		&b.ID,
		&b.DoctorID,
		&b.Date,
		&start,
		&end,
		&b.Reason,
		&b.State,
		&b.RecurrenceGroupID,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTimeBlockNotFound
		}
		return nil, err
	}

	b.Date = DateOf(b.Date)
	b.StartTime = fromPgTime(start)
	b.EndTime = fromPgTime(end)
	return &b, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.ScheduledAt,
		&a.DurationMinutes,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func collectTimeBlocks(rows pgx.Rows) ([]TimeBlock, error) {
	defer rows.Close()

	result := []TimeBlock{}
	for rows.Next() {
		b, err := scanTimeBlock(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func translateWriteError(err error) error {
	switch {
	case db.IsPgError(err, db.CodeExclusionViolation):
		return errOverlapConstraint
	case db.IsPgError(err, db.CodeForeignKeyViolation):
		return ErrDoctorNotFound
	}
	return err
}

// Time blocks

func (r *PgRepository) GetTimeBlock(ctx context.Context, id uuid.UUID) (*TimeBlock, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+timeBlockColumns+`
		FROM time_blocks
		WHERE id = $1
	`, id)
	return scanTimeBlock(row)
}

func (r *PgRepository) ListActiveTimeBlocksOn(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]TimeBlock, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+timeBlockColumns+`
		FROM time_blocks
		WHERE doctor_id = $1
		  AND block_date = $2
		  AND state = 'active'
		ORDER BY start_time
	`, doctorID, DateOf(date))
	if err != nil {
		return nil, err
	}
	return collectTimeBlocks(rows)
}

func (r *PgRepository) ListTimeBlocks(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]TimeBlock, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+timeBlockColumns+`
		FROM time_blocks
		WHERE doctor_id = $1
		  AND block_date BETWEEN $2 AND $3
		  AND state <> 'deleted'
		ORDER BY block_date, start_time
	`, doctorID, DateOf(from), DateOf(to))
	if err != nil {
		return nil, err
	}
	return collectTimeBlocks(rows)
}

func (r *PgRepository) InsertTimeBlocks(ctx context.Context, blocks []*TimeBlock) error {
	if len(blocks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, b := range blocks {
		batch.Queue(`
			INSERT INTO time_blocks (`+timeBlockColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, b.ID, b.DoctorID, b.Date, toPgTime(b.StartTime), toPgTime(b.EndTime),
			b.Reason, b.State, b.RecurrenceGroupID, b.CreatedAt, b.UpdatedAt)
	}

	tx, ok := r.q.(pgx.Tx)
	if !ok {
		return errors.New("insert time blocks: requires a doctor transaction")
	}

	results := tx.SendBatch(ctx, batch)
	for range blocks {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("insert time block: %w", translateWriteError(err))
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("insert time blocks: %w", translateWriteError(err))
	}
	return nil
}

func (r *PgRepository) UpdateTimeBlock(ctx context.Context, b *TimeBlock) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE time_blocks
		SET block_date = $2,
		    start_time = $3,
		    end_time = $4,
		    reason = $5,
		    updated_at = $6
		WHERE id = $1
		  AND state <> 'deleted'
	`, b.ID, b.Date, toPgTime(b.StartTime), toPgTime(b.EndTime), b.Reason, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update time block: %w", translateWriteError(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrTimeBlockNotFound
	}
	return nil
}

func (r *PgRepository) SetTimeBlockState(ctx context.Context, id uuid.UUID, state BlockState) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE time_blocks
		SET state = $2,
		    updated_at = now()
		WHERE id = $1
		  AND state <> 'deleted'
	`, id, state)
	if err != nil {
		return fmt.Errorf("set time block state: %w", translateWriteError(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrTimeBlockNotFound
	}
	return nil
}

func (r *PgRepository) SetGroupState(ctx context.Context, doctorID, groupID uuid.UUID, state BlockState) (int, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE time_blocks
		SET state = $3,
		    updated_at = now()
		WHERE doctor_id = $1
		  AND recurrence_group_id = $2
		  AND state <> 'deleted'
		  AND state <> $3
	`, doctorID, groupID, state)
	if err != nil {
		return 0, fmt.Errorf("set group state: %w", translateWriteError(err))
	}
	return int(tag.RowsAffected()), nil
}

// Appointments

func (r *PgRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsBetween(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND status <> 'cancelled'
		  AND scheduled_at < $3
		  AND scheduled_at + make_interval(mins => duration_minutes) > $2
		ORDER BY scheduled_at
	`, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) UpdateAppointmentTime(ctx context.Context, id uuid.UUID, scheduledAt time.Time) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE appointments
		SET scheduled_at = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status NOT IN ('cancelled', 'completed')
		RETURNING `+appointmentColumns+`
	`, id, scheduledAt)
	return scanAppointment(row)
}

// Event logging

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO event_logs (event_type, entity_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.EntityID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
