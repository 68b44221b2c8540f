package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/telehealth-scheduling/internal/db"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

const scheduleColumns = `id, report_type, name, cron_schedule, frequency, timezone, recipients, format, active,
	next_run, last_run, last_run_status, last_run_error, created_by, created_at, updated_at`

const executionColumns = `id, schedule_id, executed_at, finished_at, status, recipients_sent, recipients_failed,
	error_message, file_name, duration_ms`

func scanSchedule(row pgx.Row) (*ScheduledReport, error) {
	var r ScheduledReport
	var createdBy *uuid.UUID

	err := row.Scan(
		&r.ID,
		&r.ReportType,
		&r.Name,
		&r.CronSchedule,
		&r.Frequency,
		&r.Timezone,
		&r.Recipients,
		&r.Format,
		&r.Active,
		&r.NextRun,
		&r.LastRun,
		&r.LastRunStatus,
		&r.LastRunError,
		&createdBy,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReportNotFound
		}
		return nil, err
	}

	if createdBy != nil {
		r.CreatedBy = *createdBy
	}
	if r.Recipients == nil {
		r.Recipients = []string{}
	}
	return &r, nil
}

func scanExecution(row pgx.Row) (*Execution, error) {
	var e Execution
	var fileName *string

	err := row.Scan(
		&e.ID,
		&e.ScheduleID,
		&e.ExecutedAt,
		&e.FinishedAt,
		&e.Status,
		&e.RecipientsSent,
		&e.RecipientsFailed,
		&e.ErrorMessage,
		&fileName,
		&e.DurationMs,
	)
	if err != nil {
		return nil, err
	}

	if fileName != nil {
		e.FileName = *fileName
	}
	return &e, nil
}

func collectSchedules(rows pgx.Rows) ([]ScheduledReport, error) {
	defer rows.Close()

	result := []ScheduledReport{}
	for rows.Next() {
		r, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func nullableUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

// Schedules

func (r *PgRepository) GetSchedule(ctx context.Context, id uuid.UUID) (*ScheduledReport, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+scheduleColumns+`
		FROM scheduled_reports
		WHERE id = $1
		  AND deleted_at IS NULL
	`, id)
	return scanSchedule(row)
}

func (r *PgRepository) ListSchedules(ctx context.Context) ([]ScheduledReport, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+scheduleColumns+`
		FROM scheduled_reports
		WHERE deleted_at IS NULL
		ORDER BY name, created_at
	`)
	if err != nil {
		return nil, err
	}
	return collectSchedules(rows)
}

func (r *PgRepository) ListDue(ctx context.Context, now time.Time) ([]ScheduledReport, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+scheduleColumns+`
		FROM scheduled_reports
		WHERE active
		  AND deleted_at IS NULL
		  AND next_run <= $1
		ORDER BY next_run
	`, now)
	if err != nil {
		return nil, err
	}
	return collectSchedules(rows)
}

func (r *PgRepository) InsertSchedule(ctx context.Context, s *ScheduledReport) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO scheduled_reports (`+scheduleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, s.ID, s.ReportType, s.Name, s.CronSchedule, s.Frequency, s.Timezone, s.Recipients, s.Format, s.Active,
		s.NextRun, s.LastRun, s.LastRunStatus, s.LastRunError, nullableUUID(s.CreatedBy), s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert scheduled report: %w", err)
	}
	return nil
}

func (r *PgRepository) UpdateSchedule(ctx context.Context, s *ScheduledReport) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE scheduled_reports
		SET report_type = $2,
		    name = $3,
		    cron_schedule = $4,
		    frequency = $5,
		    timezone = $6,
		    recipients = $7,
		    format = $8,
		    active = $9,
		    next_run = $10,
		    updated_at = $11
		WHERE id = $1
		  AND deleted_at IS NULL
	`, s.ID, s.ReportType, s.Name, s.CronSchedule, s.Frequency, s.Timezone, s.Recipients, s.Format, s.Active,
		s.NextRun, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update scheduled report: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReportNotFound
	}
	return nil
}

// DeleteSchedule retires a schedule: it stops running and is no longer
// listed, while its execution history stays in place.
func (r *PgRepository) DeleteSchedule(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE scheduled_reports
		SET active = FALSE,
		    deleted_at = now(),
		    updated_at = now()
		WHERE id = $1
		  AND deleted_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("delete scheduled report: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReportNotFound
	}
	return nil
}

// Executions

func (r *PgRepository) InsertExecution(ctx context.Context, e *Execution) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO scheduled_report_executions (id, schedule_id, executed_at, status)
		VALUES ($1, $2, $3, $4)
	`, e.ID, e.ScheduleID, e.ExecutedAt, e.Status)
	if err != nil {
		if db.IsPgError(err, db.CodeForeignKeyViolation) {
			return ErrReportNotFound
		}
		return fmt.Errorf("insert report execution: %w", err)
	}
	return nil
}

func (r *PgRepository) ListExecutions(ctx context.Context, scheduleID uuid.UUID, limit int) ([]Execution, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+executionColumns+`
		FROM scheduled_report_executions
		WHERE schedule_id = $1
		ORDER BY executed_at DESC
		LIMIT $2
	`, scheduleID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []Execution{}
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) FinishRun(ctx context.Context, e *Execution, s *ScheduledReport) error {
	return db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			UPDATE scheduled_report_executions
			SET finished_at = $2,
			    status = $3,
			    recipients_sent = $4,
			    recipients_failed = $5,
			    error_message = $6,
			    file_name = NULLIF($7, ''),
			    artifact = $8,
			    duration_ms = $9
			WHERE id = $1
		`, e.ID, e.FinishedAt, e.Status, e.RecipientsSent, e.RecipientsFailed, e.ErrorMessage,
			e.FileName, e.Artifact, e.DurationMs); err != nil {
			return fmt.Errorf("finalise report execution: %w", err)
		}

		// a schedule deleted mid-run still records its last run; next_run is moot
		// because retired schedules are never due
		if _, err := tx.Exec(ctx, `
			UPDATE scheduled_reports
			SET last_run = $2,
			    last_run_status = $3,
			    last_run_error = $4,
			    next_run = $5,
			    updated_at = now()
			WHERE id = $1
		`, s.ID, s.LastRun, s.LastRunStatus, s.LastRunError, s.NextRun); err != nil {
			return fmt.Errorf("stamp scheduled report run: %w", err)
		}
		return nil
	})
}
