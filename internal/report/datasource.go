package report

import (
	"context"
	"fmt"
	"time"

	"github.com/hackgods/telehealth-scheduling/internal/db"
)

// Definition is one entry of the report catalogue. SQL receives the run
// instant as $1.
type Definition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	SQL         string `json:"-"`
}

var Catalogue = []Definition{
	{
		ID:          "appointment-volume",
		Name:        "Appointment Volume",
		Description: "Appointments of the last 30 days grouped by status",
		SQL: `SELECT status, COUNT(*) AS total
			FROM appointments
			WHERE scheduled_at >= $1::timestamptz - interval '30 days'
			  AND scheduled_at < $1::timestamptz
			GROUP BY status
			ORDER BY total DESC`,
	},
	{
		ID:          "doctor-utilization",
		Name:        "Doctor Utilization",
		Description: "Booked appointment minutes per doctor over the last 7 days",
		SQL: `SELECT d.name AS doctor,
			       COUNT(a.id) AS appointments,
			       COALESCE(SUM(a.duration_minutes), 0)::bigint AS booked_minutes
			FROM doctors d
			LEFT JOIN appointments a
			       ON a.doctor_id = d.id
			      AND a.status <> 'cancelled'
			      AND a.scheduled_at >= $1::timestamptz - interval '7 days'
			      AND a.scheduled_at < $1::timestamptz
			GROUP BY d.id, d.name
			ORDER BY booked_minutes DESC, d.name`,
	},
	{
		ID:          "time-block-summary",
		Name:        "Time Block Summary",
		Description: "Active blocked minutes per doctor for the coming 7 days",
		SQL: `SELECT d.name AS doctor,
			       COUNT(tb.id) AS blocks,
			       COALESCE(SUM(EXTRACT(EPOCH FROM (tb.end_time - tb.start_time)) / 60), 0)::bigint AS blocked_minutes
			FROM doctors d
			LEFT JOIN time_blocks tb
			       ON tb.doctor_id = d.id
			      AND tb.state = 'active'
			      AND tb.block_date >= ($1::timestamptz AT TIME ZONE 'UTC')::date
			      AND tb.block_date < ($1::timestamptz AT TIME ZONE 'UTC')::date + 7
			GROUP BY d.id, d.name
			ORDER BY blocked_minutes DESC, d.name`,
	},
	{
		ID:          "report-delivery",
		Name:        "Report Delivery",
		Description: "Scheduled report runs of the last 30 days by outcome",
		SQL: `SELECT r.name AS schedule,
			       e.status,
			       COUNT(*) AS runs,
			       COALESCE(SUM(e.recipients_sent), 0)::bigint AS sent,
			       COALESCE(SUM(e.recipients_failed), 0)::bigint AS failed
			FROM scheduled_report_executions e
			JOIN scheduled_reports r ON r.id = e.schedule_id
			WHERE e.executed_at >= $1::timestamptz - interval '30 days'
			GROUP BY r.name, e.status
			ORDER BY r.name, e.status`,
	},
}

func FindDefinition(id string) *Definition {
	for i := range Catalogue {
		if Catalogue[i].ID == id {
			return &Catalogue[i]
		}
	}
	return nil
}

// Dataset is a rendered-format-neutral table.
type Dataset struct {
	ReportType  string
	Title       string
	GeneratedAt time.Time
	Columns     []string
	Rows        [][]any
}

type DataSource interface {
	Generate(ctx context.Context, reportType string, at time.Time) (*Dataset, error)
}

type PgDataSource struct {
	q db.DBTX
}

func NewPgDataSource(q db.DBTX) *PgDataSource {
	return &PgDataSource{q: q}
}

func (s *PgDataSource) Generate(ctx context.Context, reportType string, at time.Time) (*Dataset, error) {
	def := FindDefinition(reportType)
	if def == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownReport, reportType)
	}

	rows, err := s.q.Query(ctx, def.SQL, at.UTC())
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", def.ID, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	ds := &Dataset{
		ReportType:  def.ID,
		Title:       def.Name,
		GeneratedAt: at.UTC(),
		Columns:     make([]string, len(fields)),
		Rows:        [][]any{},
	}
	for i, fd := range fields {
		ds.Columns[i] = fd.Name
	}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", def.ID, err)
		}
		ds.Rows = append(ds.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", def.ID, err)
	}

	return ds, nil
}
