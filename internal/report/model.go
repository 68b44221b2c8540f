package report

import (
	"time"

	"github.com/google/uuid"
)

type Frequency string

const (
	Daily     Frequency = "daily"
	Weekly    Frequency = "weekly"
	BiWeekly  Frequency = "bi_weekly"
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
)

type Format string

const (
	FormatPDF   Format = "pdf"
	FormatExcel Format = "excel"
	FormatCSV   Format = "csv"
)

type RunStatus string

const (
	StatusRunning RunStatus = "running"
	StatusSuccess RunStatus = "success"
	StatusFailed  RunStatus = "failed"
)

// ScheduledReport is a recurring delivery of one catalogue report. NextRun is
// owned by the server and recomputed on every create, update and run.
type ScheduledReport struct {
	ID            uuid.UUID
	ReportType    string
	Name          string
	CronSchedule  string
	Frequency     Frequency
	Timezone      string
	Recipients    []string
	Format        Format
	Active        bool
	NextRun       time.Time
	LastRun       *time.Time
	LastRunStatus *RunStatus
	LastRunError  *string
	CreatedBy     uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Execution is one append-only audit row per run attempt.
type Execution struct {
	ID               uuid.UUID
	ScheduleID       uuid.UUID
	ExecutedAt       time.Time
	FinishedAt       *time.Time
	Status           RunStatus
	RecipientsSent   int
	RecipientsFailed int
	ErrorMessage     *string
	FileName         string
	Artifact         []byte
	DurationMs       int64
}

type ExecutionResult struct {
	ExecutionID      uuid.UUID
	Success          bool
	RecipientsSent   int
	RecipientsFailed int
	ReportBase64     string
	FileName         string
	NextRun          time.Time
	Error            string
}

// ProcessSummary tallies one due-report poll.
type ProcessSummary struct {
	Due       int
	Succeeded int
	Failed    int
	Skipped   int
}
