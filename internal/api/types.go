package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telehealth-scheduling/internal/report"
	"github.com/hackgods/telehealth-scheduling/internal/scheduling"
)

type CreateTimeBlockRequest struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Reason    string `json:"reason"`
}

type UpdateTimeBlockRequest struct {
	Date      *string `json:"date"`
	StartTime *string `json:"start_time"`
	EndTime   *string `json:"end_time"`
	Reason    *string `json:"reason"`
}

type RecurringTimeBlockRequest struct {
	DaysOfWeek Weekdays `json:"days_of_week"`
	StartDate  string   `json:"start_date"`
	EndDate    string   `json:"end_date"`
	StartTime  string   `json:"start_time"`
	EndTime    string   `json:"end_time"`
	Reason     string   `json:"reason"`
}

type ConflictCheckRequest struct {
	Date                 string     `json:"date"`
	StartTime            string     `json:"start_time"`
	EndTime              string     `json:"end_time"`
	ExcludeTimeBlockID   *uuid.UUID `json:"exclude_time_block_id"`
	ExcludeAppointmentID *uuid.UUID `json:"exclude_appointment_id"`
}

type RescheduleRequest struct {
	NewDateTime time.Time `json:"new_date_time"`
}

// Weekdays accepts day numbers (0 = Sunday) or English day names.
type Weekdays []time.Weekday

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

func (w *Weekdays) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("days_of_week: want an array")
	}
	out := make(Weekdays, 0, len(raw))
	for _, item := range raw {
		var n int
		if err := json.Unmarshal(item, &n); err == nil {
			if n < 0 || n > 6 {
				return fmt.Errorf("days_of_week: %d is not a day number", n)
			}
			out = append(out, time.Weekday(n))
			continue
		}
		var name string
		if err := json.Unmarshal(item, &name); err != nil {
			return fmt.Errorf("days_of_week: %s is not a day", item)
		}
		d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return fmt.Errorf("days_of_week: %q is not a day", name)
		}
		out = append(out, d)
	}
	*w = out
	return nil
}

type TimeBlockResponse struct {
	ID                uuid.UUID  `json:"id"`
	DoctorID          uuid.UUID  `json:"doctor_id"`
	Date              string     `json:"date"`
	StartTime         string     `json:"start_time"`
	EndTime           string     `json:"end_time"`
	Reason            string     `json:"reason"`
	State             string     `json:"state"`
	RecurrenceGroupID *uuid.UUID `json:"recurrence_group_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func newTimeBlockResponse(b *scheduling.TimeBlock) TimeBlockResponse {
	return TimeBlockResponse{
		ID:                b.ID,
		DoctorID:          b.DoctorID,
		Date:              scheduling.FormatDate(b.Date),
		StartTime:         b.StartTime.String(),
		EndTime:           b.EndTime.String(),
		Reason:            b.Reason,
		State:             string(b.State),
		RecurrenceGroupID: b.RecurrenceGroupID,
		CreatedAt:         b.CreatedAt,
		UpdatedAt:         b.UpdatedAt,
	}
}

func newTimeBlockList(blocks []scheduling.TimeBlock) []TimeBlockResponse {
	out := make([]TimeBlockResponse, 0, len(blocks))
	for i := range blocks {
		out = append(out, newTimeBlockResponse(&blocks[i]))
	}
	return out
}

type SkippedDateResponse struct {
	Date     string            `json:"date"`
	Conflict *ConflictResponse `json:"conflict,omitempty"`
}

type RecurringResponse struct {
	GroupID *uuid.UUID            `json:"recurrence_group_id,omitempty"`
	Created []TimeBlockResponse   `json:"created"`
	Skipped []SkippedDateResponse `json:"skipped"`
	Reason  string                `json:"reason,omitempty"`
}

func newRecurringResponse(res *scheduling.RecurringResult) RecurringResponse {
	out := RecurringResponse{
		GroupID: res.GroupID,
		Created: make([]TimeBlockResponse, 0, len(res.Created)),
		Skipped: make([]SkippedDateResponse, 0, len(res.Skipped)),
		Reason:  res.Reason,
	}
	for _, b := range res.Created {
		out.Created = append(out.Created, newTimeBlockResponse(b))
	}
	for _, s := range res.Skipped {
		out.Skipped = append(out.Skipped, SkippedDateResponse{
			Date:     scheduling.FormatDate(s.Date),
			Conflict: newConflictResponse(s.Conflict),
		})
	}
	return out
}

type ConflictResponse struct {
	Kind      string    `json:"kind"`
	EntityID  uuid.UUID `json:"entity_id"`
	Date      string    `json:"date"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
}

func newConflictResponse(c *scheduling.Conflict) *ConflictResponse {
	if c == nil {
		return nil
	}
	return &ConflictResponse{
		Kind:      string(c.Kind),
		EntityID:  c.EntityID,
		Date:      scheduling.FormatDate(c.Interval.Date),
		StartTime: c.Interval.Start.String(),
		EndTime:   c.Interval.End.String(),
	}
}

type ConflictCheckResponse struct {
	HasConflict bool              `json:"has_conflict"`
	Conflict    *ConflictResponse `json:"conflict,omitempty"`
}

type AppointmentResponse struct {
	ID              uuid.UUID `json:"id"`
	DoctorID        uuid.UUID `json:"doctor_id"`
	PatientID       uuid.UUID `json:"patient_id"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	DurationMinutes int       `json:"duration_minutes"`
	Status          string    `json:"status"`
}

func newAppointmentResponse(a *scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		DoctorID:        a.DoctorID,
		PatientID:       a.PatientID,
		ScheduledAt:     a.ScheduledAt,
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.Status),
	}
}

type DayScheduleResponse struct {
	Date         string                `json:"date"`
	Appointments []AppointmentResponse `json:"appointments"`
	TimeBlocks   []TimeBlockResponse   `json:"time_blocks"`
}

type WeekScheduleResponse struct {
	DoctorID  uuid.UUID             `json:"doctor_id"`
	WeekStart string                `json:"week_start"`
	WeekEnd   string                `json:"week_end"`
	Days      []DayScheduleResponse `json:"days"`
}

func newWeekScheduleResponse(w *scheduling.WeekSchedule) WeekScheduleResponse {
	out := WeekScheduleResponse{
		DoctorID:  w.DoctorID,
		WeekStart: scheduling.FormatDate(w.WeekStart),
		WeekEnd:   scheduling.FormatDate(w.WeekEnd),
		Days:      make([]DayScheduleResponse, 0, len(w.Days)),
	}
	for _, d := range w.Days {
		day := DayScheduleResponse{
			Date:         scheduling.FormatDate(d.Date),
			Appointments: make([]AppointmentResponse, 0, len(d.Appointments)),
			TimeBlocks:   newTimeBlockList(d.TimeBlocks),
		}
		for i := range d.Appointments {
			day.Appointments = append(day.Appointments, newAppointmentResponse(&d.Appointments[i]))
		}
		out.Days = append(out.Days, day)
	}
	return out
}

type ScheduledReportRequest struct {
	ReportType   string   `json:"report_type"`
	Name         string   `json:"name"`
	CronSchedule string   `json:"cron_schedule"`
	Frequency    string   `json:"frequency"`
	Timezone     string   `json:"timezone"`
	Recipients   []string `json:"recipients"`
	Format       string   `json:"format"`
	Active       *bool    `json:"active"`
}

func (r ScheduledReportRequest) input() report.ScheduleInput {
	return report.ScheduleInput{
		ReportType:   r.ReportType,
		Name:         r.Name,
		CronSchedule: r.CronSchedule,
		Frequency:    r.Frequency,
		Timezone:     r.Timezone,
		Recipients:   r.Recipients,
		Format:       r.Format,
		Active:       r.Active,
	}
}

type ScheduledReportResponse struct {
	ID            uuid.UUID  `json:"id"`
	ReportType    string     `json:"report_type"`
	Name          string     `json:"name"`
	CronSchedule  string     `json:"cron_schedule"`
	Frequency     string     `json:"frequency"`
	Timezone      string     `json:"timezone"`
	Recipients    []string   `json:"recipients"`
	Format        string     `json:"format"`
	Active        bool       `json:"active"`
	NextRun       time.Time  `json:"next_run"`
	LastRun       *time.Time `json:"last_run,omitempty"`
	LastRunStatus *string    `json:"last_run_status,omitempty"`
	LastRunError  *string    `json:"last_run_error,omitempty"`
	CreatedBy     uuid.UUID  `json:"created_by"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func newScheduledReportResponse(r *report.ScheduledReport) ScheduledReportResponse {
	out := ScheduledReportResponse{
		ID:           r.ID,
		ReportType:   r.ReportType,
		Name:         r.Name,
		CronSchedule: r.CronSchedule,
		Frequency:    string(r.Frequency),
		Timezone:     r.Timezone,
		Recipients:   r.Recipients,
		Format:       string(r.Format),
		Active:       r.Active,
		NextRun:      r.NextRun,
		LastRun:      r.LastRun,
		LastRunError: r.LastRunError,
		CreatedBy:    r.CreatedBy,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if out.Recipients == nil {
		out.Recipients = []string{}
	}
	if r.LastRunStatus != nil {
		s := string(*r.LastRunStatus)
		out.LastRunStatus = &s
	}
	return out
}

type ExecutionResponse struct {
	ID               uuid.UUID  `json:"id"`
	ScheduleID       uuid.UUID  `json:"scheduled_report_id"`
	ExecutedAt       time.Time  `json:"executed_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
	Status           string     `json:"status"`
	RecipientsSent   int        `json:"recipients_sent"`
	RecipientsFailed int        `json:"recipients_failed"`
	ErrorMessage     *string    `json:"error_message,omitempty"`
	FileName         string     `json:"file_name,omitempty"`
	DurationMs       int64      `json:"duration_ms"`
}

func newExecutionResponse(e *report.Execution) ExecutionResponse {
	return ExecutionResponse{
		ID:               e.ID,
		ScheduleID:       e.ScheduleID,
		ExecutedAt:       e.ExecutedAt,
		FinishedAt:       e.FinishedAt,
		Status:           string(e.Status),
		RecipientsSent:   e.RecipientsSent,
		RecipientsFailed: e.RecipientsFailed,
		ErrorMessage:     e.ErrorMessage,
		FileName:         e.FileName,
		DurationMs:       e.DurationMs,
	}
}

type ExecutionResultResponse struct {
	ExecutionID      uuid.UUID `json:"execution_id"`
	Success          bool      `json:"success"`
	RecipientsSent   int       `json:"recipients_sent"`
	RecipientsFailed int       `json:"recipients_failed"`
	ReportBase64     string    `json:"report_base64,omitempty"`
	FileName         string    `json:"file_name,omitempty"`
	NextRun          time.Time `json:"next_run"`
	Error            string    `json:"error,omitempty"`
}

func newExecutionResultResponse(r *report.ExecutionResult) ExecutionResultResponse {
	return ExecutionResultResponse{
		ExecutionID:      r.ExecutionID,
		Success:          r.Success,
		RecipientsSent:   r.RecipientsSent,
		RecipientsFailed: r.RecipientsFailed,
		ReportBase64:     r.ReportBase64,
		FileName:         r.FileName,
		NextRun:          r.NextRun,
		Error:            r.Error,
	}
}

type ReportDefinitionResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}
