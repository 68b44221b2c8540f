package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hackgods/telehealth-scheduling/internal/report"
	"github.com/hackgods/telehealth-scheduling/internal/scheduling"
)

const maxBodyBytes = 1 << 20

type ErrorResponse struct {
	Error    string            `json:"error"`
	Details  string            `json:"details,omitempty"`
	Field    string            `json:"field,omitempty"`
	Conflict *ConflictResponse `json:"conflict,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeServiceError maps domain errors onto status codes. Anything unknown is
// logged and reported as a 500 without leaking the cause.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation       *scheduling.ValidationError
		conflict         *scheduling.ConflictError
		reportValidation *report.ValidationError
	)

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_failed", Field: validation.Field, Details: validation.Error()})
	case errors.As(err, &reportValidation):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_failed", Field: reportValidation.Field, Details: reportValidation.Error()})
	case errors.As(err, &conflict):
		resp := ErrorResponse{Error: "schedule_conflict", Details: conflict.Error()}
		if conflict.With != nil {
			resp.Conflict = newConflictResponse(conflict.With)
		}
		writeJSON(w, http.StatusConflict, resp)
	case errors.Is(err, scheduling.ErrTimeBlockNotFound):
		writeError(w, http.StatusNotFound, "time_block_not_found", err.Error())
	case errors.Is(err, scheduling.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, scheduling.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, scheduling.ErrScheduleBusy):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "schedule_busy", err.Error())
	case errors.Is(err, report.ErrReportNotFound):
		writeError(w, http.StatusNotFound, "scheduled_report_not_found", err.Error())
	case errors.Is(err, report.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "")
	}
}
