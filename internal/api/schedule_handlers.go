package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telehealth-scheduling/internal/auth"
	"github.com/hackgods/telehealth-scheduling/internal/scheduling"
)

type schedulingHandlers struct {
	svc SchedulingService
}

func (h *schedulingHandlers) create(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := uuidParam(w, r, "doctorID")
	if !ok {
		return
	}

	var req CreateTimeBlockRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
		return
	}

	var p fieldParser
	in := scheduling.CreateTimeBlockInput{
		DoctorID:  doctorID,
		Date:      p.date("date", req.Date),
		StartTime: p.clock("start_time", req.StartTime),
		EndTime:   p.clock("end_time", req.EndTime),
		Reason:    req.Reason,
	}
	if p.err != nil {
		writeServiceError(w, r, p.err)
		return
	}

	block, err := h.svc.CreateTimeBlock(r.Context(), callerFrom(r), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newTimeBlockResponse(block))
}

func (h *schedulingHandlers) createRecurring(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := uuidParam(w, r, "doctorID")
	if !ok {
		return
	}

	var req RecurringTimeBlockRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
		return
	}

	var p fieldParser
	in := scheduling.RecurringTimeBlockInput{
		DoctorID:   doctorID,
		DaysOfWeek: req.DaysOfWeek,
		RangeStart: p.date("start_date", req.StartDate),
		RangeEnd:   p.date("end_date", req.EndDate),
		StartTime:  p.clock("start_time", req.StartTime),
		EndTime:    p.clock("end_time", req.EndTime),
		Reason:     req.Reason,
	}
	if p.err != nil {
		writeServiceError(w, r, p.err)
		return
	}

	res, err := h.svc.CreateRecurringTimeBlocks(r.Context(), callerFrom(r), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	status := http.StatusCreated
	if len(res.Created) == 0 {
		status = http.StatusOK
	}
	writeJSON(w, status, newRecurringResponse(res))
}

func (h *schedulingHandlers) update(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req UpdateTimeBlockRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
		return
	}

	var p fieldParser
	in := scheduling.UpdateTimeBlockInput{ID: id, Reason: req.Reason}
	if req.Date != nil {
		d := p.date("date", *req.Date)
		in.Date = &d
	}
	if req.StartTime != nil {
		t := p.clock("start_time", *req.StartTime)
		in.StartTime = &t
	}
	if req.EndTime != nil {
		t := p.clock("end_time", *req.EndTime)
		in.EndTime = &t
	}
	if p.err != nil {
		writeServiceError(w, r, p.err)
		return
	}

	block, err := h.svc.UpdateTimeBlock(r.Context(), callerFrom(r), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTimeBlockResponse(block))
}

type transitionFunc func(ctx context.Context, caller auth.Caller, id, doctorID uuid.UUID) (bool, error)

// transition serves delete, deactivate and activate. A block that does not
// exist or belongs to someone else is a 404.
func (h *schedulingHandlers) transition(fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "doctorID")
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		changed, err := fn(r.Context(), callerFrom(r), id, doctorID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if !changed {
			writeError(w, http.StatusNotFound, "time_block_not_found", scheduling.ErrTimeBlockNotFound.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *schedulingHandlers) deleteGroup(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := uuidParam(w, r, "doctorID")
	if !ok {
		return
	}
	groupID, ok := uuidParam(w, r, "groupID")
	if !ok {
		return
	}

	n, err := h.svc.DeleteRecurrenceGroup(r.Context(), callerFrom(r), groupID, doctorID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (h *schedulingHandlers) list(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := uuidParam(w, r, "doctorID")
	if !ok {
		return
	}

	var p fieldParser
	q := r.URL.Query()
	from := p.date("from", q.Get("from"))
	to := p.date("to", q.Get("to"))
	if p.err != nil {
		writeServiceError(w, r, p.err)
		return
	}

	blocks, err := h.svc.ListTimeBlocks(r.Context(), callerFrom(r), doctorID, from, to)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTimeBlockList(blocks))
}

func (h *schedulingHandlers) checkConflict(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := uuidParam(w, r, "doctorID")
	if !ok {
		return
	}

	var req ConflictCheckRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
		return
	}

	var p fieldParser
	candidate := scheduling.TimeInterval{
		Date:  p.date("date", req.Date),
		Start: p.clock("start_time", req.StartTime),
		End:   p.clock("end_time", req.EndTime),
	}
	if p.err != nil {
		writeServiceError(w, r, p.err)
		return
	}

	ex := scheduling.Exclusions{TimeBlockID: req.ExcludeTimeBlockID, AppointmentID: req.ExcludeAppointmentID}
	conflict, err := h.svc.FindConflict(r.Context(), callerFrom(r), doctorID, candidate, ex)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ConflictCheckResponse{
		HasConflict: conflict != nil,
		Conflict:    newConflictResponse(conflict),
	})
}

func (h *schedulingHandlers) week(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := uuidParam(w, r, "doctorID")
	if !ok {
		return
	}

	day := time.Now()
	if raw := r.URL.Query().Get("date"); raw != "" {
		var p fieldParser
		day = p.date("date", raw)
		if p.err != nil {
			writeServiceError(w, r, p.err)
			return
		}
	}

	week, err := h.svc.WeekSchedule(r.Context(), callerFrom(r), doctorID, day)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newWeekScheduleResponse(week))
}

func (h *schedulingHandlers) reschedule(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req RescheduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
		return
	}

	appt, err := h.svc.RescheduleAppointment(r.Context(), callerFrom(r), id, req.NewDateTime)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAppointmentResponse(appt))
}

// fieldParser keeps the first parse failure so handlers can parse a whole
// request and check once.
type fieldParser struct {
	err error
}

func (p *fieldParser) date(field, raw string) time.Time {
	if p.err != nil {
		return time.Time{}
	}
	if raw == "" {
		p.err = &scheduling.ValidationError{Field: field, Reason: "is required"}
		return time.Time{}
	}
	d, err := scheduling.ParseDate(raw)
	if err != nil {
		p.err = &scheduling.ValidationError{Field: field, Reason: err.Error()}
	}
	return d
}

func (p *fieldParser) clock(field, raw string) scheduling.TimeOfDay {
	if p.err != nil {
		return 0
	}
	t, err := scheduling.ParseTimeOfDay(raw)
	if err != nil {
		p.err = &scheduling.ValidationError{Field: field, Reason: err.Error()}
	}
	return t
}
