package api

import (
	"net/http"
	"strconv"

	"github.com/hackgods/telehealth-scheduling/internal/report"
)

type reportHandlers struct {
	svc ReportService
}

func (h *reportHandlers) catalogue(w http.ResponseWriter, r *http.Request) {
	if !callerFrom(r).IsAdmin() {
		writeServiceError(w, r, report.ErrForbidden)
		return
	}
	defs := h.svc.Catalogue()
	out := make([]ReportDefinitionResponse, 0, len(defs))
	for _, d := range defs {
		out = append(out, ReportDefinitionResponse{ID: d.ID, Name: d.Name, Description: d.Description})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *reportHandlers) list(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.svc.List(r.Context(), callerFrom(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]ScheduledReportResponse, 0, len(schedules))
	for i := range schedules {
		out = append(out, newScheduledReportResponse(&schedules[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *reportHandlers) create(w http.ResponseWriter, r *http.Request) {
	var req ScheduledReportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
		return
	}

	sched, err := h.svc.Create(r.Context(), callerFrom(r), req.input())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newScheduledReportResponse(sched))
}

func (h *reportHandlers) get(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	sched, err := h.svc.Get(r.Context(), callerFrom(r), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newScheduledReportResponse(sched))
}

func (h *reportHandlers) update(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req ScheduledReportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
		return
	}

	sched, err := h.svc.Update(r.Context(), callerFrom(r), id, req.input())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newScheduledReportResponse(sched))
}

func (h *reportHandlers) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), callerFrom(r), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *reportHandlers) executions(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_failed", Field: "limit", Details: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	execs, err := h.svc.ListExecutions(r.Context(), callerFrom(r), id, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]ExecutionResponse, 0, len(execs))
	for i := range execs {
		out = append(out, newExecutionResponse(&execs[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// execute runs a schedule immediately. Email goes out unless send_email=false.
func (h *reportHandlers) execute(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	sendEmail := true
	if raw := r.URL.Query().Get("send_email"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_failed", Field: "send_email", Details: "send_email must be true or false"})
			return
		}
		sendEmail = b
	}

	res, err := h.svc.ExecuteNow(r.Context(), callerFrom(r), id, sendEmail)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newExecutionResultResponse(res))
}
