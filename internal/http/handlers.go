package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"reportviewer/internal/core"
	"reportviewer/internal/legal"
	applog "reportviewer/internal/log"
	"reportviewer/internal/viewer"
)

// pageData feeds index.html and the partials that share its layout.
type pageData struct {
	Snapshot  viewer.Snapshot
	Selection *viewer.Selection
	Legal     legalFormData
	// OOB marks a partial response that also refreshes the month list.
	OOB bool
}

type legalFormData struct {
	Year   int
	Month  int
	Status legal.Status
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).String(),
	})
}

// handleReady reports 503 until the first month index has been committed.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	snap := s.controller.Snapshot()
	index := map[string]any{
		"state":   string(snap.State),
		"entries": len(snap.Index),
	}
	if !snap.LastScan.IsZero() {
		index["last_scan"] = snap.LastScan.Format(time.RFC3339)
	}
	if snap.Error != "" {
		index["error"] = snap.Error
	}
	checks["month_index"] = index
	if !s.controller.Ready() {
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	checks["rate_limiter"] = map[string]any{"active_clients": s.rateLimiter.ActiveClients()}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics writes counters in Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	traceMetrics := s.traceMiddleware.GetMetrics()
	rateMetrics := s.rateLimiter.GetMetrics()
	secMetrics := s.securityDetector.GetMetrics()
	snap := s.controller.Snapshot()

	write := func(name, help, kind string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	write("http_requests_total", "Total number of HTTP requests", "counter", traceMetrics.TotalRequests)
	write("http_request_duration_avg_microseconds", "Average request duration", "gauge", traceMetrics.AverageResponseTime)
	write("rate_limit_rejections_total", "Requests rejected by the rate limiter", "counter", rateMetrics.TotalHits)
	write("rate_limit_clients", "Clients tracked by the rate limiter", "gauge", rateMetrics.ClientCount)
	write("security_suspicious_requests_total", "Requests flagged as suspicious", "counter", secMetrics.SuspiciousRequests)
	write("month_index_entries", "Entries in the committed month index", "gauge", len(snap.Index))
	write("month_index_generation", "Scan generation of the committed month index", "gauge", snap.Generation)
	write("uptime_seconds", "Seconds since the server started", "gauge", int64(time.Since(s.started).Seconds()))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "index.html", s.buildPage(true), nil)
}

func (s *Server) handleMonths(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	s.render(w, r, "months", s.buildPage(false), nil)
}

// handleReload rescans the data tree and returns the refreshed month list.
// A reload superseded by a newer one renders whatever is committed.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	logger := applog.FromContext(r.Context())

	resp := NewHTMXResponse()
	err := s.controller.Reload(r.Context())
	switch {
	case err == nil:
		resp.TriggerIndexReloaded(len(s.controller.Snapshot().Index))
	case errors.Is(err, viewer.ErrStaleScan):
		logger.InfoContext(r.Context(), "Reload superseded")
	default:
		logger.ErrorContext(r.Context(), "Reload failed", applog.FieldError, err.Error())
		resp.TriggerErrorNotification("Could not load reports.")
	}
	s.render(w, r, "main", s.buildPage(true), resp)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	key, err := ParseMonthKeyParam(r.URL.Query())
	if err != nil {
		BadRequestError("Invalid month key.").Write(w)
		return
	}

	sel, err := s.controller.Select(key)
	if err != nil {
		s.selectionError(w, r, key, err)
		return
	}

	data := s.buildPage(false)
	data.Selection = &sel
	data.OOB = true
	s.render(w, r, "month_detail", data, NewHTMXResponse().TriggerMonthSelected(key))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	key, err := ParseMonthKeyParam(r.URL.Query())
	if err != nil {
		BadRequestError("Invalid month key.").Write(w)
		return
	}

	view, err := s.controller.LoadSummary(r.Context(), key)
	if err != nil {
		s.selectionError(w, r, key, err)
		return
	}
	s.render(w, r, "summary", view, nil)
}

func (s *Server) selectionError(w http.ResponseWriter, r *http.Request, key core.MonthKey, err error) {
	switch {
	case errors.Is(err, viewer.ErrUnknownMonth):
		NotFoundError("No reports for " + key.String() + ".").Write(w)
	case errors.Is(err, viewer.ErrNotReady):
		ServiceUnavailableError("Reports are still loading.").Write(w)
	default:
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Month request failed",
			applog.FieldYear, key.Year,
			applog.FieldMonth, key.Month,
			applog.FieldError, err.Error())
		InternalServerError("Could not load this month.").Write(w)
	}
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	view, err := ParseViewParam(r.URL.Query())
	if err != nil {
		BadRequestError("Unknown view.").Write(w)
		return
	}
	if err := s.controller.SetView(view); err != nil {
		BadRequestError("Unknown view.").Write(w)
		return
	}
	s.render(w, r, "main", s.buildPage(false), NewHTMXResponse().TriggerViewChanged(string(view)))
}

// handleLegal submits the legal-details form through the viewer and returns
// the status line.
func (s *Server) handleLegal(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	form, err := ParseLegalForm(w, r)
	if err != nil {
		BadRequestError("Invalid form submission.").Write(w)
		return
	}

	st := s.controller.SubmitLegal(r.Context(), form)

	resp := NewHTMXResponse()
	if st.Kind == legal.StatusSuccess {
		resp.TriggerLegalSaved(st.Location).
			TriggerFormReset().
			TriggerSuccessNotification(st.Message)
	} else {
		resp.TriggerErrorNotification(st.Message)
	}
	s.render(w, r, "legal_status", st, resp)
}

// buildPage snapshots the controller. With autoSelect, the newest month is
// made active when nothing is selected yet.
func (s *Server) buildPage(autoSelect bool) pageData {
	snap := s.controller.Snapshot()
	if autoSelect && snap.ActiveKey == nil && len(snap.Index) > 0 {
		if _, err := s.controller.Select(snap.Index[0].Key()); err == nil {
			snap = s.controller.Snapshot()
		}
	}

	data := pageData{Snapshot: snap}
	now := time.Now()
	data.Legal = legalFormData{Year: now.Year(), Month: int(now.Month()), Status: snap.LegalStatus}

	if entry, ok := snap.Active(); ok {
		if sel, err := s.controller.Select(entry.Key()); err == nil {
			data.Selection = &sel
		}
		data.Legal.Year = entry.Year
		data.Legal.Month = entry.Month
	}
	return data
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any, resp *HTMXResponseBuilder) {
	logger := applog.FromContext(r.Context())
	if s.templates == nil {
		logger.ErrorContext(r.Context(), "Templates not loaded", applog.FieldPath, r.URL.Path)
		InternalServerError("templates not loaded").Write(w)
		return
	}

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		logger.ErrorContext(r.Context(), "Template execution failed",
			applog.FieldError, err.Error(),
			"template", name)
		InternalServerError("Could not render page.").Write(w)
		return
	}

	if resp == nil {
		resp = NewHTMXResponse()
	}
	resp.BodyHTML(buf.Bytes()).Write(w)
}
