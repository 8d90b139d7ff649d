package legal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"reportviewer/internal/core"
	applog "reportviewer/internal/log"
)

const maxRequestBytes = 64 << 10

// Error messages returned by the endpoint.
const (
	MsgInvalidJSON     = "Request body must be valid JSON."
	MsgRequiredNumbers = "Fields year, month, active_litigation are required numbers."
	MsgStoreFailed     = "Could not store legal details."
)

// Store persists the rendered legal_details.md and returns where it went.
type Store interface {
	SaveLegalDetails(ctx context.Context, year, month int, content string) (location string, err error)
}

// AuditRecorder keeps a history of accepted submissions.
type AuditRecorder interface {
	RecordSubmission(ctx context.Context, p core.LegalDetailsPayload, location string) error
}

// Notifier announces that the data tree changed.
type Notifier interface {
	PublishRescan(ctx context.Context, reason string, year, month int) error
}

type Handler struct {
	store    Store
	audit    AuditRecorder
	notifier Notifier
	logger   *slog.Logger
}

// NewHandler returns the legal-details endpoint. audit and notifier may be
// nil.
func NewHandler(store Store, audit AuditRecorder, notifier Notifier, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:    store,
		audit:    audit,
		notifier: notifier,
		logger:   logger.With(applog.FieldComponent, applog.ComponentLegal),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		setCORS(w)
		w.WriteHeader(http.StatusNoContent)
	case http.MethodPost:
		h.handleSubmit(w, r)
	default:
		setCORS(w)
		w.Header().Set("Allow", "POST, OPTIONS")
		respondJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed."})
	}
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": MsgInvalidJSON})
		return
	}

	p, msg := ParsePayload(raw)
	if msg != "" {
		h.logger.WarnContext(ctx, "Legal details rejected", applog.FieldError, msg)
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	location, err := h.store.SaveLegalDetails(ctx, p.Year, p.Month, p.Markdown())
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to store legal details",
			applog.FieldYear, p.Year,
			applog.FieldMonth, p.Month,
			applog.FieldError, err.Error())
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": MsgStoreFailed})
		return
	}

	h.logger.InfoContext(ctx, "Legal details stored",
		applog.FieldYear, p.Year,
		applog.FieldMonth, p.Month,
		applog.FieldLocation, location)

	if h.audit != nil {
		if err := h.audit.RecordSubmission(ctx, p, location); err != nil {
			h.logger.WarnContext(ctx, "Failed to record legal details audit entry", applog.FieldError, err.Error())
		}
	}
	if h.notifier != nil {
		if err := h.notifier.PublishRescan(ctx, "legal_details", p.Year, p.Month); err != nil {
			h.logger.WarnContext(ctx, "Failed to publish rescan notification", applog.FieldError, err.Error())
		}
	}

	respondJSON(w, http.StatusOK, map[string]string{"path": location})
}

// ParsePayload decodes and validates a submission body. It returns the
// user-facing error message when the body is rejected.
func ParsePayload(raw []byte) (core.LegalDetailsPayload, string) {
	var p core.LegalDetailsPayload

	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil || fields == nil {
		return p, MsgInvalidJSON
	}
	if _, err := dec.Token(); err != io.EOF {
		return p, MsgInvalidJSON
	}

	var ok1, ok2, ok3 bool
	p.Year, ok1 = coerceInt(fields[FieldYear])
	p.Month, ok2 = coerceInt(fields[FieldMonth])
	p.ActiveLitigationCount, ok3 = coerceInt(fields[FieldActiveLitigation])
	if !ok1 || !ok2 || !ok3 {
		return p, MsgRequiredNumbers
	}

	if err := p.Validate(); err != nil {
		return p, err.Error()
	}

	p.ClosedLitigationsText = strings.TrimSpace(closedText(fields[FieldClosedLitigations]))
	return p, ""
}

// closedText renders the closed_litigations field. Empty values of any type
// (null, false, 0, "", [], {}) mean none; other scalars are written the way
// the capture tooling prints them, so true becomes "True" and 2.0 "2.0".
func closedText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if !x {
			return ""
		}
		return "True"
	case json.Number:
		return numberText(x)
	case []any:
		if len(x) == 0 {
			return ""
		}
	case map[string]any:
		if len(x) == 0 {
			return ""
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func numberText(n json.Number) string {
	if i, err := n.Int64(); err == nil {
		if i == 0 {
			return ""
		}
		return strconv.FormatInt(i, 10)
	}
	f, err := n.Float64()
	if err != nil {
		return n.String()
	}
	if f == 0 {
		return ""
	}
	if exp := math.Floor(math.Log10(math.Abs(f))); exp < -4 || exp >= 16 {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}

// coerceInt accepts JSON numbers (fractions truncated) and numeric strings.
func coerceInt(v any) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
		f, err := n.Float64()
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return 0, false
		}
		return int(f), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	setCORS(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
