// Package legal handles legal-details submissions: the client that posts the
// viewer's form and the endpoint that validates and stores it.
package legal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"reportviewer/internal/core"
	applog "reportviewer/internal/log"
)

// Form field names used by the viewer page.
const (
	FieldYear              = "year"
	FieldMonth             = "month"
	FieldActiveLitigation  = "active_litigation"
	FieldClosedLitigations = "closed_litigations"
)

// Poster is the write side of fetch.Client.
type Poster interface {
	PostJSON(ctx context.Context, url string, body any) (int, []byte, error)
}

type Submitter struct {
	poster   Poster
	endpoint string
	logger   *slog.Logger
}

// NewSubmitter posts to <apiBaseURL>/legal-details.
func NewSubmitter(p Poster, apiBaseURL string, logger *slog.Logger) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{
		poster:   p,
		endpoint: strings.TrimRight(apiBaseURL, "/") + "/legal-details",
		logger:   logger.With(applog.FieldComponent, applog.ComponentLegal),
	}
}

func (s *Submitter) Endpoint() string { return s.endpoint }

// PayloadFromForm coerces the form fields. Numbers that do not parse become 0
// and are rejected by the endpoint's validation.
func PayloadFromForm(form url.Values) core.LegalDetailsPayload {
	return core.LegalDetailsPayload{
		Year:                  formInt(form, FieldYear),
		Month:                 formInt(form, FieldMonth),
		ActiveLitigationCount: formInt(form, FieldActiveLitigation),
		ClosedLitigationsText: strings.TrimSpace(form.Get(FieldClosedLitigations)),
	}
}

func formInt(form url.Values, key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(form.Get(key)))
	if err != nil {
		return 0
	}
	return n
}

// Submit sends p and always returns a final status; failures never escape
// as errors.
func (s *Submitter) Submit(ctx context.Context, p core.LegalDetailsPayload) Status {
	status, body, err := s.poster.PostJSON(ctx, s.endpoint, p)
	if err != nil {
		s.logger.WarnContext(ctx, "Legal details submission failed",
			applog.FieldURL, s.endpoint,
			applog.FieldYear, p.Year,
			applog.FieldMonth, p.Month,
			applog.FieldError, err.Error())
		return Failure(err.Error())
	}

	if status >= 200 && status <= 299 {
		var resp struct {
			Path string `json:"path"`
		}
		_ = json.Unmarshal(body, &resp)
		location := resp.Path
		if location == "" {
			location = "server"
		}
		s.logger.InfoContext(ctx, "Legal details saved",
			applog.FieldYear, p.Year,
			applog.FieldMonth, p.Month,
			applog.FieldLocation, location)
		return Success(location)
	}

	msg := fmt.Sprintf("save failed (%d)", status)
	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		msg = errResp.Error
	}
	s.logger.WarnContext(ctx, "Legal details rejected",
		applog.FieldStatusCode, status,
		applog.FieldYear, p.Year,
		applog.FieldMonth, p.Month,
		applog.FieldError, msg)
	return Failure(msg)
}
