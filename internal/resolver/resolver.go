// Package resolver probes the data tree for the artifacts of a month.
// Every probe follows the same rule: candidates are tried in priority
// order, the first hit wins and a complete miss is not an error.
package resolver

import (
	"context"
	"log/slog"
	"strconv"

	"reportviewer/internal/core"
	applog "reportviewer/internal/log"
)

// DefaultSummaryCandidates lists summary filenames in priority order.
var DefaultSummaryCandidates = []string{"financial_summary.md", "summary.md"}

// Fetcher is the read side of fetch.Client.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
	GetJSON(ctx context.Context, url string, v any) error
}

// Meta is the metadata document written next to each statement snapshot.
type Meta struct {
	Year      int    `json:"year,omitempty"`
	Month     int    `json:"month,omitempty"`
	Label     string `json:"label,omitempty"`
	SourceURL string `json:"source_url,omitempty"`
}

type Resolver struct {
	fetcher    Fetcher
	layout     Layout
	candidates []string
	logger     *slog.Logger
}

func New(f Fetcher, layout Layout, candidates []string, logger *slog.Logger) *Resolver {
	if len(candidates) == 0 {
		candidates = DefaultSummaryCandidates
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		fetcher:    f,
		layout:     layout,
		candidates: candidates,
		logger:     logger.With(applog.FieldComponent, applog.ComponentResolver),
	}
}

// Summary returns the location and content of the first summary candidate
// that can be read. ok is false when none could.
func (r *Resolver) Summary(ctx context.Context, year, month int) (location, content string, ok bool) {
	for _, dir := range MonthDirs(month) {
		for _, name := range r.candidates {
			if ctx.Err() != nil {
				return "", "", false
			}
			url := r.layout.SummaryURL(year, dir, name)
			body, err := r.fetcher.Get(ctx, url)
			if err != nil {
				r.logger.WarnContext(ctx, "Summary candidate unavailable",
					applog.FieldURL, url,
					applog.FieldYear, year,
					applog.FieldMonth, month,
					applog.FieldError, err.Error())
				continue
			}
			return url, string(body), true
		}
	}
	return "", "", false
}

// Financial reads the metadata document of a statement kind and builds the
// reference. The page and table companions are not probed. Unknown kinds
// have no directory in the tree and resolve to nil without a request.
func (r *Resolver) Financial(ctx context.Context, kind core.ReportKind, year, month int) *core.FinancialRef {
	if !kind.IsValid() {
		r.logger.WarnContext(ctx, "Unknown statement kind", applog.FieldKind, string(kind))
		return nil
	}
	for _, dir := range MonthDirs(month) {
		if ctx.Err() != nil {
			return nil
		}
		url := r.layout.MetaURL(kind, year, dir)
		var meta Meta
		if err := r.fetcher.GetJSON(ctx, url, &meta); err != nil {
			r.logger.WarnContext(ctx, "Statement metadata unavailable",
				applog.FieldURL, url,
				applog.FieldKind, string(kind),
				applog.FieldYear, year,
				applog.FieldMonth, month,
				applog.FieldError, err.Error())
			continue
		}

		label := meta.Label
		if label == "" {
			label = kind.Title() + " " + core.MonthLabel(year, month)
		}
		return &core.FinancialRef{
			Kind:          kind,
			Label:         label,
			PageLocation:  r.layout.StatementURL(kind, year, dir, "page.html"),
			TableLocation: r.layout.StatementURL(kind, year, dir, "table.html"),
		}
	}
	return nil
}

// MonthDirs returns the directory names a month may be stored under: the
// zero-padded form written by the capture job first, then the bare number.
func MonthDirs(month int) []string {
	padded := pad2(month)
	bare := strconv.Itoa(month)
	if padded == bare {
		return []string{padded}
	}
	return []string{padded, bare}
}

func pad2(n int) string {
	if n >= 0 && n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
