// Package index builds the month index from directory listings.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"reportviewer/internal/core"
	"reportviewer/internal/listing"
	applog "reportviewer/internal/log"
	"reportviewer/internal/resolver"
)

// Lister enumerates numeric children of a directory listing.
type Lister interface {
	Read(ctx context.Context, url string) (listing.Set, error)
}

// ArtifactResolver probes the artifacts of one month.
type ArtifactResolver interface {
	Summary(ctx context.Context, year, month int) (location, content string, ok bool)
	Financial(ctx context.Context, kind core.ReportKind, year, month int) *core.FinancialRef
}

type Builder struct {
	lister   Lister
	resolver ArtifactResolver
	layout   resolver.Layout
	workers  int
	logger   *slog.Logger
}

// NewBuilder returns a Builder probing up to workers months at a time.
// workers <= 1 probes months one after another.
func NewBuilder(l Lister, r ArtifactResolver, layout resolver.Layout, workers int, logger *slog.Logger) *Builder {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		lister:   l,
		resolver: r,
		layout:   layout,
		workers:  workers,
		logger:   logger.With(applog.FieldComponent, applog.ComponentIndex),
	}
}

type monthRef struct {
	year, month int
}

// Build scans the whole tree and returns the index newest first. Only a
// failure to list the summary years is fatal; nothing partial is returned.
func (b *Builder) Build(ctx context.Context) (core.MonthIndex, error) {
	start := time.Now()

	years, err := b.lister.Read(ctx, b.layout.SummariesURL())
	if err != nil {
		return nil, fmt.Errorf("list years: %w", err)
	}

	statementYears := make(map[core.ReportKind]listing.Set, len(core.ReportKinds))
	for _, kind := range core.ReportKinds {
		set := b.optionalRead(ctx, b.layout.StatementsURL(kind))
		statementYears[kind] = set
		years.Union(set)
	}

	var refs []monthRef
	for _, year := range years.Descending() {
		months := make(listing.Set)
		months.Union(b.optionalRead(ctx, b.layout.SummaryYearURL(year)))
		for _, kind := range core.ReportKinds {
			if statementYears[kind].Has(year) {
				months.Union(b.optionalRead(ctx, b.layout.StatementYearURL(kind, year)))
			}
		}
		for _, month := range months.Descending() {
			refs = append(refs, monthRef{year: year, month: month})
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slots := make([]core.MonthEntry, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, ref := range refs {
		g.Go(func() error {
			slots[i] = b.resolveMonth(gctx, ref.year, ref.month)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idx := make(core.MonthIndex, 0, len(slots))
	for _, e := range slots {
		if e.HasArtifacts() {
			idx = append(idx, e)
		}
	}
	idx.SortDescending()

	b.logger.InfoContext(ctx, "Month index built",
		"years", len(years),
		"months_probed", len(refs),
		applog.FieldEntries, len(idx),
		applog.FieldDuration, time.Since(start).Milliseconds())
	return idx, nil
}

// resolveMonth runs summary, income and balance resolution in that order.
func (b *Builder) resolveMonth(ctx context.Context, year, month int) core.MonthEntry {
	e := core.MonthEntry{
		Year:  year,
		Month: month,
		Label: core.MonthLabel(year, month),
	}
	if loc, content, ok := b.resolver.Summary(ctx, year, month); ok {
		e.SummaryLocation = loc
		e.SummaryContent = &content
	}
	e.Income = b.resolver.Financial(ctx, core.IncomeStatement, year, month)
	e.Balance = b.resolver.Financial(ctx, core.BalanceSheet, year, month)

	b.logger.DebugContext(ctx, "Month resolved",
		applog.FieldYear, year,
		applog.FieldMonth, month,
		"summary", e.SummaryLocation != "",
		"income", e.Income != nil,
		"balance", e.Balance != nil)
	return e
}

// optionalRead lists url, treating failures as an empty listing.
func (b *Builder) optionalRead(ctx context.Context, url string) listing.Set {
	set, err := b.lister.Read(ctx, url)
	if err != nil {
		b.logger.WarnContext(ctx, "Listing unavailable",
			applog.FieldURL, url,
			applog.FieldError, err.Error())
		return make(listing.Set)
	}
	return set
}
