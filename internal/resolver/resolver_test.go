package resolver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"reportviewer/internal/core"
	"reportviewer/internal/fetch"
)

// mapFetcher serves bodies from a map and records every requested URL.
type mapFetcher struct {
	files     map[string]string
	requested []string
}

func (m *mapFetcher) Get(ctx context.Context, url string) ([]byte, error) {
	m.requested = append(m.requested, url)
	body, ok := m.files[url]
	if !ok {
		return nil, &fetch.FetchError{URL: url, StatusCode: 404}
	}
	return []byte(body), nil
}

func (m *mapFetcher) GetJSON(ctx context.Context, url string, v any) error {
	body, err := m.Get(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &fetch.ParseError{URL: url, Err: err}
	}
	return nil
}

const base = "http://data.test"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSummaryFirstCandidateWins(t *testing.T) {
	f := &mapFetcher{files: map[string]string{
		base + "/summaries/2024/03/summary.md":           "second",
		base + "/summaries/2024/03/financial_summary.md": "first",
	}}
	r := New(f, NewLayout(base+"/"), nil, quietLogger())

	loc, content, ok := r.Summary(context.Background(), 2024, 3)
	if !ok || content != "first" || loc != base+"/summaries/2024/03/financial_summary.md" {
		t.Fatalf("unexpected summary: ok=%v loc=%q content=%q", ok, loc, content)
	}
	if len(f.requested) != 1 {
		t.Fatalf("expected a single probe, got %v", f.requested)
	}
}

func TestSummaryFallsBackToBareMonthDir(t *testing.T) {
	f := &mapFetcher{files: map[string]string{
		base + "/summaries/2024/3/summary.md": "bare",
	}}
	r := New(f, NewLayout(base), nil, quietLogger())

	loc, content, ok := r.Summary(context.Background(), 2024, 3)
	if !ok || content != "bare" || loc != base+"/summaries/2024/3/summary.md" {
		t.Fatalf("unexpected summary: ok=%v loc=%q", ok, loc)
	}
	want := []string{
		base + "/summaries/2024/03/financial_summary.md",
		base + "/summaries/2024/03/summary.md",
		base + "/summaries/2024/3/financial_summary.md",
		base + "/summaries/2024/3/summary.md",
	}
	if !reflect.DeepEqual(f.requested, want) {
		t.Fatalf("unexpected probe order:\n%v\nwant\n%v", f.requested, want)
	}
}

func TestSummaryAllMissIsAbsent(t *testing.T) {
	r := New(&mapFetcher{}, NewLayout(base), []string{"x.md"}, quietLogger())
	if loc, content, ok := r.Summary(context.Background(), 2024, 11); ok || loc != "" || content != "" {
		t.Fatalf("expected absence, got %q %q %v", loc, content, ok)
	}
}

func TestFinancialUsesDeclaredLabel(t *testing.T) {
	f := &mapFetcher{files: map[string]string{
		base + "/html/income_statement/2024/03/meta.json": `{"year":2024,"month":3,"label":"Mar 2024 P&L","source_url":"x"}`,
	}}
	r := New(f, NewLayout(base), nil, quietLogger())

	ref := r.Financial(context.Background(), core.IncomeStatement, 2024, 3)
	want := &core.FinancialRef{
		Kind:          core.IncomeStatement,
		Label:         "Mar 2024 P&L",
		PageLocation:  base + "/html/income_statement/2024/03/page.html",
		TableLocation: base + "/html/income_statement/2024/03/table.html",
	}
	if !reflect.DeepEqual(ref, want) {
		t.Fatalf("Financial()=%+v want %+v", ref, want)
	}
}

func TestFinancialSynthesizesLabel(t *testing.T) {
	f := &mapFetcher{files: map[string]string{
		base + "/html/balance_sheet/2024/3/meta.json": `{}`,
	}}
	r := New(f, NewLayout(base), nil, quietLogger())

	ref := r.Financial(context.Background(), core.BalanceSheet, 2024, 3)
	if ref == nil || ref.Label != "Balance Sheet March 2024" {
		t.Fatalf("unexpected ref: %+v", ref)
	}
	if ref.TableLocation != base+"/html/balance_sheet/2024/3/table.html" {
		t.Fatalf("companions should sit next to the meta.json found: %q", ref.TableLocation)
	}
}

func TestFinancialMalformedMetaIsAbsent(t *testing.T) {
	f := &mapFetcher{files: map[string]string{
		base + "/html/balance_sheet/2024/03/meta.json": `{oops`,
	}}
	r := New(f, NewLayout(base), nil, quietLogger())
	if ref := r.Financial(context.Background(), core.BalanceSheet, 2024, 3); ref != nil {
		t.Fatalf("expected nil ref for malformed metadata, got %+v", ref)
	}
}

func TestCanceledContextStopsProbing(t *testing.T) {
	f := &mapFetcher{}
	r := New(f, NewLayout(base), nil, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, ok := r.Summary(ctx, 2024, 1); ok {
		t.Fatalf("expected no summary")
	}
	if r.Financial(ctx, core.IncomeStatement, 2024, 1) != nil {
		t.Fatalf("expected no ref")
	}
	if len(f.requested) != 0 {
		t.Fatalf("expected no requests after cancel, got %v", f.requested)
	}
}

func TestMonthDirs(t *testing.T) {
	if got := MonthDirs(3); !reflect.DeepEqual(got, []string{"03", "3"}) {
		t.Fatalf("MonthDirs(3)=%v", got)
	}
	if got := MonthDirs(11); !reflect.DeepEqual(got, []string{"11"}) {
		t.Fatalf("MonthDirs(11)=%v", got)
	}
}

func TestFinancialUnknownKind(t *testing.T) {
	f := &mapFetcher{files: map[string]string{
		base + "/html/cash_flow/2024/03/meta.json": `{"label":"Cash"}`,
	}}
	r := New(f, NewLayout(base), nil, quietLogger())

	if ref := r.Financial(context.Background(), core.ReportKind("cash_flow"), 2024, 3); ref != nil {
		t.Fatalf("expected nil for unknown kind, got %+v", ref)
	}
	if len(f.requested) != 0 {
		t.Fatalf("unknown kind should not be fetched, got %v", f.requested)
	}
}
