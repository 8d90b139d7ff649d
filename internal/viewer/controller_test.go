package viewer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"reportviewer/internal/core"
	"reportviewer/internal/legal"
	applog "reportviewer/internal/log"
)

func testLogger() *applog.Logger {
	return applog.New(applog.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
}

func strPtr(s string) *string { return &s }

func sampleIndex() core.MonthIndex {
	return core.MonthIndex{
		{
			Year: 2024, Month: 3, Label: "March 2024",
			SummaryLocation: "http://data/summaries/2024/03/financial_summary.md",
			SummaryContent:  strPtr("# March\n\n**Revenue** up"),
			Income: &core.FinancialRef{Kind: core.IncomeStatement, Label: "Income Statement March 2024",
				PageLocation: "p", TableLocation: "t"},
		},
		{
			Year: 2024, Month: 2, Label: "February 2024",
			SummaryLocation: "http://data/summaries/2024/02/financial_summary.md",
		},
		{
			Year: 2024, Month: 1, Label: "January 2024",
			Balance: &core.FinancialRef{Kind: core.BalanceSheet, Label: "Balance Sheet January 2024"},
		},
	}
}

type staticBuilder struct {
	idx core.MonthIndex
	err error
}

func (b staticBuilder) Build(ctx context.Context) (core.MonthIndex, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.idx.Clone(), nil
}

type countingFetcher struct {
	calls   atomic.Int32
	body    string
	err     error
	release chan struct{}
}

func (f *countingFetcher) Get(ctx context.Context, url string) ([]byte, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.body), nil
}

func readyController(t *testing.T, f SummaryFetcher) *Controller {
	t.Helper()
	c := NewController(Options{Builder: staticBuilder{idx: sampleIndex()}, Fetcher: f, Logger: testLogger()})
	if err := c.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	return c
}

func TestReloadCommitsIndex(t *testing.T) {
	c := NewController(Options{Builder: staticBuilder{idx: sampleIndex()}, Logger: testLogger()})
	if c.Ready() || c.Snapshot().State != StateIdle {
		t.Fatal("expected idle controller before first reload")
	}
	if err := c.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	snap := c.Snapshot()
	if snap.State != StateReady || len(snap.Index) != 3 || !c.Ready() {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestReloadErrorState(t *testing.T) {
	c := NewController(Options{Builder: staticBuilder{err: errors.New("list years: 503")}, Logger: testLogger()})
	if err := c.Reload(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	snap := c.Snapshot()
	if snap.State != StateError || !strings.Contains(snap.Error, "list years") {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if _, err := c.Select(core.MonthKey{Year: 2024, Month: 3}); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}

// gatedBuilder blocks each Build until released and returns the index
// tagged with its call number.
type gatedBuilder struct {
	mu      sync.Mutex
	calls   int
	started chan int
	gates   map[int]chan struct{}
}

func (b *gatedBuilder) Build(ctx context.Context) (core.MonthIndex, error) {
	b.mu.Lock()
	b.calls++
	n := b.calls
	gate := b.gates[n]
	b.mu.Unlock()
	b.started <- n

	select {
	case <-gate:
	case <-ctx.Done():
		// A stale scan may still complete; ignore cancellation to prove
		// the generation fence discards it.
		<-gate
	}
	return core.MonthIndex{{Year: 2000 + n, Month: 1, Label: "x", SummaryLocation: "s"}}, nil
}

// ctxBuilder blocks until released or until its context ends.
type ctxBuilder struct {
	started chan struct{}
	release chan struct{}
}

func (b *ctxBuilder) Build(ctx context.Context) (core.MonthIndex, error) {
	close(b.started)
	select {
	case <-b.release:
		return sampleIndex(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestReloadSurvivesCallerCancellation(t *testing.T) {
	b := &ctxBuilder{started: make(chan struct{}), release: make(chan struct{})}
	c := NewController(Options{Builder: b, Logger: testLogger()})

	reqCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Reload(reqCtx) }()
	<-b.started

	cancel()
	close(b.release)

	if err := <-done; err != nil {
		t.Fatalf("Reload() error = %v, want nil after caller cancellation", err)
	}
	snap := c.Snapshot()
	if snap.State != StateReady || snap.Error != "" {
		t.Fatalf("state = %q error = %q, want ready", snap.State, snap.Error)
	}
	if !c.Ready() || len(snap.Index) != len(sampleIndex()) {
		t.Fatalf("index not committed: ready=%v entries=%d", c.Ready(), len(snap.Index))
	}
}

func TestReloadDiscardsStaleScan(t *testing.T) {
	b := &gatedBuilder{
		started: make(chan int, 2),
		gates:   map[int]chan struct{}{1: make(chan struct{}), 2: make(chan struct{})},
	}
	c := NewController(Options{Builder: b, Logger: testLogger()})

	first := make(chan error, 1)
	go func() { first <- c.Reload(context.Background()) }()
	<-b.started

	second := make(chan error, 1)
	go func() { second <- c.Reload(context.Background()) }()
	<-b.started

	close(b.gates[2])
	if err := <-second; err != nil {
		t.Fatalf("second reload: %v", err)
	}
	close(b.gates[1])
	if err := <-first; !errors.Is(err, ErrStaleScan) {
		t.Fatalf("expected ErrStaleScan, got %v", err)
	}

	snap := c.Snapshot()
	if len(snap.Index) != 1 || snap.Index[0].Year != 2002 {
		t.Fatalf("stale scan overwrote index: %+v", snap.Index)
	}
}

func TestReloadKeepsActiveKeyWhenPresent(t *testing.T) {
	c := readyController(t, &countingFetcher{})
	key := core.MonthKey{Year: 2024, Month: 2}
	if _, err := c.Select(key); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if err := c.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if snap := c.Snapshot(); !snap.IsActive(key) {
		t.Fatalf("active key lost: %+v", snap.ActiveKey)
	}
}

func TestSelect(t *testing.T) {
	f := &countingFetcher{body: "# Feb"}
	c := readyController(t, f)

	t.Run("cached summary is rendered", func(t *testing.T) {
		sel, err := c.Select(core.MonthKey{Year: 2024, Month: 3})
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		if sel.Summary.State != SummaryLoaded || !strings.Contains(string(sel.Summary.HTML), "<strong>Revenue</strong>") {
			t.Fatalf("unexpected summary: %+v", sel.Summary)
		}
		if len(sel.Statements) != 1 || sel.StatementsMessage != "" {
			t.Fatalf("unexpected statements: %+v", sel)
		}
	})

	t.Run("uncached summary is loading", func(t *testing.T) {
		sel, err := c.Select(core.MonthKey{Year: 2024, Month: 2})
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		if sel.Summary.State != SummaryLoading || sel.Summary.Message != MsgLoadingSummary {
			t.Fatalf("unexpected summary: %+v", sel.Summary)
		}
		if sel.StatementsMessage != MsgNoStatements {
			t.Fatalf("expected statements placeholder, got %q", sel.StatementsMessage)
		}
	})

	t.Run("missing summary never fetches", func(t *testing.T) {
		before := f.calls.Load()
		key := core.MonthKey{Year: 2024, Month: 1}
		sel, err := c.Select(key)
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		if sel.Summary.State != SummaryNotFound || sel.Summary.Message != MsgNoSummary {
			t.Fatalf("unexpected summary: %+v", sel.Summary)
		}
		view, err := c.LoadSummary(context.Background(), key)
		if err != nil || view.State != SummaryNotFound {
			t.Fatalf("LoadSummary = %+v, %v", view, err)
		}
		if f.calls.Load() != before {
			t.Fatal("fetcher called for a month without a summary")
		}
		if !c.Snapshot().IsActive(key) {
			t.Fatal("selected key not active")
		}
	})

	t.Run("unknown month", func(t *testing.T) {
		if _, err := c.Select(core.MonthKey{Year: 1999, Month: 1}); !errors.Is(err, ErrUnknownMonth) {
			t.Fatalf("expected ErrUnknownMonth, got %v", err)
		}
	})
}

func TestLoadSummaryFetchesAndMemoizes(t *testing.T) {
	f := &countingFetcher{body: "- one\n- two"}
	c := readyController(t, f)
	key := core.MonthKey{Year: 2024, Month: 2}

	view, err := c.LoadSummary(context.Background(), key)
	if err != nil {
		t.Fatalf("LoadSummary: %v", err)
	}
	if view.State != SummaryLoaded || string(view.HTML) != "<ul>\n<li>one</li>\n<li>two</li>\n</ul>\n" {
		t.Fatalf("unexpected view: %+v", view)
	}

	sel, _ := c.Select(key)
	if sel.Summary.State != SummaryLoaded {
		t.Fatalf("content not memoized: %+v", sel.Summary)
	}
	if _, err := c.LoadSummary(context.Background(), key); err != nil {
		t.Fatal(err)
	}
	if f.calls.Load() != 1 {
		t.Fatalf("expected one fetch, got %d", f.calls.Load())
	}
}

func TestLoadSummaryFailureIsDistinct(t *testing.T) {
	c := readyController(t, &countingFetcher{err: errors.New("502")})
	view, err := c.LoadSummary(context.Background(), core.MonthKey{Year: 2024, Month: 2})
	if err != nil {
		t.Fatalf("LoadSummary: %v", err)
	}
	if view.State != SummaryFailed || view.Message != MsgSummaryFailed {
		t.Fatalf("unexpected view: %+v", view)
	}
	if view.Message == MsgNoSummary {
		t.Fatal("failure must not look like a missing summary")
	}
}

func TestConcurrentLoadsFetchOnce(t *testing.T) {
	f := &countingFetcher{body: "hello", release: make(chan struct{})}
	c := readyController(t, f)
	key := core.MonthKey{Year: 2024, Month: 2}

	const n = 8
	var wg sync.WaitGroup
	results := make(chan SummaryView, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.LoadSummary(context.Background(), key)
			if err != nil {
				t.Error(err)
				return
			}
			results <- v
		}()
	}

	// Give every goroutine time to join the in-flight fetch.
	deadline := time.Now().Add(2 * time.Second)
	for f.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	close(f.release)
	wg.Wait()
	close(results)

	for v := range results {
		if v.State != SummaryLoaded || string(v.HTML) != "<p>hello</p>\n" {
			t.Fatalf("unexpected view: %+v", v)
		}
	}
	if got := f.calls.Load(); got != 1 {
		t.Fatalf("expected a single fetch, got %d", got)
	}
}

func TestSetView(t *testing.T) {
	c := NewController(Options{Logger: testLogger()})
	if c.Snapshot().View != ViewReports {
		t.Fatal("default view should be reports")
	}
	if err := c.SetView(ViewLegal); err != nil || c.Snapshot().View != ViewLegal {
		t.Fatalf("SetView(legal) = %v", err)
	}
	if err := c.SetView("settings"); !errors.Is(err, ErrUnknownView) {
		t.Fatalf("expected ErrUnknownView, got %v", err)
	}
}

type fakeSubmitter struct {
	got    core.LegalDetailsPayload
	status legal.Status
	seen   legal.StatusKind
	c      *Controller
}

func (f *fakeSubmitter) Submit(ctx context.Context, p core.LegalDetailsPayload) legal.Status {
	f.got = p
	f.seen = f.c.Snapshot().LegalStatus.Kind
	return f.status
}

func TestSubmitLegal(t *testing.T) {
	fs := &fakeSubmitter{status: legal.Failure("quota exceeded")}
	c := NewController(Options{Submitter: fs, Logger: testLogger()})
	fs.c = c

	st := c.SubmitLegal(context.Background(), url.Values{
		"year": {"2024"}, "month": {"3"}, "active_litigation": {"2"}, "closed_litigations": {" none "},
	})
	if fs.seen != legal.StatusSaving {
		t.Fatalf("status during submit = %q, want saving", fs.seen)
	}
	if fs.got != (core.LegalDetailsPayload{Year: 2024, Month: 3, ActiveLitigationCount: 2, ClosedLitigationsText: "none"}) {
		t.Fatalf("unexpected payload %+v", fs.got)
	}
	if st.Kind != legal.StatusError || !strings.Contains(st.Message, "quota exceeded") {
		t.Fatalf("unexpected status %+v", st)
	}
	if c.Snapshot().LegalStatus != st {
		t.Fatal("final status not stored")
	}
}
