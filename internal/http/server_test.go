package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"reportviewer/internal/core"
	"reportviewer/internal/legal"
	applog "reportviewer/internal/log"
	"reportviewer/internal/viewer"
)

func testLogger() *applog.Logger {
	return applog.New(applog.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
}

func strPtr(s string) *string { return &s }

type fakeBuilder struct {
	idx core.MonthIndex
	err error
}

func (b fakeBuilder) Build(ctx context.Context) (core.MonthIndex, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.idx.Clone(), nil
}

type fakeFetcher struct {
	body string
	err  error
}

func (f fakeFetcher) Get(ctx context.Context, url string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.body), nil
}

type fakeSubmitter struct {
	status legal.Status
	got    core.LegalDetailsPayload
}

func (s *fakeSubmitter) Submit(ctx context.Context, p core.LegalDetailsPayload) legal.Status {
	s.got = p
	return s.status
}

func sampleIndex() core.MonthIndex {
	return core.MonthIndex{
		{
			Year: 2024, Month: 3, Label: "March 2024",
			SummaryLocation: "http://data/summaries/2024/03/financial_summary.md",
			SummaryContent:  strPtr("# March\n\n**Revenue** up"),
			Income: &core.FinancialRef{Kind: core.IncomeStatement, Label: "Income Statement March 2024",
				PageLocation:  "http://data/html/income_statement/2024/03/page.html",
				TableLocation: "http://data/html/income_statement/2024/03/table.html"},
		},
		{
			Year: 2024, Month: 2, Label: "February 2024",
			SummaryLocation: "http://data/summaries/2024/02/financial_summary.md",
		},
		{
			Year: 2024, Month: 1, Label: "January 2024",
		},
	}
}

type testServer struct {
	srv       *Server
	ctrl      *viewer.Controller
	submitter *fakeSubmitter
}

func newTestServer(t *testing.T, b fakeBuilder, f fakeFetcher) *testServer {
	t.Helper()
	sub := &fakeSubmitter{status: legal.Success("s3://reports/summaries/2024/03/legal_details.md")}
	ctrl := viewer.NewController(viewer.Options{
		Builder:   b,
		Fetcher:   f,
		Submitter: sub,
		Logger:    testLogger(),
	})
	srv := NewServer(":0", Deps{Controller: ctrl, Logger: testLogger()})
	if srv.templates == nil {
		t.Fatal("templates failed to parse")
	}
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testServer{srv: srv, ctrl: ctrl, submitter: sub}
}

func (ts *testServer) reload(t *testing.T) {
	t.Helper()
	if err := ts.ctrl.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
}

func (ts *testServer) do(method, target string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, fakeBuilder{idx: sampleIndex()}, fakeFetcher{})

	rec := ts.do(http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestReadyWaitsForFirstIndex(t *testing.T) {
	ts := newTestServer(t, fakeBuilder{idx: sampleIndex()}, fakeFetcher{})

	if rec := ts.do(http.MethodGet, "/readyz", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("before reload status = %d, want 503", rec.Code)
	}
	ts.reload(t)
	rec := ts.do(http.MethodGet, "/readyz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("after reload status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"entries":3`) {
		t.Errorf("readiness body missing entry count: %s", rec.Body.String())
	}
}

func TestIndexSelectsNewestMonth(t *testing.T) {
	ts := newTestServer(t, fakeBuilder{idx: sampleIndex()}, fakeFetcher{})
	ts.reload(t)

	rec := ts.do(http.MethodGet, "/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"March 2024",
		"February 2024",
		"Income Statement March 2024",
		"<strong>Revenue</strong>",
		`hx-post="/ui/select?key=2024-2"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if snap := ts.ctrl.Snapshot(); !snap.IsActive(core.MonthKey{Year: 2024, Month: 3}) {
		t.Errorf("active = %v, want 2024-3", snap.ActiveKey)
	}
}

func TestIndexBeforeLoad(t *testing.T) {
	ts := newTestServer(t, fakeBuilder{idx: sampleIndex()}, fakeFetcher{})

	rec := ts.do(http.MethodGet, "/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Select a month") {
		t.Error("expected empty detail placeholder")
	}
}

func TestSelect(t *testing.T) {
	ts := newTestServer(t, fakeBuilder{idx: sampleIndex()}, fakeFetcher{body: "Feb"})

	t.Run("not ready", func(t *testing.T) {
		rec := ts.do(http.MethodPost, "/ui/select?key=2024-1", nil)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})

	ts.reload(t)

	tests := []struct {
		name   string
		method string
		target string
		want   int
	}{
		{"valid", http.MethodPost, "/ui/select?key=2024-1", http.StatusOK},
		{"unknown month", http.MethodPost, "/ui/select?key=2023-1", http.StatusNotFound},
		{"bad key", http.MethodPost, "/ui/select?key=march", http.StatusBadRequest},
		{"month out of range", http.MethodPost, "/ui/select?key=2024-13", http.StatusBadRequest},
		{"missing key", http.MethodPost, "/ui/select", http.StatusBadRequest},
		{"wrong method", http.MethodGet, "/ui/select?key=2024-1", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(tt.method, tt.target, nil)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}

	rec := ts.do(http.MethodPost, "/ui/select?key=2024-1", nil)
	body := rec.Body.String()
	if !strings.Contains(body, viewer.MsgNoStatements) {
		t.Error("expected no-statements placeholder")
	}
	if !strings.Contains(body, viewer.MsgNoSummary) {
		t.Error("expected no-summary placeholder")
	}
	if !strings.Contains(body, `hx-swap-oob="true"`) {
		t.Error("expected out-of-band month list")
	}
	if trig := rec.Header().Get("HX-Trigger"); !strings.Contains(trig, "month:selected") {
		t.Errorf("HX-Trigger = %q, want month:selected", trig)
	}
}

func TestSelectDefersSummaryFetch(t *testing.T) {
	ts := newTestServer(t, fakeBuilder{idx: sampleIndex()}, fakeFetcher{body: "Costs *down*"})
	ts.reload(t)

	rec := ts.do(http.MethodPost, "/ui/select?key=2024-2", nil)
	body := rec.Body.String()
	if !strings.Contains(body, viewer.MsgLoadingSummary) {
		t.Error("expected loading placeholder")
	}
	if !strings.Contains(body, `hx-get="/ui/summary?key=2024-2"`) {
		t.Error("expected deferred summary request")
	}

	rec = ts.do(http.MethodGet, "/ui/summary?key=2024-2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("summary status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "<em>down</em>") {
		t.Errorf("summary body = %q", rec.Body.String())
	}
}

func TestSummaryFetchFailure(t *testing.T) {
	ts := newTestServer(t, fakeBuilder{idx: sampleIndex()}, fakeFetcher{err: errors.New("404")})
	ts.reload(t)

	rec := ts.do(http.MethodGet, "/ui/summary?key=2024-2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), viewer.MsgSummaryFailed) {
		t.Errorf("body = %q, want failure message", rec.Body.String())
	}
}

func TestReloadFailureShowsError(t *testing.T) {
	ts := newTestServer(t, fakeBuilder{err: errors.New("listing unavailable")}, fakeFetcher{})

	rec := ts.do(http.MethodPost, "/ui/reload", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Could not load reports: listing unavailable") {
		t.Errorf("body missing error message: %s", rec.Body.String())
	}
	if trig := rec.Header().Get("HX-Trigger"); !strings.Contains(trig, "show-notification") {
		t.Errorf("HX-Trigger = %q, want notification", trig)
	}
}

func TestReloadSuccess(t *testing.T) {
	ts := newTestServer(t, fakeBuilder{idx: sampleIndex()}, fakeFetcher{})

	rec := ts.do(http.MethodPost, "/ui/reload", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "January 2024") {
		t.Error("expected refreshed month list")
	}
	if trig := rec.Header().Get("HX-Trigger"); !strings.Contains(trig, `"entries":3`) {
		t.Errorf("HX-Trigger = %q, want entry count", trig)
	}
}

func TestView(t *testing.T) {
	ts := newTestServer(t, fakeBuilder{idx: sampleIndex()}, fakeFetcher{})
	ts.reload(t)

	rec := ts.do(http.MethodPost, "/ui/view?name=legal", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `id="legal-form"`) {
		t.Error("expected legal form")
	}
	if got := ts.ctrl.Snapshot().View; got != viewer.ViewLegal {
		t.Errorf("view = %q, want legal", got)
	}

	if rec := ts.do(http.MethodPost, "/ui/view?name=settings", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown view status = %d, want 400", rec.Code)
	}
}

func TestLegalSubmission(t *testing.T) {
	ts := newTestServer(t, fakeBuilder{idx: sampleIndex()}, fakeFetcher{})

	form := "year=2024&month=3&active_litigation=2&closed_litigations=Case+A"
	rec := ts.do(http.MethodPost, "/ui/legal", strings.NewReader(form))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	want := core.LegalDetailsPayload{Year: 2024, Month: 3, ActiveLitigationCount: 2, ClosedLitigationsText: "Case A"}
	if ts.submitter.got != want {
		t.Errorf("payload = %+v, want %+v", ts.submitter.got, want)
	}
	if !strings.Contains(rec.Body.String(), "Saved legal details to s3://reports/summaries/2024/03/legal_details.md.") {
		t.Errorf("body = %q", rec.Body.String())
	}
	trig := rec.Header().Get("HX-Trigger")
	for _, event := range []string{"legal:saved", "form:reset", "show-notification"} {
		if !strings.Contains(trig, event) {
			t.Errorf("HX-Trigger = %q, want %s", trig, event)
		}
	}
}

func TestLegalSubmissionFailure(t *testing.T) {
	ts := newTestServer(t, fakeBuilder{idx: sampleIndex()}, fakeFetcher{})
	ts.submitter.status = legal.Failure("quota exceeded")

	rec := ts.do(http.MethodPost, "/ui/legal", strings.NewReader("year=2024&month=3&active_litigation=1"))
	if !strings.Contains(rec.Body.String(), "Could not save legal details: quota exceeded") {
		t.Errorf("body = %q", rec.Body.String())
	}
	if trig := rec.Header().Get("HX-Trigger"); strings.Contains(trig, "legal:saved") || strings.Contains(trig, "form:reset") {
		t.Errorf("HX-Trigger = %q, should not report a save or clear the form", trig)
	}
}

func TestMetrics(t *testing.T) {
	ts := newTestServer(t, fakeBuilder{idx: sampleIndex()}, fakeFetcher{})
	ts.reload(t)
	ts.do(http.MethodGet, "/healthz", nil)

	rec := ts.do(http.MethodGet, "/metrics", nil)
	body := rec.Body.String()
	for _, want := range []string{"http_requests_total", "month_index_entries 3", "rate_limit_clients"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t, fakeBuilder{}, fakeFetcher{})
	if rec := ts.do(http.MethodGet, "/nope", nil); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestAPIRouting(t *testing.T) {
	var hits []string
	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits = append(hits, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})
	ctrl := viewer.NewController(viewer.Options{Builder: fakeBuilder{}, Logger: testLogger()})
	srv := NewServer(":0", Deps{Controller: ctrl, LegalAPI: api, Logger: testLogger()})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodPost, "/api/legal-details", http.StatusNoContent},
		{http.MethodPost, "/api/legal-details/", http.StatusNoContent},
		{http.MethodOptions, "/api/other", http.StatusNoContent},
		{http.MethodPost, "/api/other", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != tt.want {
			t.Errorf("%s %s: status = %d, want %d", tt.method, tt.path, rec.Code, tt.want)
		}
	}
	if len(hits) != 3 {
		t.Errorf("legal handler hits = %v, want 3", hits)
	}
}

func TestTrustedProxiesKeyRateLimitByForwardedIP(t *testing.T) {
	tests := []struct {
		name    string
		proxies []string
		want    int
	}{
		{"untrusted peer", nil, 1},
		{"trusted peer", []string{"192.0.2.0/24"}, 2},
		{"invalid entry ignored", []string{"not-a-cidr"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(":0", Deps{
				Controller:     viewer.NewController(viewer.Options{Builder: fakeBuilder{idx: sampleIndex()}, Logger: testLogger()}),
				TrustedProxies: tt.proxies,
				Logger:         testLogger(),
			})
			t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

			for _, forwarded := range []string{"198.51.100.7", "198.51.100.8"} {
				req := httptest.NewRequest(http.MethodPost, "/healthz", nil)
				req.Header.Set("X-Forwarded-For", forwarded)
				srv.Handler.ServeHTTP(httptest.NewRecorder(), req)
			}

			if got := srv.rateLimiter.ActiveClients(); got != tt.want {
				t.Fatalf("ActiveClients() = %d, want %d", got, tt.want)
			}
		})
	}
}
