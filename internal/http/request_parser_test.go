package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"reportviewer/internal/core"
	"reportviewer/internal/viewer"
)

func TestParseMonthKeyParam(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    core.MonthKey
		wantErr bool
	}{
		{"valid", "key=2024-3", core.MonthKey{Year: 2024, Month: 3}, false},
		{"padded", "key=2024-03", core.MonthKey{Year: 2024, Month: 3}, false},
		{"whitespace", "key=+2024-3+", core.MonthKey{Year: 2024, Month: 3}, false},
		{"missing", "", core.MonthKey{}, true},
		{"no separator", "key=202403", core.MonthKey{}, true},
		{"letters", "key=2024-mar", core.MonthKey{}, true},
		{"month out of range", "key=2024-13", core.MonthKey{}, true},
		{"month zero", "key=2024-0", core.MonthKey{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, _ := url.ParseQuery(tt.query)
			got, err := ParseMonthKeyParam(q)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseViewParam(t *testing.T) {
	if v, err := ParseViewParam(url.Values{"name": {"legal"}}); err != nil || v != viewer.ViewLegal {
		t.Errorf("legal: got %q, %v", v, err)
	}
	if _, err := ParseViewParam(url.Values{}); !errors.Is(err, errMissingParam) {
		t.Errorf("missing: err = %v, want errMissingParam", err)
	}
	if _, err := ParseViewParam(url.Values{"name": {"admin"}}); !errors.Is(err, viewer.ErrUnknownView) {
		t.Errorf("unknown: err = %v, want ErrUnknownView", err)
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  plain  ", "plain"},
		{"line1\nline2", "line1\nline2"},
		{"tab\there", "tab\there"},
		{"bell\x07", "bell"},
		{"nul\x00byte", "nulbyte"},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.in); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseLegalForm(t *testing.T) {
	body := "year=2024&month=+3+&active_litigation=2&closed_litigations=Case+A%0ACase+B%07&extra=x"
	req := httptest.NewRequest(http.MethodPost, "/ui/legal", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	form, err := ParseLegalForm(httptest.NewRecorder(), req)
	if err != nil {
		t.Fatalf("ParseLegalForm() error = %v", err)
	}
	if form.Get("month") != "3" {
		t.Errorf("month = %q, want 3", form.Get("month"))
	}
	if form.Get("closed_litigations") != "Case A\nCase B" {
		t.Errorf("closed_litigations = %q", form.Get("closed_litigations"))
	}
	if form.Has("extra") {
		t.Error("unexpected field carried over")
	}
}

func TestParseLegalFormTooLarge(t *testing.T) {
	body := "closed_litigations=" + strings.Repeat("a", maxFormBytes+1)
	req := httptest.NewRequest(http.MethodPost, "/ui/legal", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if _, err := ParseLegalForm(httptest.NewRecorder(), req); err == nil {
		t.Error("expected error for oversized body")
	}
}

func TestRequireMethod(t *testing.T) {
	get := httptest.NewRequest(http.MethodGet, "/", nil)
	if RequireGET(get) != nil {
		t.Error("GET should pass RequireGET")
	}
	resp := RequirePOST(get)
	if resp == nil {
		t.Fatal("GET should fail RequirePOST")
	}
	rec := httptest.NewRecorder()
	resp.Write(rec)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
	if rec.Header().Get("Allow") != http.MethodPost {
		t.Errorf("Allow = %q", rec.Header().Get("Allow"))
	}
}
