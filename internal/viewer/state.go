package viewer

import (
	"errors"
	"html/template"
	"time"

	"reportviewer/internal/core"
	"reportviewer/internal/legal"
)

// State is the lifecycle of the month index.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateError   State = "error"
)

// View is the panel shown by the page.
type View string

const (
	ViewReports View = "reports"
	ViewLegal   View = "legal"
)

// ParseView accepts "reports" or "legal".
func ParseView(s string) (View, error) {
	switch View(s) {
	case ViewReports, ViewLegal:
		return View(s), nil
	default:
		return "", ErrUnknownView
	}
}

// SummaryState describes what the summary panel shows for a month.
type SummaryState string

const (
	SummaryNotFound SummaryState = "not_found"
	SummaryLoading  SummaryState = "loading"
	SummaryLoaded   SummaryState = "loaded"
	SummaryFailed   SummaryState = "failed"
)

// Placeholder texts shown in place of content.
const (
	MsgNoSummary      = "No summary found for this month."
	MsgLoadingSummary = "Loading summary..."
	MsgSummaryFailed  = "Could not load the summary."
	MsgNoStatements   = "No financial statements available."
)

var (
	ErrUnknownMonth = errors.New("unknown month")
	ErrUnknownView  = errors.New("unknown view")
	ErrNotReady     = errors.New("month index not loaded")
	// ErrStaleScan is returned by Reload when a newer reload superseded it.
	ErrStaleScan = errors.New("scan superseded by a newer reload")
)

// SummaryView is the summary panel for one month.
type SummaryView struct {
	State    SummaryState
	Location string
	HTML     template.HTML
	Message  string
}

// Selection is everything the page needs after a month is chosen.
type Selection struct {
	Entry             core.MonthEntry
	Statements        []core.FinancialRef
	StatementsMessage string
	Summary           SummaryView
}

// Snapshot is a copy of the controller state safe to read without locks.
type Snapshot struct {
	State       State
	Error       string
	Index       core.MonthIndex
	ActiveKey   *core.MonthKey
	View        View
	LegalStatus legal.Status
	Generation  uint64
	LastScan    time.Time
}

// Active returns the active entry, if any.
func (s Snapshot) Active() (core.MonthEntry, bool) {
	if s.ActiveKey == nil {
		return core.MonthEntry{}, false
	}
	if i := s.Index.Find(*s.ActiveKey); i >= 0 {
		return s.Index[i], true
	}
	return core.MonthEntry{}, false
}

// IsActive reports whether key is the active month.
func (s Snapshot) IsActive(key core.MonthKey) bool {
	return s.ActiveKey != nil && *s.ActiveKey == key
}
