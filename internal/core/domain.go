package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	IncomeStatement ReportKind = "income_statement"
	BalanceSheet    ReportKind = "balance_sheet"
)

type (
	// ReportKind names a financial statement family under html/<kind>/.
	ReportKind string

	// FinancialRef points at a captured statement. Page and table locations
	// follow the on-disk convention and are not checked for existence.
	FinancialRef struct {
		Kind          ReportKind `json:"kind"`
		Label         string     `json:"label"`
		PageLocation  string     `json:"page_location"`
		TableLocation string     `json:"table_location"`
	}

	// MonthKey identifies a month entry within an index.
	MonthKey struct {
		Year  int
		Month int
	}

	MonthEntry struct {
		Year            int           `json:"year"`
		Month           int           `json:"month"` // 1-12
		Label           string        `json:"label"`
		SummaryLocation string        `json:"summary_location,omitempty"`
		SummaryContent  *string       `json:"summary_content,omitempty"`
		Income          *FinancialRef `json:"income,omitempty"`
		Balance         *FinancialRef `json:"balance,omitempty"`
	}
)

var (
	ErrInvalidKey   = errors.New("invalid month key")
	ErrInvalidMonth = errors.New("invalid month")
)

// ReportKinds lists the statement kinds in resolution order.
var ReportKinds = []ReportKind{IncomeStatement, BalanceSheet}

func (k ReportKind) IsValid() bool {
	switch k {
	case IncomeStatement, BalanceSheet:
		return true
	default:
		return false
	}
}

// Title returns a human readable name, e.g. "Income Statement".
func (k ReportKind) Title() string {
	parts := strings.Split(string(k), "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

func (k MonthKey) String() string {
	return strconv.Itoa(k.Year) + "-" + strconv.Itoa(k.Month)
}

// ParseMonthKey parses the "{year}-{month}" form produced by MonthKey.String.
// Malformed input yields ErrInvalidKey; a month outside 1-12 yields
// ErrInvalidMonth.
func ParseMonthKey(s string) (MonthKey, error) {
	y, m, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return MonthKey{}, fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	year, err := strconv.Atoi(y)
	if err != nil {
		return MonthKey{}, fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	month, err := strconv.Atoi(m)
	if err != nil {
		return MonthKey{}, fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	if month < 1 || month > 12 {
		return MonthKey{}, fmt.Errorf("%w: %d in %q", ErrInvalidMonth, month, s)
	}
	return MonthKey{Year: year, Month: month}, nil
}

func (e MonthEntry) Key() MonthKey {
	return MonthKey{Year: e.Year, Month: e.Month}
}

// HasArtifacts reports whether at least one artifact resolved for the month.
func (e MonthEntry) HasArtifacts() bool {
	return e.SummaryLocation != "" || e.Income != nil || e.Balance != nil
}

// Statements returns the resolved financial refs, income first.
func (e MonthEntry) Statements() []FinancialRef {
	var refs []FinancialRef
	if e.Income != nil {
		refs = append(refs, *e.Income)
	}
	if e.Balance != nil {
		refs = append(refs, *e.Balance)
	}
	return refs
}
