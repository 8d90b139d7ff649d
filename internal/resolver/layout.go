package resolver

import (
	"strconv"
	"strings"

	"reportviewer/internal/core"
)

// Layout builds URLs for the fixed on-disk layout under a base URL:
//
//	<base>/summaries/<year>/<month>/<file>
//	<base>/html/<kind>/<year>/<month>/{meta.json,page.html,table.html}
type Layout struct {
	BaseURL string
}

func NewLayout(baseURL string) Layout {
	return Layout{BaseURL: strings.TrimRight(baseURL, "/")}
}

// SummariesURL is the listing of years.
func (l Layout) SummariesURL() string {
	return l.BaseURL + "/summaries/"
}

// SummaryYearURL is the listing of months for a year.
func (l Layout) SummaryYearURL(year int) string {
	return l.SummariesURL() + strconv.Itoa(year) + "/"
}

func (l Layout) SummaryURL(year int, monthDir, name string) string {
	return l.SummaryYearURL(year) + monthDir + "/" + name
}

// StatementsURL is the listing of years for a statement kind.
func (l Layout) StatementsURL(kind core.ReportKind) string {
	return l.BaseURL + "/html/" + string(kind) + "/"
}

func (l Layout) StatementYearURL(kind core.ReportKind, year int) string {
	return l.StatementsURL(kind) + strconv.Itoa(year) + "/"
}

func (l Layout) MetaURL(kind core.ReportKind, year int, monthDir string) string {
	return l.StatementURL(kind, year, monthDir, "meta.json")
}

func (l Layout) StatementURL(kind core.ReportKind, year int, monthDir, name string) string {
	return l.StatementYearURL(kind, year) + monthDir + "/" + name
}
