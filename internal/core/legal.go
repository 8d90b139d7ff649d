package core

import (
	"errors"
	"fmt"
	"strings"
)

const (
	MinActiveLitigation = 0
	MaxActiveLitigation = 10
)

var (
	ErrMonthRange  = errors.New("Month must be between 1 and 12.")
	ErrActiveRange = errors.New("Active litigation must be between 0 and 10.")
)

// LegalDetailsPayload is the body of a legal-details submission.
type LegalDetailsPayload struct {
	Year                  int    `json:"year"`
	Month                 int    `json:"month"`
	ActiveLitigationCount int    `json:"active_litigation"`
	ClosedLitigationsText string `json:"closed_litigations"`
}

func (p LegalDetailsPayload) Validate() error {
	if p.Month < 1 || p.Month > 12 {
		return ErrMonthRange
	}
	if p.ActiveLitigationCount < MinActiveLitigation || p.ActiveLitigationCount > MaxActiveLitigation {
		return ErrActiveRange
	}
	return nil
}

// Markdown renders the submission as the monthly legal_details.md document.
func (p LegalDetailsPayload) Markdown() string {
	closed := strings.TrimSpace(p.ClosedLitigationsText)
	if closed == "" {
		closed = "_No closed litigations provided._"
	}
	return fmt.Sprintf("# Legal Details for %d-%02d\n\n"+
		"- Active litigations: %d\n\n"+
		"## Closed Litigations\n"+
		"%s\n", p.Year, p.Month, p.ActiveLitigationCount, closed)
}
