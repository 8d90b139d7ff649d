package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"reportviewer/internal/core"
	"reportviewer/internal/legal"
	"reportviewer/internal/viewer"
)

const maxFormBytes = 64 << 10

var errMissingParam = errors.New("missing parameter")

// ParseMonthKeyParam reads the "key" query parameter ("{year}-{month}").
func ParseMonthKeyParam(query url.Values) (core.MonthKey, error) {
	raw := strings.TrimSpace(query.Get("key"))
	if raw == "" {
		return core.MonthKey{}, fmt.Errorf("%w: key", errMissingParam)
	}
	return core.ParseMonthKey(raw)
}

// ParseViewParam reads the "name" query parameter.
func ParseViewParam(query url.Values) (viewer.View, error) {
	raw := strings.TrimSpace(query.Get("name"))
	if raw == "" {
		return "", fmt.Errorf("%w: name", errMissingParam)
	}
	return viewer.ParseView(raw)
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

// ParseLegalForm reads and sanitizes the legal-details form fields.
func ParseLegalForm(w http.ResponseWriter, r *http.Request) (url.Values, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	form := url.Values{}
	for _, field := range []string{legal.FieldYear, legal.FieldMonth, legal.FieldActiveLitigation, legal.FieldClosedLitigations} {
		form.Set(field, sanitizeInput(r.PostForm.Get(field)))
	}
	return form, nil
}

// RequireMethod returns a 405 response builder unless r uses one of methods.
func RequireMethod(r *http.Request, methods ...string) *HTMXResponseBuilder {
	for _, m := range methods {
		if r.Method == m {
			return nil
		}
	}
	return MethodNotAllowedError(strings.Join(methods, ", "))
}

func RequirePOST(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodPost)
}

func RequireGET(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodGet, http.MethodHead)
}
