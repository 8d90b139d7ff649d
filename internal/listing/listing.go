// Package listing turns server-rendered directory listings into sets of
// numeric child names. The listing is the only manifest of years and months.
package listing

import (
	"bytes"
	"context"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Getter is the read side of fetch.Client.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Set holds the numeric names found in a listing.
type Set map[int]struct{}

func (s Set) Has(n int) bool {
	_, ok := s[n]
	return ok
}

// Union adds every member of other to s.
func (s Set) Union(other Set) {
	for n := range other {
		s[n] = struct{}{}
	}
}

// Descending returns the members newest first.
func (s Set) Descending() []int {
	out := make([]int, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}

type Reader struct {
	getter Getter
}

func NewReader(g Getter) *Reader {
	return &Reader{getter: g}
}

// Read fetches url and returns the numeric entries of the listing. Fetch
// failures are returned as is; unusable links are skipped.
func (r *Reader) Read(ctx context.Context, url string) (Set, error) {
	body, err := r.getter.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	return Parse(bytes.NewReader(body)), nil
}

// Parse extracts numeric names from the href of every anchor in an HTML
// document. Malformed markup ends parsing early without error.
func Parse(body io.Reader) Set {
	out := make(Set)
	z := html.NewTokenizer(body)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return out
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "a" || !hasAttr {
				continue
			}
			for {
				key, val, more := z.TagAttr()
				if string(key) == "href" {
					if n, ok := numericName(string(val)); ok {
						out[n] = struct{}{}
					}
				}
				if !more {
					break
				}
			}
		}
	}
}

// numericName reduces an href to its last path segment and accepts it when
// it is made only of digits.
func numericName(href string) (int, bool) {
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	href = strings.TrimSuffix(strings.TrimSpace(href), "/")
	if href == "" {
		return 0, false
	}
	name := path.Base(href)
	if name == "" || name == "." || name == ".." || name == "/" {
		return 0, false
	}
	for _, r := range name {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(name)
	if err != nil {
		return 0, false
	}
	return n, true
}
