// Package markdown converts the restricted markdown used by the monthly
// summaries into HTML. It is line oriented and single pass; anything it does
// not recognise becomes a paragraph.
//
// Supported blocks: ATX headings (# to ######), "- " list items, horizontal
// rules (--- or longer) and paragraphs. Inline: **bold**, *italic* and
// `code`. Source text is HTML-escaped before inline patterns are applied.
package markdown

import (
	"regexp"
	"strconv"
	"strings"
)

// EmptyPlaceholder is rendered when the input produces no blocks.
const EmptyPlaceholder = `<p class="placeholder">This summary is empty.</p>`

var (
	headingRe = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	ruleRe    = regexp.MustCompile(`^-{3,}$`)

	boldRe   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	italicRe = regexp.MustCompile(`\*(.+?)\*`)
	codeRe   = regexp.MustCompile("`(.+?)`")

	escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
)

// Render converts text to HTML. It never fails.
func Render(text string) string {
	var (
		out    strings.Builder
		inList bool
	)
	closeList := func() {
		if inList {
			out.WriteString("</ul>\n")
			inList = false
		}
	}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimRight(raw, " \t\r\f\v")

		switch {
		case line == "":
			closeList()

		case headingRe.MatchString(line):
			m := headingRe.FindStringSubmatch(line)
			closeList()
			level := strconv.Itoa(len(m[1]))
			out.WriteString("<h" + level + ">" + Inline(strings.TrimSpace(m[2])) + "</h" + level + ">\n")

		case strings.HasPrefix(line, "- "):
			if !inList {
				out.WriteString("<ul>\n")
				inList = true
			}
			out.WriteString("<li>" + Inline(line[2:]) + "</li>\n")

		case ruleRe.MatchString(line):
			closeList()
			out.WriteString("<hr/>\n")

		default:
			closeList()
			out.WriteString("<p>" + Inline(line) + "</p>\n")
		}
	}
	closeList()

	if out.Len() == 0 {
		return EmptyPlaceholder
	}
	return out.String()
}

// Inline escapes &, < and > and then applies bold, italic and code spans.
func Inline(s string) string {
	s = escaper.Replace(s)
	s = boldRe.ReplaceAllString(s, "<strong>$1</strong>")
	s = italicRe.ReplaceAllString(s, "<em>$1</em>")
	s = codeRe.ReplaceAllString(s, "<code>$1</code>")
	return s
}
