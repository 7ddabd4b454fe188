// Package normalize turns raw extracted values into typed, bounded book fields.
//
// Every function is total: bad input yields an absent result, never an error
// and never a clamped or partially repaired value.
package normalize

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/lueurxax/book-harvester/internal/platform/htmlutils"
)

// Field bounds in characters.
const (
	MinTitleLen       = 2
	MaxTitleLen       = 500
	MaxDescriptionLen = 5000
	MaxNameLen        = 200
	MinAuthorLen      = 2
)

var (
	// trailingTag matches one bracketed release tag at the end, e.g. "[PDF]" or "(download)".
	trailingTag = regexp.MustCompile(`(?i)\s*[\[(](?:pdf|epub|mobi|djvu|txt|audio|ebook|e-book|download|free download|free|full|دانلود|رایگان|کتاب صوتی)[\])]\s*$`)

	// leadingBranding matches download-site prefixes such as "دانلود کتاب".
	leadingBranding = regexp.MustCompile(`(?i)^\s*(?:دانلود\s+(?:رایگان\s+)?(?:کتاب\s+)?|free\s+download\s+(?:of\s+)?|download\s+(?:free\s+)?(?:ebook\s+|book\s+)?)`)

	// trailingBranding matches suffixes such as "PDF download" or "| SiteName".
	trailingBranding = regexp.MustCompile(`(?i)(?:\s+(?:pdf|epub)(?:\s+(?:download|free))*|\s+(?:free\s+)?download|\s+دانلود(?:\s+رایگان)?|\s+\|\s+[^|]{1,60})\s*$`)
)

// Text strips markup, normalizes Unicode and collapses whitespace.
func Text(raw string) string {
	if raw == "" {
		return ""
	}

	s := htmlutils.StripTags(raw)
	s = norm.NFC.String(s)
	s = strings.Map(dropControl, s)

	return htmlutils.CollapseWhitespace(s)
}

func dropControl(r rune) rune {
	switch {
	case r == '\u200c':
		// zero-width non-joiner is meaningful in Persian
		return r
	case r == '\t' || r == '\n' || r == '\r':
		return ' '
	case r < 0x20, r == 0x7f, r == '\u200b', r == '\ufeff':
		return -1
	default:
		return r
	}
}

// StripBoilerplate removes download-site branding and release tags around a value.
func StripBoilerplate(s string) string {
	for {
		prev := s
		s = trailingTag.ReplaceAllString(s, "")
		s = trailingBranding.ReplaceAllString(s, "")
		s = leadingBranding.ReplaceAllString(s, "")
		s = strings.TrimSpace(strings.Trim(s, "-–|:"))

		if s == prev {
			return s
		}
	}
}

// Title cleans a title. It returns false when fewer than two characters remain.
func Title(raw string) (string, bool) {
	s := StripBoilerplate(Text(raw))
	s = truncate(s, MaxTitleLen)

	if utf8.RuneCountInString(s) < MinTitleLen {
		return "", false
	}

	return s, true
}

// Description cleans a long text field.
func Description(raw string) string {
	return truncate(Text(raw), MaxDescriptionLen)
}

// Name cleans a short label such as a category or publisher.
func Name(raw string) string {
	s := StripBoilerplate(Text(raw))
	if utf8.RuneCountInString(s) < MinAuthorLen {
		return ""
	}

	return truncate(s, MaxNameLen)
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}

	runes := []rune(s)

	return strings.TrimSpace(string(runes[:limit]))
}

var authorSeparators = regexp.MustCompile(`\s*(?:,|،|;|؛|/|&|\band\b|\s+و\s+)\s*`)

// Authors splits a raw author value into cleaned, case-insensitively unique names.
func Authors(raw string) []string {
	return MergeAuthors(nil, authorSeparators.Split(Text(raw), -1))
}

// MergeAuthors appends cleaned names from incoming that are not yet in existing.
// Matching ignores case and surrounding whitespace; names shorter than two characters are dropped.
func MergeAuthors(existing, incoming []string) []string {
	fold := cases.Fold()
	seen := make(map[string]struct{}, len(existing)+len(incoming))

	out := make([]string, 0, len(existing)+len(incoming))

	for _, name := range existing {
		key := fold.String(strings.TrimSpace(name))
		seen[key] = struct{}{}

		out = append(out, name)
	}

	for _, name := range incoming {
		name = truncate(htmlutils.CollapseWhitespace(name), MaxNameLen)
		if utf8.RuneCountInString(name) < MinAuthorLen {
			continue
		}

		key := fold.String(name)
		if _, ok := seen[key]; ok {
			continue
		}

		seen[key] = struct{}{}

		out = append(out, name)
	}

	if len(out) == 0 {
		return nil
	}

	return out
}

// NewAuthors returns the names from incoming that existing does not already contain.
func NewAuthors(existing, incoming []string) []string {
	merged := MergeAuthors(existing, incoming)
	if len(merged) <= len(existing) {
		return nil
	}

	return merged[len(existing):]
}
