// Package htmlutils provides HTML processing utilities for scraped record text.
//
// The package handles:
//   - Markup removal with the x/net/html tokenizer
//   - HTML entity decoding
//   - Whitespace collapsing
package htmlutils

import (
	"html"
	"regexp"
	"strings"

	xhtml "golang.org/x/net/html"
)

var tagRegex = regexp.MustCompile(`<(/?)([a-zA-Z0-9-]+)([^>]*)>`)

// skippedElements have their text content dropped entirely.
var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
}

// blockElements force a space so adjacent blocks do not glue words together.
var blockElements = map[string]bool{
	"br": true, "p": true, "div": true, "li": true, "tr": true, "td": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// StripTags removes all markup, decodes entities and collapses whitespace.
func StripTags(text string) string {
	if !strings.ContainsAny(text, "<&") {
		return CollapseWhitespace(text)
	}

	if !strings.Contains(text, "<") {
		return CollapseWhitespace(html.UnescapeString(text))
	}

	var sb strings.Builder

	z := xhtml.NewTokenizer(strings.NewReader(text))
	skipDepth := 0

	for {
		switch z.Next() {
		case xhtml.ErrorToken:
			return CollapseWhitespace(sb.String())
		case xhtml.TextToken:
			if skipDepth == 0 {
				sb.Write(z.Text())
			}
		case xhtml.StartTagToken:
			name, _ := z.TagName()
			tag := string(name)

			if skippedElements[tag] {
				skipDepth++
			}

			if blockElements[tag] {
				sb.WriteByte(' ')
			}
		case xhtml.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)

			if skippedElements[tag] && skipDepth > 0 {
				skipDepth--
			}

			if blockElements[tag] {
				sb.WriteByte(' ')
			}
		case xhtml.SelfClosingTagToken:
			name, _ := z.TagName()
			if blockElements[string(name)] {
				sb.WriteByte(' ')
			}
		case xhtml.CommentToken, xhtml.DoctypeToken:
		}
	}
}

// StripHTMLTags removes tag-like fragments with a regular expression.
// It is used on short values where a tokenizer pass would be overkill.
func StripHTMLTags(text string) string {
	result := tagRegex.ReplaceAllString(text, "")
	result = html.UnescapeString(result)

	return strings.TrimSpace(result)
}

// CollapseWhitespace replaces runs of whitespace with a single space and trims.
func CollapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// ContainsMarkup reports whether text looks like it carries HTML tags.
func ContainsMarkup(text string) bool {
	return tagRegex.MatchString(text)
}
