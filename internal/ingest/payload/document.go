package payload

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// linkAttrs are probed in order when a node carries a URL.
var linkAttrs = []string{"src", "data-src", "data-original", "data-lazy-src", "href", "content"}

// Document is a parsed HTML page or a selection inside one.
type Document struct {
	sel  *goquery.Selection
	base *url.URL
	raw  []byte
}

// ParseHTML parses an HTML page. base is used to resolve relative links and may be nil.
func ParseHTML(r io.Reader, base *url.URL) (*Document, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read html: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	return &Document{sel: doc.Selection, base: base, raw: raw}, nil
}

func (d *Document) wrap(sel *goquery.Selection) *Document {
	return &Document{sel: sel, base: d.base, raw: d.raw}
}

// BaseURL returns the page URL the document was fetched from.
func (d *Document) BaseURL() *url.URL {
	return d.base
}

// Raw returns the bytes of the whole page.
func (d *Document) Raw() []byte {
	return d.raw
}

// Len returns the number of nodes in the selection.
func (d *Document) Len() int {
	return d.sel.Length()
}

// Find returns the matches of selector below the selection.
func (d *Document) Find(selector string) *Document {
	return d.wrap(d.sel.Find(selector))
}

// Items splits the matches of selector into one document per node.
func (d *Document) Items(selector string) []*Document {
	var out []*Document

	d.sel.Find(selector).Each(func(_ int, s *goquery.Selection) {
		out = append(out, d.wrap(s))
	})

	return out
}

// Attr returns the trimmed attribute of the first node.
func (d *Document) Attr(name string) (string, bool) {
	v, ok := d.sel.First().Attr(name)
	v = strings.TrimSpace(v)

	return v, ok && v != ""
}

// Key selects descendants matching a CSS selector.
func (d *Document) Key(selector string) (Resolvable, bool) {
	found := d.sel.Find(selector)
	if found.Length() == 0 {
		return nil, false
	}

	return d.wrap(found), true
}

// Index returns the i-th node of the selection.
func (d *Document) Index(i int) (Resolvable, bool) {
	if i < 0 || i >= d.sel.Length() {
		return nil, false
	}

	return d.wrap(d.sel.Eq(i)), true
}

// List returns every node of the selection.
func (d *Document) List() ([]Resolvable, bool) {
	n := d.sel.Length()
	if n == 0 {
		return nil, false
	}

	out := make([]Resolvable, 0, n)

	d.sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, d.wrap(s))
	})

	return out, true
}

// Text returns the text of the first node.
func (d *Document) Text() (string, bool) {
	first := d.sel.First()

	text := strings.TrimSpace(first.Text())
	if text == "" {
		if content, ok := first.Attr("content"); ok {
			text = strings.TrimSpace(content)
		}
	}

	return text, text != ""
}

// Link returns the src, data-src or href of the first node, falling back to a
// nested img and then a nested a. Relative links are resolved against the page URL.
func (d *Document) Link() (string, bool) {
	first := d.sel.First()

	candidates := []*goquery.Selection{first, first.Find("img").First(), first.Find("a").First()}

	for _, node := range candidates {
		if node.Length() == 0 {
			continue
		}

		for _, attr := range linkAttrs {
			if v, ok := node.Attr(attr); ok && strings.TrimSpace(v) != "" {
				return d.resolve(v), true
			}
		}
	}

	return "", false
}

func (d *Document) resolve(ref string) string {
	ref = strings.TrimSpace(ref)
	if d.base == nil {
		return ref
	}

	u, err := url.Parse(ref)
	if err != nil || u.IsAbs() {
		return ref
	}

	return d.base.ResolveReference(u).String()
}

// Locate selects by CSS selector. A trailing "@attr" reads that attribute instead
// of the node text, e.g. "a.download@href".
func (d *Document) Locate(location string) (Resolvable, bool) {
	location = strings.TrimSpace(location)
	if location == "" {
		return d, d.sel.Length() > 0
	}

	selector, attr := splitAttr(location)

	var found *goquery.Selection
	if selector == "" {
		found = d.sel
	} else {
		found = d.sel.Find(selector)
	}

	if found.Length() == 0 {
		return nil, false
	}

	if attr == "" {
		return d.wrap(found), true
	}

	v, ok := found.First().Attr(attr)
	if !ok || strings.TrimSpace(v) == "" {
		return nil, false
	}

	if attr == "href" || attr == "src" || strings.HasPrefix(attr, "data-") {
		v = d.resolve(v)
	}

	return String(v), true
}

func splitAttr(location string) (string, string) {
	i := strings.LastIndex(location, "@")
	if i < 0 || strings.ContainsAny(location[i+1:], " []=>") {
		return location, ""
	}

	return strings.TrimSpace(location[:i]), strings.TrimSpace(location[i+1:])
}

// HTML returns the outer HTML of the selection.
func (d *Document) HTML() string {
	html, err := goquery.OuterHtml(d.sel.First())
	if err != nil {
		return ""
	}

	return html
}
