package payload

import (
	"strconv"
	"strings"

	"github.com/lueurxax/book-harvester/internal/core/domain"
)

// Resolvable is the capability set extraction needs from a payload node.
type Resolvable interface {
	Key(name string) (Resolvable, bool)
	Index(i int) (Resolvable, bool)
	List() ([]Resolvable, bool)
	// Text returns scalar text; containers report false.
	Text() (string, bool)
	// Link returns the URL carried by the node.
	Link() (string, bool)
	// Locate resolves a location expression: a dotted path for JSON,
	// a CSS selector for HTML.
	Locate(location string) (Resolvable, bool)
}

// authorNameKeys are probed on structured author entries.
var authorNameKeys = []string{"name", "full_name", "fullName", "author_name", "authorName", "display_name"}

// urlFields are rendered from link attributes rather than text.
var urlFields = map[string]bool{
	domain.FieldImageURL:    true,
	domain.FieldDownloadURL: true,
}

// IsURLField reports whether field carries a URL.
func IsURLField(field string) bool {
	return urlFields[field]
}

// Walk resolves a dotted path such as "volumeInfo.authors.0" or "items[1].name".
// Numeric segments index lists, other segments index maps. Any miss returns false.
func Walk(root Resolvable, path string) (Resolvable, bool) {
	if root == nil {
		return nil, false
	}

	path = strings.TrimSpace(path)
	if path == "" || path == "." {
		return root, true
	}

	cur := root

	for _, seg := range splitPath(path) {
		next, ok := step(cur, seg)
		if !ok {
			return nil, false
		}

		cur = next
	}

	return cur, true
}

func step(cur Resolvable, seg string) (Resolvable, bool) {
	if i, err := strconv.Atoi(seg); err == nil {
		if next, ok := cur.Index(i); ok {
			return next, true
		}
	}

	return cur.Key(seg)
}

func splitPath(path string) []string {
	path = strings.NewReplacer("[", ".", "]", "").Replace(path)

	parts := strings.Split(path, ".")
	out := parts[:0]

	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}

	return out
}

// Resolve locates a field inside root and renders it as text.
// URL-bearing fields are read from link attributes, author lists are joined with ", ".
func Resolve(root Resolvable, location, field string) (string, bool) {
	if root == nil {
		return "", false
	}

	node, ok := root.Locate(location)
	if !ok {
		return "", false
	}

	return Render(node, field)
}

// Render turns a located node into the text of one field.
func Render(node Resolvable, field string) (string, bool) {
	if field == domain.FieldAuthor {
		return renderAuthor(node)
	}

	if IsURLField(field) {
		if s, ok := node.Link(); ok {
			return s, true
		}
	} else if s, ok := node.Text(); ok {
		return s, true
	}

	items, ok := node.List()
	if !ok {
		return "", false
	}

	for _, item := range items {
		if s, ok := Render(item, field); ok {
			return s, true
		}
	}

	return "", false
}

func renderAuthor(node Resolvable) (string, bool) {
	if items, ok := node.List(); ok && len(items) > 0 {
		return AuthorNames(items)
	}

	return authorName(node)
}

// AuthorNames joins the names of structured or plain author entries with ", ".
func AuthorNames(items []Resolvable) (string, bool) {
	names := make([]string, 0, len(items))

	for _, item := range items {
		if name, ok := authorName(item); ok {
			names = append(names, name)
		}
	}

	if len(names) == 0 {
		return "", false
	}

	return strings.Join(names, ", "), true
}

func authorName(node Resolvable) (string, bool) {
	if s, ok := node.Text(); ok {
		return s, true
	}

	for _, key := range authorNameKeys {
		if child, ok := node.Key(key); ok {
			if s, ok := child.Text(); ok {
				return s, true
			}
		}
	}

	first := childText(node, "firstname", "first_name", "firstName")
	last := childText(node, "lastname", "last_name", "lastName")

	name := strings.TrimSpace(first + " " + last)

	return name, name != ""
}

func childText(node Resolvable, keys ...string) string {
	for _, key := range keys {
		if child, ok := node.Key(key); ok {
			if s, ok := child.Text(); ok {
				return s
			}
		}
	}

	return ""
}
