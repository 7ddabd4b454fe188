// Package fingerprint computes the content key used to deduplicate books across sources.
package fingerprint

import (
	"crypto/md5" //nolint:gosec // content key, not a security boundary
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/lueurxax/book-harvester/internal/core/domain"
)

const separator = "|"

// Compute returns the hex MD5 of "title|author|isbn|year" after case folding
// and whitespace collapsing. A zero year contributes an empty segment.
func Compute(title, author, isbn string, year int) string {
	yearText := ""
	if year > 0 {
		yearText = strconv.Itoa(year)
	}

	key := strings.Join([]string{
		canonical(title),
		canonical(author),
		strings.ToUpper(strings.TrimSpace(isbn)),
		yearText,
	}, separator)

	sum := md5.Sum([]byte(key)) //nolint:gosec // see import

	return hex.EncodeToString(sum[:])
}

// Of returns the fingerprint of a normalized record. Authors are ordered
// case-insensitively so listing order does not split one book in two.
func Of(rec domain.NormalizedRecord) string {
	return Compute(rec.Title, sortedAuthors(rec.Authors), rec.ISBN, rec.PublicationYear)
}

func sortedAuthors(authors []string) string {
	names := make([]string, 0, len(authors))
	for _, a := range authors {
		if c := canonical(a); c != "" {
			names = append(names, c)
		}
	}

	sort.Strings(names)

	return strings.Join(names, ", ")
}

func canonical(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
