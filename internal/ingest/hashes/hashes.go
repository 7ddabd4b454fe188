// Package hashes validates and normalizes content digests and magnet URIs.
//
// All functions are pure. A value is either returned in canonical form
// (lower-case hex, exact length) or rejected; truncated or malformed
// digests are never passed through.
package hashes

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/lueurxax/book-harvester/internal/core/domain"
)

// Kind names a digest type. Values match the canonical field names.
type Kind string

const (
	MD5    Kind = domain.FieldMD5
	SHA1   Kind = domain.FieldSHA1
	SHA256 Kind = domain.FieldSHA256
	CRC32  Kind = domain.FieldCRC32
	ED2K   Kind = domain.FieldED2K
	BTIH   Kind = domain.FieldBTIH
	Magnet Kind = domain.FieldMagnet
)

// Kinds lists every supported kind in extraction order.
var Kinds = []Kind{MD5, SHA1, SHA256, CRC32, ED2K, BTIH, Magnet}

var hexLengths = map[Kind]int{
	MD5:    32,
	ED2K:   32,
	SHA1:   40,
	BTIH:   40,
	SHA256: 64,
	CRC32:  8,
}

const magnetPrefix = "magnet:?xt="

var (
	nonHex      = regexp.MustCompile(`[^0-9a-f]`)
	btihPattern = regexp.MustCompile(`(?i)btih:([0-9a-f]{40})(?:[^0-9a-z]|$)`)
)

// Length returns the hex length of a fixed-format kind, or 0 for magnet and unknown kinds.
func Length(kind Kind) int {
	return hexLengths[kind]
}

// Validate normalizes raw as a digest of the given kind.
// It returns false when the value does not have the exact format.
func Validate(raw string, kind Kind) (string, bool) {
	if kind == Magnet {
		return ValidateMagnet(raw)
	}

	want, ok := hexLengths[kind]
	if !ok {
		return "", false
	}

	v := strings.ToLower(strings.TrimSpace(raw))
	v = stripLabel(v, kind)
	v = nonHex.ReplaceAllString(v, "")

	if len(v) != want {
		return "", false
	}

	return v, true
}

// stripLabel removes a leading "urn:<kind>:" or "<kind>:" label so its letters
// and digits are not mistaken for hex.
func stripLabel(v string, kind Kind) string {
	for _, prefix := range []string{"urn:" + string(kind) + ":", string(kind) + ":", string(kind) + "="} {
		if strings.HasPrefix(v, prefix) {
			return v[len(prefix):]
		}
	}

	return v
}

// ValidateMagnet accepts a magnet URI that carries a 40-hex BTIH.
func ValidateMagnet(raw string) (string, bool) {
	v := strings.TrimSpace(raw)
	if len(v) < len(magnetPrefix) || !strings.EqualFold(v[:len(magnetPrefix)], magnetPrefix) {
		return "", false
	}

	if _, ok := ExtractBTIH(v); !ok {
		return "", false
	}

	return v, true
}

// ExtractBTIH returns the lower-case info hash embedded in a magnet URI.
func ExtractBTIH(magnet string) (string, bool) {
	m := btihPattern.FindStringSubmatch(magnet)
	if m == nil {
		return "", false
	}

	return strings.ToLower(m[1]), true
}

// ReconstructMagnet builds a magnet URI from a validated BTIH.
// The title, when present, becomes the display name.
func ReconstructMagnet(btih, title string) string {
	magnet := magnetPrefix + "urn:btih:" + btih

	if title = strings.TrimSpace(title); title != "" {
		magnet += "&dn=" + url.QueryEscape(title)
	}

	return magnet
}
