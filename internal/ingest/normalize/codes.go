package normalize

import (
	"net/url"
	"path"
	"strings"

	"golang.org/x/text/language"

	"github.com/lueurxax/book-harvester/internal/core/domain"
)

var languageSynonyms = map[string]string{
	"persian":   "fa",
	"farsi":     "fa",
	"فارسی":     "fa",
	"پارسی":     "fa",
	"english":   "en",
	"انگلیسی":   "en",
	"arabic":    "ar",
	"عربی":      "ar",
	"french":    "fr",
	"فرانسوی":   "fr",
	"german":    "de",
	"آلمانی":    "de",
	"turkish":   "tr",
	"ترکی":      "tr",
	"russian":   "ru",
	"روسی":      "ru",
	"spanish":   "es",
	"اسپانیایی": "es",
	"kurdish":   "ku",
	"کردی":      "ku",
	"urdu":      "ur",
	"اردو":      "ur",
}

// Language maps a language name or code to a two-letter ISO 639-1 code.
// Unrecognized values fall back to the default language.
func Language(raw string) string {
	return LanguageOr(raw, domain.DefaultLanguage)
}

// LanguageOr is Language with a caller-chosen fallback.
func LanguageOr(raw, fallback string) string {
	v := strings.ToLower(strings.TrimSpace(Text(raw)))
	if v == "" {
		return fallback
	}

	if code, ok := languageSynonyms[v]; ok {
		return code
	}

	// "fa-IR", "en_US" and "fas" carry a base language
	tag := strings.ReplaceAll(v, "_", "-")
	if base, err := language.ParseBase(strings.SplitN(tag, "-", 2)[0]); err == nil {
		if code := base.String(); len(code) == 2 {
			return code
		}
	}

	if len(v) == 2 && isLetters(v) {
		return v
	}

	return fallback
}

func isLetters(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 'a' || s[i] > 'z' {
			return false
		}
	}

	return true
}

// Formats is the closed set of book formats.
var Formats = []string{"pdf", "epub", "mobi", "djvu", "audio", "txt"}

var formatSynonyms = []struct {
	format string
	tokens []string
}{
	{format: "epub", tokens: []string{"epub"}},
	{format: "mobi", tokens: []string{"mobi", "azw3", "azw", "kindle"}},
	{format: "djvu", tokens: []string{"djvu", "djv"}},
	{format: "pdf", tokens: []string{"pdf", "پی دی اف"}},
	{format: "audio", tokens: []string{"audio", "mp3", "m4b", "m4a", "صوتی"}},
	{format: "txt", tokens: []string{"txt", "plain text", "متنی"}},
}

// Format maps a format label or file name to the closed format set.
func Format(raw string) string {
	v := strings.ToLower(Text(raw))
	if v == "" {
		return domain.DefaultFormat
	}

	for _, f := range formatSynonyms {
		for _, token := range f.tokens {
			if strings.Contains(v, token) {
				return f.format
			}
		}
	}

	return domain.DefaultFormat
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// ImageURL accepts absolute http(s) URLs whose path ends in an image extension.
func ImageURL(raw string) (string, bool) {
	u, ok := absoluteURL(raw)
	if !ok {
		return "", false
	}

	if !imageExtensions[strings.ToLower(path.Ext(u.Path))] {
		return "", false
	}

	return u.String(), true
}

// DownloadURL accepts absolute http(s) URLs.
func DownloadURL(raw string) (string, bool) {
	u, ok := absoluteURL(raw)
	if !ok {
		return "", false
	}

	return u.String(), true
}

func absoluteURL(raw string) (*url.URL, bool) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil, false
	}

	u, err := url.Parse(v)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil, false
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}

	return u, true
}

// ResolveURL resolves ref against base. Absolute refs are returned unchanged.
func ResolveURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if base == nil || ref == "" {
		return ref
	}

	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}

	return base.ResolveReference(u).String()
}
