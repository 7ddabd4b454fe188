package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/araddon/dateparse"
)

// Numeric bounds.
const (
	MinYear        = 1000
	YearLookahead  = 5
	MinPages       = 1
	MaxPages       = 50000
	MinFileSize    = int64(1) << 10
	MaxFileSize    = int64(10) << 30
	isbn10Len      = 10
	isbn13Len      = 13
	maxNumberDigit = 18
)

// now is replaced in tests.
var now = time.Now

var (
	digitRun  = regexp.MustCompile(`\d+`)
	sizeValue = regexp.MustCompile(`(\d+(?:[.,]\d+)*)\s*([^\d\s.,]*)`)
	thousands = regexp.MustCompile(`^\d{1,3}(?:,\d{3})+(?:\.\d+)?$`)
	isbnLabel = regexp.MustCompile(`(?i)isbn(?:-?1[03])?\s*[:：]?\s*`)
	isbnSplit = regexp.MustCompile(`[,;/|،]|\s{2,}`)
	isbnChars = regexp.MustCompile(`[^0-9xX]`)
)

// eastern maps Persian and Arabic-Indic digits to ASCII.
var eastern = strings.NewReplacer(
	"۰", "0", "۱", "1", "۲", "2", "۳", "3", "۴", "4",
	"۵", "5", "۶", "6", "۷", "7", "۸", "8", "۹", "9",
	"٠", "0", "١", "1", "٢", "2", "٣", "3", "٤", "4",
	"٥", "5", "٦", "6", "٧", "7", "٨", "8", "٩", "9",
	"٫", ".", "٬", ",",
)

// ASCIIDigits rewrites Persian and Arabic-Indic digits as ASCII digits.
func ASCIIDigits(s string) string {
	return eastern.Replace(s)
}

// FirstInt parses the first run of digits in s.
func FirstInt(s string) (int64, bool) {
	run := digitRun.FindString(ASCIIDigits(s))
	if run == "" || len(run) > maxNumberDigit {
		return 0, false
	}

	n, err := strconv.ParseInt(run, 10, 64)
	if err != nil {
		return 0, false
	}

	return n, true
}

// Year extracts a publication year in [1000, current year + 5].
// Textual dates whose first digit run is not a year go through dateparse.
func Year(raw string) (int, bool) {
	maxYear := now().Year() + YearLookahead

	if n, ok := FirstInt(raw); ok && n >= MinYear && n <= int64(maxYear) {
		return int(n), true
	}

	text := strings.TrimSpace(ASCIIDigits(raw))
	if text == "" || isDigits(text) {
		return 0, false
	}

	t, err := dateparse.ParseAny(text)
	if err != nil {
		return 0, false
	}

	if y := t.Year(); y >= MinYear && y <= maxYear {
		return y, true
	}

	return 0, false
}

// Pages extracts a page count in [1, 50000].
func Pages(raw string) (int, bool) {
	n, ok := FirstInt(raw)
	if !ok || n < MinPages || n > MaxPages {
		return 0, false
	}

	return int(n), true
}

var sizeUnits = []struct {
	suffixes   []string
	multiplier float64
}{
	{suffixes: []string{"gb", "gib", "g", "گیگابایت", "گیگ"}, multiplier: 1 << 30},
	{suffixes: []string{"mb", "mib", "m", "مگابایت", "مگ"}, multiplier: 1 << 20},
	{suffixes: []string{"kb", "kib", "k", "کیلوبایت", "کیلو"}, multiplier: 1 << 10},
	{suffixes: []string{"b", "byte", "bytes", "بایت", ""}, multiplier: 1},
}

// FileSize converts a size such as "2.5 MB" or "۳ مگابایت" to bytes.
// Sizes outside [1KB, 10GB] are rejected.
func FileSize(raw string) (int64, bool) {
	m := sizeValue.FindStringSubmatch(strings.ToLower(ASCIIDigits(raw)))
	if m == nil {
		return 0, false
	}

	value, err := strconv.ParseFloat(sizeNumber(m[1]), 64)
	if err != nil {
		return 0, false
	}

	multiplier, ok := unitMultiplier(strings.TrimRightFunc(m[2], unicode.IsPunct))
	if !ok {
		return 0, false
	}

	size := value * multiplier
	if math.IsNaN(size) || size < float64(MinFileSize) || size > float64(MaxFileSize) {
		return 0, false
	}

	return int64(size), true
}

// sizeNumber reads "1,536" as a grouped integer and "1,5" as a decimal comma.
// Anything else with a comma is left for ParseFloat to reject.
func sizeNumber(s string) string {
	if thousands.MatchString(s) {
		return strings.ReplaceAll(s, ",", "")
	}

	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		return strings.Replace(s, ",", ".", 1)
	}

	return s
}

func unitMultiplier(unit string) (float64, bool) {
	for _, u := range sizeUnits {
		for _, s := range u.suffixes {
			if unit == s {
				return u.multiplier, true
			}
		}
	}

	return 0, false
}

// ISBN returns the first 10 or 13 character ISBN found in raw.
// Check digits are not verified.
func ISBN(raw string) (string, bool) {
	s := isbnLabel.ReplaceAllString(ASCIIDigits(raw), " ")

	for _, part := range isbnSplit.Split(s, -1) {
		v := strings.ToUpper(isbnChars.ReplaceAllString(part, ""))
		if validISBNShape(v) {
			return v, true
		}
	}

	return "", false
}

func validISBNShape(v string) bool {
	switch len(v) {
	case isbn10Len:
		return isDigits(v[:9]) && (isDigits(v[9:]) || v[9] == 'X')
	case isbn13Len:
		return isDigits(v)
	default:
		return false
	}
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}

	return s != ""
}
