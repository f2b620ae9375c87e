package helpers

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// TimestampLayout is the layout used for scrape and log timestamps
const TimestampLayout = "2006-01-02 15:04:05"

// KST is the fixed Korea Standard Time zone
var KST = time.FixedZone("KST", 9*60*60)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	koreanDateRe = regexp.MustCompile(`(\d{4})\s*년\s*(\d{1,2})\s*월\s*(\d{1,2})\s*일`)
	ymdRe        = regexp.MustCompile(`(\d{4})[-./](\d{1,2})[-./](\d{1,2})`)
	mdyRe        = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})`)
	shortYmdRe   = regexp.MustCompile(`^(\d{2})[-.](\d{1,2})[-.](\d{1,2})$`)
)

// GetSplitPart returns the index-th part of target split by separate.
// A negative index counts from the end.
func GetSplitPart(target string, separate string, index int) (string, error) {
	parts := strings.Split(target, separate)
	if index < 0 {
		index += len(parts)
	}
	if index < 0 || index >= len(parts) {
		return "", fmt.Errorf("index out of range (%d parts)", len(parts))
	}
	return parts[index], nil
}

// CleanText collapses runs of whitespace (including newlines and nbsp) into a single space
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// FormatDate normalizes the date formats seen on listing pages to YYYY-MM-DD.
// Text that is not recognized is returned cleaned but otherwise unchanged.
func FormatDate(s string) string {
	s = CleanText(s)
	if s == "" {
		return ""
	}

	if m := koreanDateRe.FindStringSubmatch(s); m != nil {
		return ymd(m[1], m[2], m[3], s)
	}
	if m := ymdRe.FindStringSubmatch(s); m != nil {
		return ymd(m[1], m[2], m[3], s)
	}
	if m := mdyRe.FindStringSubmatch(s); m != nil {
		return ymd(m[3], m[1], m[2], s)
	}
	if m := shortYmdRe.FindStringSubmatch(s); m != nil {
		return ymd("20"+m[1], m[2], m[3], s)
	}
	return s
}

func ymd(y, m, d, fallback string) string {
	year, _ := strconv.Atoi(y)
	month, _ := strconv.Atoi(m)
	day, _ := strconv.Atoi(d)
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return fallback
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
}

// MakeAbsoluteURL resolves href against base. Script and fragment-only links
// cannot be resolved and yield an empty string.
func MakeAbsoluteURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if ref.IsAbs() {
		return ref.String()
	}

	baseURL, err := url.Parse(base)
	if err != nil || !baseURL.IsAbs() {
		return href
	}
	return baseURL.ResolveReference(ref).String()
}

// Now returns the current time in KST formatted with TimestampLayout
func Now() string {
	return time.Now().In(KST).Format(TimestampLayout)
}

// Truncate cuts s to at most n bytes and appends "...". The cut never splits
// a multibyte character.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
