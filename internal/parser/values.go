package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"sjsage522/bidnoticeworker/helpers"
)

// Result is the outcome of parsing one field. OK is false when the value is
// absent; Err is set when a value was present but could not be parsed.
type Result[T any] struct {
	Value T
	OK    bool
	Err   error
}

// Ptr returns a pointer to the value, or nil when the result is not OK
func (r Result[T]) Ptr() *T {
	if !r.OK {
		return nil
	}
	v := r.Value
	return &v
}

func ok[T any](v T) Result[T] { return Result[T]{Value: v, OK: true} }

func absent[T any]() Result[T] { return Result[T]{} }

func invalid[T any](format string, args ...any) Result[T] {
	return Result[T]{Err: fmt.Errorf(format, args...)}
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ParseDateTime accepts YYYYMMDDHHmm (separators allowed, seconds ignored),
// YYYYMMDD and ISO-like YYYY-MM-DD[ HH:MM[:SS]] forms. Times are KST.
func ParseDateTime(s string) Result[time.Time] {
	s = strings.TrimSpace(s)
	if s == "" {
		return absent[time.Time]()
	}

	d := digitsOf(s)
	switch {
	case len(d) >= 12:
		return buildTime(s, d[0:4], d[4:6], d[6:8], d[8:10], d[10:12])
	case len(d) == 8:
		return buildTime(s, d[0:4], d[4:6], d[6:8], "00", "00")
	}
	return invalid[time.Time]("unrecognized datetime %q", s)
}

// ParseDate parses the date part only
func ParseDate(s string) Result[time.Time] {
	s = strings.TrimSpace(s)
	if s == "" {
		return absent[time.Time]()
	}

	d := digitsOf(s)
	if len(d) < 8 {
		return invalid[time.Time]("unrecognized date %q", s)
	}
	return buildTime(s, d[0:4], d[4:6], d[6:8], "00", "00")
}

func buildTime(src, y, mo, d, h, mi string) Result[time.Time] {
	year, _ := strconv.Atoi(y)
	month, _ := strconv.Atoi(mo)
	day, _ := strconv.Atoi(d)
	hour, _ := strconv.Atoi(h)
	minute, _ := strconv.Atoi(mi)

	t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, helpers.KST)
	// time.Date normalizes overflow, e.g. Feb 30 becomes Mar 2
	if t.Year() != year || int(t.Month()) != month || t.Day() != day || t.Hour() != hour || t.Minute() != minute {
		return invalid[time.Time]("out of range datetime %q", src)
	}
	return ok(t)
}

// ParseAmount strips every non-digit character and parses what remains
func ParseAmount(s string) Result[int64] {
	s = strings.TrimSpace(s)
	if s == "" {
		return absent[int64]()
	}

	d := digitsOf(s)
	if d == "" {
		return invalid[int64]("no digits in amount %q", s)
	}
	n, err := strconv.ParseInt(d, 10, 64)
	if err != nil {
		return invalid[int64]("amount %q: %v", s, err)
	}
	return ok(n)
}

// ParseRate parses a decimal percentage such as "87.745"
func ParseRate(s string) Result[float64] {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if s == "" {
		return absent[float64]()
	}

	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return invalid[float64]("rate %q: %v", s, err)
	}
	return ok(f)
}

// ParseYN normalizes a flag to "Y", "N" or nil
func ParseYN(s string) *string {
	switch strings.TrimSpace(s) {
	case "Y":
		y := "Y"
		return &y
	case "N":
		n := "N"
		return &n
	}
	return nil
}
