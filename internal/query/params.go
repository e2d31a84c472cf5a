package query

import (
	"math"
	"strings"
)

const (
	DefaultPage  int64 = 1
	DefaultLimit int64 = 10
)

// parseLeadingInt reads an optionally signed run of decimal digits at the
// start of s, after leading whitespace. Trailing characters are ignored,
// so "3abc" and "2.5" parse as 3 and 2. ok is false when there are no digits.
func parseLeadingInt(s string) (n int64, ok bool) {
	s = strings.TrimLeft(s, " \t\n\r\v\f")
	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	var v int64
	for _, c := range []byte(s) {
		if c < '0' || c > '9' {
			break
		}
		ok = true
		d := int64(c - '0')
		if v > (math.MaxInt64-d)/10 {
			v = math.MaxInt64
			continue
		}
		v = v*10 + d
	}
	if neg {
		v = -v
	}
	return v, ok
}

// ParsePage returns the requested page, or 1 when the value is missing,
// not a number or below 1.
func ParsePage(s string) int64 {
	n, ok := parseLeadingInt(s)
	if !ok || n < 1 {
		return DefaultPage
	}
	return n
}

// ParseLimit returns the requested page size clamped to maxLimit. Missing,
// non-numeric and non-positive values give DefaultLimit.
func ParseLimit(s string, maxLimit int64) int64 {
	n, ok := parseLeadingInt(s)
	if !ok || n < 1 {
		n = DefaultLimit
	}
	if maxLimit > 0 && n > maxLimit {
		return maxLimit
	}
	return n
}

// Skip returns the number of documents before page. It never overflows.
func Skip(page, limit int64) int64 {
	if page <= 1 || limit <= 0 {
		return 0
	}
	if page-1 > math.MaxInt64/limit {
		return math.MaxInt64
	}
	return (page - 1) * limit
}

// TotalPages is ceil(total/limit).
func TotalPages(total, limit int64) int64 {
	if total <= 0 || limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
