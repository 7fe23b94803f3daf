package observability

import (
	"strings"
	"unicode"
)

const (
	maxFieldLength  = 256
	maxRouteLength  = 180
	maxMethodLength = 10
)

// sanitizeString strips control characters (except common whitespace) and caps
// the length so attacker-controlled values cannot break log lines.
func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = maxFieldLength
	}

	var b strings.Builder
	b.Grow(len(value))
	kept := 0
	for _, r := range value {
		switch {
		case r == '\n', r == '\r', r == '\t':
		case unicode.IsControl(r):
			continue
		}
		if kept >= limit {
			break
		}
		b.WriteRune(r)
		kept++
	}
	return b.String()
}

// SanitizeRoute normalises a route pattern for logging.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, maxRouteLength)
}

// SanitizeMethod normalises an HTTP method for logging.
func SanitizeMethod(method string) string {
	return sanitizeString(method, maxMethodLength)
}
