package slots

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// ErrUnparseable is returned when a requested time matches no accepted layout.
var ErrUnparseable = errors.New("slots: unrecognised time")

// localLayouts are wall-clock layouts interpreted in the display zone.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseRequested parses an absolute RFC3339 instant, or a wall-clock time
// without offset interpreted in loc. The result is in UTC.
func ParseRequested(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrUnparseable)
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrUnparseable, value)
}

// Slugify lowercases s and joins its alphanumeric runs with "-".
func Slugify(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}
