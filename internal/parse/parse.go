package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire format of registration and allocation dates.
const DateLayout = "2006-01-02"

var spaceRe = regexp.MustCompile(`[\s\p{Zs}]+`)

// ID parses a positive numeric identifier from a path or query value.
func ID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

// Date parses a calendar date. Full RFC 3339 timestamps are accepted and
// truncated to their date. The result is midnight UTC.
func Date(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		ts, tsErr := time.Parse(time.RFC3339, s)
		if tsErr != nil {
			return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", raw)
		}
		t = ts
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

// RoomNumber trims a room number and collapses inner whitespace, including
// full-width spaces, to a single space.
func RoomNumber(raw string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(raw, " "))
}
