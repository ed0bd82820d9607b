package dbx

import (
	"fmt"
	"time"
)

// TimeLayout is the canonical timestamp format stored in SQLite columns.
// It matches the output of CURRENT_TIMESTAMP, so values written from Go
// and values generated by the database compare correctly as text.
const TimeLayout = "2006-01-02 15:04:05"

// FormatTime renders t in UTC using TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a timestamp stored by FormatTime or generated by
// CURRENT_TIMESTAMP. Fractional seconds and RFC 3339 values written by
// other tools are accepted as well.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range []string{
		TimeLayout,
		"2006-01-02 15:04:05.999999999",
		time.RFC3339Nano,
		time.RFC3339,
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format: %q", s)
}
