// internal/common/azure/expiry.go
package azure

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ErrTimestampWithoutZone is returned for end dates that carry no Z or offset.
var ErrTimestampWithoutZone = stderrors.New("timestamp has no zone designator")

var zonelessLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 instant with an explicit zone, e.g.
// 2024-05-01T00:00:00Z or 2024-05-01T02:00:00.5+02:00.
func ParseTimestamp(value string) (time.Time, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}

	// Fractional seconds are accepted by the zoneless layouts too.
	for _, layout := range zonelessLayouts {
		if _, zerr := time.Parse(layout, s); zerr == nil {
			return time.Time{}, fmt.Errorf("%q: %w", value, ErrTimestampWithoutZone)
		}
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
}

// IsExpired reports whether endDate lies strictly before now. An end date equal
// to now has not expired yet.
func IsExpired(endDate string, now time.Time) (bool, error) {
	end, err := ParseTimestamp(endDate)
	if err != nil {
		return false, err
	}
	return end.UTC().Before(now.UTC()), nil
}
