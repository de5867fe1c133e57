// Package utils provides utility functions for the application.
package utils

import (
	"time"
)

// UTCNow returns the current time in UTC
func UTCNow() time.Time {
	return time.Now().UTC()
}

// FormatISO8601 renders t in UTC using RFC3339 with millisecond precision
func FormatISO8601(t time.Time) string {
	return t.UTC().Format(ISO8601Layout)
}
