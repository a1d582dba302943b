package maptypes

import "time"

const isoLayout = time.RFC3339

// parseISO parses an ISO-8601 timestamp as written by MarshalJSON.
func parseISO(s string) (time.Time, error) {
	return time.Parse(isoLayout, s)
}
