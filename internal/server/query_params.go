package server

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

const dateOnlyLayout = "2006-01-02"

func parseOptionalBool(value string) (*bool, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseBool(trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// parseOptionalTime accepts RFC3339 or a plain date. A plain date resolves to
// the start of the day, or to the start of the next day when exclusiveEnd is
// set so that "to=2025-03-31" covers the whole of the 31st.
func parseOptionalTime(value string, exclusiveEnd bool) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return &parsed, nil
	}
	if parsed, err := time.Parse(dateOnlyLayout, trimmed); err == nil {
		parsed = time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC)
		if exclusiveEnd {
			parsed = parsed.AddDate(0, 0, 1)
		}
		return &parsed, nil
	}
	return nil, errors.New("invalid_time")
}

// parsePeriod reads a required [from, to) reporting window.
func parsePeriod(from, to string) (time.Time, time.Time, error) {
	start, err := parseOptionalTime(from, false)
	if err != nil || start == nil {
		return time.Time{}, time.Time{}, newValidationError("from", "invalid_from", "from must be RFC3339 or YYYY-MM-DD")
	}
	end, err := parseOptionalTime(to, true)
	if err != nil || end == nil {
		return time.Time{}, time.Time{}, newValidationError("to", "invalid_to", "to must be RFC3339 or YYYY-MM-DD")
	}
	return *start, *end, nil
}
