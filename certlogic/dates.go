package certlogic

import (
	"regexp"
	"time"
)

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05-07",
}

// parseDate accepts ISO 8601 dates and date-times. Date-times without an offset, and
// plain dates, are taken to be UTC.
func parseDate(s string) (time.Time, bool) {
	if !datePattern.MatchString(s) {
		return time.Time{}, false
	}

	if len(s) == len("2006-01-02") {
		t, err := time.Parse("2006-01-02", s)
		return t, err == nil
	}

	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, true
		}
	}

	t, err := time.ParseInLocation("2006-01-02T15:04:05", s, time.UTC)
	return t, err == nil
}

// asDate converts date values and date strings
func asDate(v Value) (time.Time, bool) {
	if t, ok := v.Time(); ok {
		return t, true
	}

	if s, ok := v.Str(); ok {
		return parseDate(s)
	}

	return time.Time{}, false
}

func plusTime(t time.Time, amount int, unit string) (time.Time, bool) {
	switch unit {
	case "year", "years":
		return t.AddDate(amount, 0, 0), true
	case "month", "months":
		return t.AddDate(0, amount, 0), true
	case "day", "days":
		return t.AddDate(0, 0, amount), true
	case "hour", "hours":
		return t.Add(time.Duration(amount) * time.Hour), true
	}

	return time.Time{}, false
}
