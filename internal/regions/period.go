package regions

import (
	"fmt"
	"time"
)

// PeriodLayout is the YYYY-MM layout of every period string
const PeriodLayout = "2006-01"

// ParsePeriod parses a YYYY-MM period into the first instant of that month (UTC)
func ParsePeriod(period string) (time.Time, error) {
	t, err := time.Parse(PeriodLayout, period)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}
	return t, nil
}

// FormatPeriod formats t as YYYY-MM
func FormatPeriod(t time.Time) string {
	return t.UTC().Format(PeriodLayout)
}

// ShiftPeriod moves a valid period by months, which may be negative
func ShiftPeriod(period string, months int) (string, error) {
	t, err := ParsePeriod(period)
	if err != nil {
		return "", err
	}
	return FormatPeriod(t.AddDate(0, months, 0)), nil
}
