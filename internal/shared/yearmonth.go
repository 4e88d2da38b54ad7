package shared

import (
	"errors"
	"fmt"
	"time"
)

// YearMonth is the "YYYY-MM" accounting period token used across the engine.
// The format is zero padded so lexical comparison equals chronological
// comparison; callers may compare values with plain < / >=.
type YearMonth = string

// ErrInvalidYearMonth indicates a malformed period token.
var ErrInvalidYearMonth = errors.New("shared: invalid year-month, want YYYY-MM")

// ValidYearMonth reports whether ym is a well formed zero-padded YYYY-MM token.
func ValidYearMonth(ym string) bool {
	if len(ym) != 7 || ym[4] != '-' {
		return false
	}
	_, err := time.Parse("2006-01", ym)
	return err == nil
}

// ParseYearMonth validates ym and returns it unchanged.
func ParseYearMonth(ym string) (YearMonth, error) {
	if !ValidYearMonth(ym) {
		return "", fmt.Errorf("%w: %q", ErrInvalidYearMonth, ym)
	}
	return ym, nil
}

// YearMonthOf derives the period token for a point in time.
func YearMonthOf(t time.Time) YearMonth {
	return t.Format("2006-01")
}

// FirstDayOf returns midnight UTC on the first day of the period.
func FirstDayOf(ym YearMonth) (time.Time, error) {
	t, err := time.Parse("2006-01", ym)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidYearMonth, ym)
	}
	return t.UTC(), nil
}
