package transit

import (
	"regexp"
	"time"
)

const (
	timeOnlyLayout    = "15:04"
	dateAndTimeLayout = "20060102 15:04"
)

// The layouts above accept single digit hours, so the shape is checked first.
var (
	timeOnlyPattern = regexp.MustCompile(`^[0-9]{2}:[0-9]{2}$`)
	datePattern     = regexp.MustCompile(`^[0-9]{8}$`)
)

// ParseTimeOnly reads a 24-hour "HH:mm" value as that clock time on the
// calendar date of now, in now's location, with seconds zeroed.
func ParseTimeOnly(value string, now time.Time) (time.Time, error) {
	if !timeOnlyPattern.MatchString(value) {
		return time.Time{}, &InvalidTimeFormatError{Value: value}
	}
	t, err := time.Parse(timeOnlyLayout, value)
	if err != nil {
		return time.Time{}, &InvalidTimeFormatError{Value: value}
	}
	y, m, d := now.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, now.Location()), nil
}

// ParseDateAndTime reads "yyyyMMdd" and "HH:mm" as one timestamp in loc.
func ParseDateAndTime(date, value string, loc *time.Location) (time.Time, error) {
	combined := date + " " + value
	if !datePattern.MatchString(date) || !timeOnlyPattern.MatchString(value) {
		return time.Time{}, &InvalidTimeFormatError{Value: combined}
	}
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(dateAndTimeLayout, combined, loc)
	if err != nil {
		return time.Time{}, &InvalidTimeFormatError{Value: combined}
	}
	return t, nil
}

// ParseAgencyTime uses the combined parser when a date is given, even an
// empty one, and the time-only parser anchored to now otherwise. Both
// interpret the value in now's location.
func ParseAgencyTime(date *string, value string, now time.Time) (time.Time, error) {
	if date != nil {
		return ParseDateAndTime(*date, value, now.Location())
	}
	return ParseTimeOnly(value, now)
}
