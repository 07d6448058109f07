package nukiapi

import (
	"fmt"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/pkg/errors"
)

// TimeOfDay is a wall clock time such as a check-in time
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

var timeOfDayLayouts = []string{"15:04:05", "15:04"}

// ParseTimeOfDay accepts HH:MM or HH:MM:SS
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	for _, layout := range timeOfDayLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
		}
	}

	return TimeOfDay{}, fmt.Errorf("bad time of day: [%s], expected HH:MM or HH:MM:SS", s)
}

func (t TimeOfDay) String() string {
	if t.Second != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
	}
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Combine returns the instant on date's calendar day at the given time of
// day, in date's location
func Combine(date time.Time, tod TimeOfDay) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, tod.Hour, tod.Minute, tod.Second, 0, date.Location())
}

// ParseDate parses a YYYY-MM-DD calendar date in the local time zone
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(strfmt.RFC3339FullDate, s, time.Local)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "bad date [%s], expected YYYY-MM-DD", s)
	}
	return t, nil
}

// FormatAPITime renders t the way the Web API expects timestamps,
// eg. 2021-03-01T15:00:00.000Z
func FormatAPITime(t time.Time) string {
	return strfmt.DateTime(t.UTC()).String()
}

// ParseAPITime parses a Web API timestamp
func ParseAPITime(s string) (time.Time, error) {
	dt, err := strfmt.ParseDateTime(s)
	if err != nil {
		return time.Time{}, err
	}
	return time.Time(dt), nil
}
