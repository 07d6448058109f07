package naming

import (
	"regexp"
	"strconv"
)

var apartmentNumberRegexp = regexp.MustCompile(`\d+`)

// ApartmentNumber returns the first run of decimal digits found in a lock
// name, eg. 204 for "Apt 204 (front door)".  The second return value is false
// when the name carries no number, or the number does not fit in an int.
func ApartmentNumber(name string) (int, bool) {
	digits := apartmentNumberRegexp.FindString(name)
	if digits == "" {
		return 0, false
	}

	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}

	return n, true
}
