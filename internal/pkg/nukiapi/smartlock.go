package nukiapi

import (
	"fmt"

	"github.com/jake-scott/nuki-checkin/internal/pkg/naming"
)

// Smartlock is a lock registered with the Nuki Web API
type Smartlock struct {
	ID   string
	Name string
}

// lock entry as returned by GET /smartlock, other fields are ignored
type apiSmartlock struct {
	SmartlockID apiID  `json:"smartlockId"`
	Name        string `json:"name"`
}

// Pins fetches every pin configured on the lock
func (s Smartlock) Pins(api PinLister) ([]Pin, error) {
	return api.AllPins(s.ID)
}

func (s Smartlock) Equal(other Smartlock) bool {
	return s.ID == other.ID
}

// Less orders locks by the apartment number in their name, so "Apt 3" comes
// before "Apt 12".  Locks without a number sort last, ties are broken by name
// and then ID.
func (s Smartlock) Less(other Smartlock) bool {
	me, meOK := naming.ApartmentNumber(s.Name)
	ot, otOK := naming.ApartmentNumber(other.Name)

	switch {
	case meOK && !otOK:
		return true
	case !meOK && otOK:
		return false
	case meOK && otOK && me != ot:
		return me < ot
	}

	if s.Name != other.Name {
		return s.Name < other.Name
	}

	return s.ID < other.ID
}

func (s Smartlock) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"id":   s.ID,
		"name": s.Name,
	}
}

func (s Smartlock) String() string {
	return fmt.Sprintf("nukiapi.Smartlock(name=%s, id=%s)", s.Name, s.ID)
}

// ByApartment sorts locks by apartment number
type ByApartment []Smartlock

func (a ByApartment) Len() int           { return len(a) }
func (a ByApartment) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a ByApartment) Less(i, j int) bool { return a[i].Less(a[j]) }
