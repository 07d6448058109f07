package nukiapi

import (
	"context"
	"time"
)

// KeyRequest describes a timed keypad code to issue on a lock.  The code is
// valid from BeginDate at CheckIn until EndDate at CheckOut; only the date
// part of BeginDate and EndDate is used.
type KeyRequest struct {
	LockID    string
	BeginDate time.Time
	EndDate   time.Time
	CheckIn   TimeOfDay
	CheckOut  TimeOfDay
	Name      string

	// Explicit code to use, a random one is generated when empty
	Pin string

	// Log the request instead of sending it
	DryRun bool
}

// PinName is the name the code is issued under
func (r KeyRequest) PinName() string {
	if r.Name == "" {
		return DefaultPinName
	}
	return r.Name
}

type WebAPI interface {
	WithContext(ctx context.Context) WebAPI
	WithTimeout(d time.Duration) WebAPI
	SetKey(req KeyRequest) (string, error)
	AllLocks() ([]Smartlock, error)
	SmartlockByName(name string) (*Smartlock, error)
	SmartlockByID(id string) (*Smartlock, error)
	GetPin(lockID string, pinName string) (*Pin, error)
	AllPins(lockID string) ([]Pin, error)
	DeletePin(lockID string, pinID string) error
	DeactivatePin(lockID string, pinID string) error
	UpdatePin(lockID string, pinID string, newValues map[string]interface{}) error
}

// PinLister is the part of WebAPI a Smartlock needs to fetch its own pins
type PinLister interface {
	AllPins(lockID string) ([]Pin, error)
}
