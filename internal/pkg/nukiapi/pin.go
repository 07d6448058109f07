package nukiapi

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/swag"
	"github.com/pkg/errors"
)

// NoPinText is shown in place of the code when the API withholds it
const NoPinText = "No Pin available"

// PinCode is the keypad code of a pin, which the API omits for some
// authorization types
type PinCode struct {
	value string
	ok    bool
}

func NewPinCode(code string) PinCode {
	return PinCode{value: code, ok: true}
}

func NoPinCode() PinCode {
	return PinCode{}
}

func (c PinCode) Value() (string, bool) {
	return c.value, c.ok
}

func (c PinCode) String() string {
	if !c.ok {
		return NoPinText
	}
	return c.value
}

// Pin is an authorization (keypad code, app user, fob..) on a lock
type Pin struct {
	ID             string
	SmartlockID    string
	AuthID         string
	Type           int
	Name           string
	Enabled        bool
	RemoteAllowed  bool
	LockCount      int
	LastActiveDate *time.Time
	CreationDate   time.Time
	UpdateDate     time.Time
	Code           PinCode

	// Time restrictions, only set together when ExtendedInfos is true.
	// The times of day are minutes after midnight.
	ExtendedInfos    bool
	AllowedFromDate  *time.Time
	AllowedUntilDate *time.Time
	AllowedWeekDays  *int
	AllowedFromTime  *int
	AllowedUntilTime *int

	// The entry as received from the API
	Raw map[string]interface{}
}

// IDs are numbers in some API versions and strings in others
type apiID string

func (id *apiID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = apiID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = apiID(n.String())
	return nil
}

// auth entry as returned by GET /smartlock/{id}/auth
type apiAuth struct {
	ID               apiID            `json:"id"`
	SmartlockID      apiID            `json:"smartlockId"`
	AuthID           apiID            `json:"authId"`
	Type             int              `json:"type"`
	Name             string           `json:"name"`
	Enabled          bool             `json:"enabled"`
	RemoteAllowed    bool             `json:"remoteAllowed"`
	LockCount        int              `json:"lockCount"`
	LastActiveDate   *strfmt.DateTime `json:"lastActiveDate"`
	CreationDate     *strfmt.DateTime `json:"creationDate"`
	UpdateDate       *strfmt.DateTime `json:"updateDate"`
	Code             *apiID           `json:"code"`
	AllowedFromDate  *strfmt.DateTime `json:"allowedFromDate"`
	AllowedUntilDate *strfmt.DateTime `json:"allowedUntilDate"`
	AllowedWeekDays  *int             `json:"allowedWeekDays"`
	AllowedFromTime  *int             `json:"allowedFromTime"`
	AllowedUntilTime *int             `json:"allowedUntilTime"`
}

func optionalTime(dt *strfmt.DateTime) *time.Time {
	if dt == nil {
		return nil
	}
	t := time.Time(*dt)
	return &t
}

// ParsePin converts one auth entry from the API.  lastActiveDate and code may
// be missing, creationDate and updateDate may not.
func ParsePin(data json.RawMessage) (Pin, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Pin{}, errors.Wrap(err, "decoding auth entry")
	}

	var a apiAuth
	if err := json.Unmarshal(data, &a); err != nil {
		return Pin{}, errors.Wrap(err, "parsing auth entry")
	}

	if a.CreationDate == nil || a.UpdateDate == nil {
		return Pin{}, fmt.Errorf("auth entry %s has no creationDate or updateDate", a.ID)
	}

	p := Pin{
		ID:             string(a.ID),
		SmartlockID:    string(a.SmartlockID),
		AuthID:         string(a.AuthID),
		Type:           a.Type,
		Name:           a.Name,
		Enabled:        a.Enabled,
		RemoteAllowed:  a.RemoteAllowed,
		LockCount:      a.LockCount,
		LastActiveDate: optionalTime(a.LastActiveDate),
		CreationDate:   time.Time(*a.CreationDate),
		UpdateDate:     time.Time(*a.UpdateDate),
		Code:           NoPinCode(),
		Raw:            raw,
	}

	if a.Code != nil {
		p.Code = NewPinCode(string(*a.Code))
	}

	if a.AllowedFromDate != nil && a.AllowedUntilDate != nil && a.AllowedWeekDays != nil &&
		a.AllowedFromTime != nil && a.AllowedUntilTime != nil {
		p.ExtendedInfos = true
		p.AllowedFromDate = optionalTime(a.AllowedFromDate)
		p.AllowedUntilDate = optionalTime(a.AllowedUntilDate)
		p.AllowedWeekDays = a.AllowedWeekDays
		p.AllowedFromTime = a.AllowedFromTime
		p.AllowedUntilTime = a.AllowedUntilTime
	}

	return p, nil
}

// parse a list of auth entries, keeping the API order
func parsePins(data []byte) ([]Pin, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errors.Wrap(err, "decoding auth list")
	}

	pins := make([]Pin, 0, len(entries))
	for _, e := range entries {
		p, err := ParsePin(e)
		if err != nil {
			return nil, err
		}
		pins = append(pins, p)
	}

	return pins, nil
}

func (p Pin) Equal(other Pin) bool {
	return p.ID == other.ID
}

func formatOptionalTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return FormatAPITime(*t)
}

// ToMap returns the pin as a generic mapping, for JSON/YAML output
func (p Pin) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"id":             p.ID,
		"smartlockId":    p.SmartlockID,
		"authId":         p.AuthID,
		"type":           p.Type,
		"name":           p.Name,
		"enabled":        p.Enabled,
		"remoteAllowed":  p.RemoteAllowed,
		"lockCount":      p.LockCount,
		"lastActiveDate": formatOptionalTime(p.LastActiveDate),
		"creationDate":   FormatAPITime(p.CreationDate),
		"updateDate":     FormatAPITime(p.UpdateDate),
		"code":           p.Code.String(),
		"extended_infos": p.ExtendedInfos,
		"raw":            p.Raw,
	}

	if p.ExtendedInfos {
		m["allowedFromDate"] = FormatAPITime(swag.TimeValue(p.AllowedFromDate))
		m["allowedUntilDate"] = FormatAPITime(swag.TimeValue(p.AllowedUntilDate))
		m["allowedWeekDays"] = swag.IntValue(p.AllowedWeekDays)
		m["allowedFromTime"] = swag.IntValue(p.AllowedFromTime)
		m["allowedUntilTime"] = swag.IntValue(p.AllowedUntilTime)
	}

	return m
}

func (p Pin) String() string {
	lastActive := "never"
	if p.LastActiveDate != nil {
		lastActive = FormatAPITime(*p.LastActiveDate)
	}

	fields := []string{
		"id=" + p.ID,
		"smartlockId=" + p.SmartlockID,
		"authId=" + p.AuthID,
		fmt.Sprintf("type=%d", p.Type),
		"name=" + p.Name,
		fmt.Sprintf("enabled=%t", p.Enabled),
		fmt.Sprintf("remoteAllowed=%t", p.RemoteAllowed),
		fmt.Sprintf("lockCount=%d", p.LockCount),
		"lastActiveDate=" + lastActive,
		"creationDate=" + FormatAPITime(p.CreationDate),
		"updateDate=" + FormatAPITime(p.UpdateDate),
	}

	return "nukiapi.Pin(" + strings.Join(fields, ",") + ")"
}
