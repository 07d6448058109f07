package nukiapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/jake-scott/nuki-checkin/internal/pkg/pincode"
)

const testAPIKey = "secret-key"

const locksJSON = `[
	{"smartlockId": 101, "name": "Apt 204", "type": 4},
	{"smartlockId": 102, "name": "Apt 3"},
	{"smartlockId": "103", "name": "Garage"}
]`

const authsJSON = `[
	{
		"id": "a1", "smartlockId": 101, "authId": "x1", "type": 13, "name": "guest",
		"enabled": true, "remoteAllowed": false, "lockCount": 4,
		"lastActiveDate": "2021-03-02T10:11:12.000Z",
		"creationDate": "2021-03-01T09:00:00.000Z", "updateDate": "2021-03-01T09:30:00.000Z",
		"code": 345678,
		"allowedFromDate": "2021-03-01T14:00:00.000Z", "allowedUntilDate": "2021-03-05T10:00:00.000Z",
		"allowedWeekDays": 127, "allowedFromTime": 0, "allowedUntilTime": 0
	},
	{
		"id": "a2", "smartlockId": 101, "authId": "x2", "type": 0, "name": "guest house",
		"enabled": true, "remoteAllowed": true, "lockCount": 0,
		"creationDate": "2021-02-01T09:00:00.000Z", "updateDate": "2021-02-01T09:00:00.000Z"
	},
	{
		"id": "a3", "smartlockId": 101, "authId": "x3", "type": 13, "name": "cleaner",
		"enabled": false, "remoteAllowed": false, "lockCount": 1,
		"creationDate": "2021-02-01T09:00:00.000Z", "updateDate": "2021-02-01T09:00:00.000Z",
		"code": 998877, "allowedUntilDate": "2021-03-05T10:00:00.000Z"
	}
]`

type recordedRequest struct {
	method string
	path   string
	header http.Header
	body   []byte
}

// fakeAPI records requests and answers them with handler
type fakeAPI struct {
	server   *httptest.Server
	mu       sync.Mutex
	requests []recordedRequest
}

func (f *fakeAPI) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func newFakeAPI(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *fakeAPI {
	f := &fakeAPI{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.requests = append(f.requests, recordedRequest{
			method: r.Method,
			path:   r.URL.Path,
			header: r.Header.Clone(),
			body:   body,
		})
		f.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeAPI) client() *Live {
	return NewLiveClient(testAPIKey, f.server.URL+"/")
}

func respond(status int, body string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}
}

func TestAllLocks(t *testing.T) {
	f := newFakeAPI(t, respond(http.StatusOK, locksJSON))

	locks, err := f.client().AllLocks()
	if err != nil {
		t.Fatalf("AllLocks: %v", err)
	}

	want := []Smartlock{
		{ID: "101", Name: "Apt 204"},
		{ID: "102", Name: "Apt 3"},
		{ID: "103", Name: "Garage"},
	}
	if len(locks) != len(want) {
		t.Fatalf("got %d locks, want %d", len(locks), len(want))
	}
	for i := range want {
		if locks[i] != want[i] {
			t.Errorf("lock %d = %+v, want %+v", i, locks[i], want[i])
		}
	}

	req := f.recorded()[0]
	if req.method != http.MethodGet || req.path != "/smartlock" {
		t.Errorf("request = %s %s, want GET /smartlock", req.method, req.path)
	}
	if got := req.header.Get("Authorization"); got != testAPIKey {
		t.Errorf("Authorization = %q, want %q", got, testAPIKey)
	}
	if got := req.header.Get("Accept"); got != "application/json" {
		t.Errorf("Accept = %q", got)
	}
	if got := req.header.Get("Content-Type"); got != "" {
		t.Errorf("Content-Type = %q on a request without body", got)
	}
}

func TestAllLocksEmpty(t *testing.T) {
	f := newFakeAPI(t, respond(http.StatusOK, `[]`))

	locks, err := f.client().AllLocks()
	if err != nil {
		t.Fatalf("AllLocks: %v", err)
	}
	if locks == nil || len(locks) != 0 {
		t.Errorf("locks = %#v, want an empty list", locks)
	}
}

func TestAllLocksVendorError(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusUnauthorized} {
		f := newFakeAPI(t, respond(status, `{"detailMessage": "Your access token is not authorized"}`))

		locks, err := f.client().AllLocks()
		if locks != nil {
			t.Errorf("status %d: locks = %v, want nil", status, locks)
		}
		if !IsVendor(err) {
			t.Fatalf("status %d: err = %v, want a vendor error", status, err)
		}
		if !strings.Contains(err.Error(), "not authorized") {
			t.Errorf("status %d: error %q lacks the detail message", status, err)
		}
	}
}

func TestAllLocksTransportError(t *testing.T) {
	f := newFakeAPI(t, respond(http.StatusInternalServerError, `oops`))

	_, err := f.client().AllLocks()
	if !IsTransport(err) {
		t.Fatalf("err = %v, want a transport error", err)
	}

	apiErr := err.(*APIError)
	if apiErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d", apiErr.StatusCode)
	}
	if apiErr.Status != "Internal Server Error" {
		t.Errorf("Status = %q", apiErr.Status)
	}
}

func TestConnectionFailure(t *testing.T) {
	f := newFakeAPI(t, respond(http.StatusOK, locksJSON))
	c := f.client()
	f.server.Close()

	if _, err := c.AllLocks(); !IsTransport(err) {
		t.Errorf("err = %v, want a transport error", err)
	}
}

func TestSmartlockByName(t *testing.T) {
	f := newFakeAPI(t, respond(http.StatusOK, locksJSON))
	c := f.client()

	tests := []struct {
		name   string
		wantID string
	}{
		{"204", "101"},
		{"apt", "101"},
		{"APT 3", "102"},
		{"garage", "103"},
	}
	for _, tt := range tests {
		lock, err := c.SmartlockByName(tt.name)
		if err != nil {
			t.Errorf("SmartlockByName(%q): %v", tt.name, err)
			continue
		}
		if lock.ID != tt.wantID {
			t.Errorf("SmartlockByName(%q) = %s, want %s", tt.name, lock.ID, tt.wantID)
		}
	}

	if _, err := c.SmartlockByName("cellar"); !IsNotFound(err) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestSmartlockByID(t *testing.T) {
	f := newFakeAPI(t, respond(http.StatusOK, locksJSON))
	c := f.client()

	lock, err := c.SmartlockByID("102")
	if err != nil {
		t.Fatalf("SmartlockByID: %v", err)
	}
	if lock.Name != "Apt 3" {
		t.Errorf("Name = %q", lock.Name)
	}

	if _, err := c.SmartlockByID("10"); !IsNotFound(err) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestGetPin(t *testing.T) {
	f := newFakeAPI(t, respond(http.StatusOK, authsJSON))
	c := f.client()

	pin, err := c.GetPin("101", "guest")
	if err != nil {
		t.Fatalf("GetPin: %v", err)
	}
	if pin.ID != "a1" {
		t.Errorf("ID = %q, want a1", pin.ID)
	}
	if f.recorded()[0].path != "/smartlock/101/auth" {
		t.Errorf("path = %q", f.recorded()[0].path)
	}

	pin, err = c.GetPin("101", "guest house")
	if err != nil {
		t.Fatalf("GetPin: %v", err)
	}
	if pin.LastActiveDate != nil {
		t.Errorf("LastActiveDate = %v, want nil", pin.LastActiveDate)
	}
	if pin.Code.String() != NoPinText {
		t.Errorf("Code = %q, want %q", pin.Code, NoPinText)
	}

	// substrings don't count
	if _, err := c.GetPin("101", "gue"); !IsNotFound(err) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestAllPins(t *testing.T) {
	f := newFakeAPI(t, respond(http.StatusOK, authsJSON))

	pins, err := f.client().AllPins("101")
	if err != nil {
		t.Fatalf("AllPins: %v", err)
	}

	wantIDs := []string{"a1", "a2", "a3"}
	wantExtended := []bool{true, false, false}
	if len(pins) != len(wantIDs) {
		t.Fatalf("got %d pins, want %d", len(pins), len(wantIDs))
	}
	for i, p := range pins {
		if p.ID != wantIDs[i] {
			t.Errorf("pin %d ID = %q, want %q", i, p.ID, wantIDs[i])
		}
		if p.ExtendedInfos != wantExtended[i] {
			t.Errorf("pin %s ExtendedInfos = %v, want %v", p.ID, p.ExtendedInfos, wantExtended[i])
		}
	}
}

func TestAllPinsVendorError(t *testing.T) {
	f := newFakeAPI(t, respond(http.StatusNotFound, `{"detailMessage": "Smartlock not found"}`))

	pins, err := f.client().AllPins("999")
	if pins != nil || !IsVendor(err) {
		t.Errorf("AllPins = %v, %v; want nil and a vendor error", pins, err)
	}
}

func TestUnexpectedResponseBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
		call func(c *Live) error
	}{
		{"locks object", `{"unexpected": true}`, func(c *Live) error {
			_, err := c.AllLocks()
			return err
		}},
		{"auths object", `{"unexpected": true}`, func(c *Live) error {
			_, err := c.AllPins("17")
			return err
		}},
		{"bad creationDate", `[{"id": "a1", "name": "guest", "creationDate": "yesterday", "updateDate": "2021-03-01T09:00:00.000Z"}]`, func(c *Live) error {
			_, err := c.GetPin("17", "guest")
			return err
		}},
		{"missing updateDate", `[{"id": "a1", "name": "guest", "creationDate": "2021-03-01T09:00:00.000Z"}]`, func(c *Live) error {
			_, err := c.AllPins("17")
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeAPI(t, respond(http.StatusOK, tt.body))

			err := tt.call(f.client())
			if !IsVendor(err) {
				t.Fatalf("err = %v, want a vendor error", err)
			}
			if apiErr := err.(*APIError); apiErr.StatusCode != http.StatusOK || apiErr.Err == nil {
				t.Errorf("APIError = %+v, want status 200 and the decoding cause", apiErr)
			}
		})
	}
}

func TestSmartlockPins(t *testing.T) {
	f := newFakeAPI(t, respond(http.StatusOK, authsJSON))

	pins, err := Smartlock{ID: "101", Name: "Apt 204"}.Pins(f.client())
	if err != nil {
		t.Fatalf("Pins: %v", err)
	}
	if len(pins) != 3 || f.recorded()[0].path != "/smartlock/101/auth" {
		t.Errorf("got %d pins from %s", len(pins), f.recorded()[0].path)
	}
}

func TestPinMutations(t *testing.T) {
	tests := []struct {
		name       string
		call       func(c *Live) error
		wantMethod string
		wantBody   map[string]interface{}
	}{
		{
			name:       "delete",
			call:       func(c *Live) error { return c.DeletePin("101", "a1") },
			wantMethod: http.MethodDelete,
		},
		{
			name:       "deactivate",
			call:       func(c *Live) error { return c.DeactivatePin("101", "a1") },
			wantMethod: http.MethodPost,
			wantBody:   map[string]interface{}{"enable": false},
		},
		{
			name: "update",
			call: func(c *Live) error {
				return c.UpdatePin("101", "a1", map[string]interface{}{"name": "renamed", "allowedWeekDays": 31})
			},
			wantMethod: http.MethodPost,
			wantBody:   map[string]interface{}{"name": "renamed", "allowedWeekDays": float64(31)},
		},
	}

	for _, tt := range tests {
		for _, status := range []int{http.StatusOK, http.StatusNoContent, http.StatusBadRequest, http.StatusUnauthorized, http.StatusServiceUnavailable} {
			f := newFakeAPI(t, respond(status, ``))

			err := tt.call(f.client())
			wantOK := status < 300
			if (err == nil) != wantOK {
				t.Errorf("%s with status %d: err = %v", tt.name, status, err)
			}
			if !wantOK && !IsTransport(err) {
				t.Errorf("%s with status %d: err = %v, want a transport error", tt.name, status, err)
			}

			req := f.recorded()[0]
			if req.method != tt.wantMethod || req.path != "/smartlock/101/auth/a1" {
				t.Errorf("%s: request = %s %s", tt.name, req.method, req.path)
			}

			if tt.wantBody == nil {
				continue
			}
			if got := req.header.Get("Content-Type"); got != "application/json" {
				t.Errorf("%s: Content-Type = %q", tt.name, got)
			}
			var body map[string]interface{}
			if err := json.Unmarshal(req.body, &body); err != nil {
				t.Fatalf("%s: decoding body: %v", tt.name, err)
			}
			for k, v := range tt.wantBody {
				if body[k] != v {
					t.Errorf("%s: body[%s] = %v, want %v", tt.name, k, body[k], v)
				}
			}
			if len(body) != len(tt.wantBody) {
				t.Errorf("%s: body = %v, want %v", tt.name, body, tt.wantBody)
			}
		}
	}
}

func keyRequest() KeyRequest {
	return KeyRequest{
		LockID:    "101",
		BeginDate: time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2021, 3, 5, 0, 0, 0, 0, time.UTC),
		CheckIn:   TimeOfDay{Hour: 15},
		CheckOut:  TimeOfDay{Hour: 10, Minute: 30},
		Name:      "Smith",
	}
}

func TestSetKey(t *testing.T) {
	f := newFakeAPI(t, respond(http.StatusNoContent, ``))

	req := keyRequest()
	req.Pin = "456789"

	pin, err := f.client().SetKey(req)
	if err != nil {
		t.Fatalf("SetKey: %v", err)
	}
	if pin != "456789" {
		t.Errorf("pin = %q", pin)
	}

	r := f.recorded()[0]
	if r.method != http.MethodPut || r.path != "/smartlock/101/auth" {
		t.Errorf("request = %s %s", r.method, r.path)
	}
	if got := r.header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(r.body, &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	want := map[string]interface{}{
		"name":             "Smith",
		"type":             float64(13),
		"code":             float64(456789),
		"allowedFromDate":  "2021-03-01T15:00:00.000Z",
		"allowedUntilDate": "2021-03-05T10:30:00.000Z",
		"allowedWeekDays":  float64(127),
	}
	for k, v := range want {
		if body[k] != v {
			t.Errorf("body[%s] = %v, want %v", k, body[k], v)
		}
	}
}

func TestSetKeyDefaults(t *testing.T) {
	f := newFakeAPI(t, respond(http.StatusOK, ``))

	req := keyRequest()
	req.Name = ""

	pin, err := f.client().SetKey(req)
	if err != nil {
		t.Fatalf("SetKey: %v", err)
	}
	if !pincode.Valid(pin) {
		t.Errorf("generated pin %q is not valid", pin)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(f.recorded()[0].body, &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["name"] != "pin" {
		t.Errorf("name = %v, want pin", body["name"])
	}
}

func TestSetKeyFailureReturnsPin(t *testing.T) {
	f := newFakeAPI(t, respond(http.StatusConflict, `{"detailMessage": "code already in use"}`))

	req := keyRequest()
	req.Pin = "456789"

	pin, err := f.client().SetKey(req)
	if pin != "456789" {
		t.Errorf("pin = %q", pin)
	}
	if !IsTransport(err) {
		t.Fatalf("err = %v, want a transport error", err)
	}
	if apiErr := err.(*APIError); apiErr.Detail != "code already in use" {
		t.Errorf("Detail = %q", apiErr.Detail)
	}
}

func TestSetKeyNonNumericPin(t *testing.T) {
	f := newFakeAPI(t, respond(http.StatusOK, ``))

	req := keyRequest()
	req.Pin = "12ab56"

	if _, err := f.client().SetKey(req); err == nil {
		t.Error("expected an error for a non numeric pin")
	}
	if len(f.recorded()) != 0 {
		t.Error("no request should be sent")
	}
}

func TestSetKeyDryRun(t *testing.T) {
	f := newFakeAPI(t, respond(http.StatusInternalServerError, ``))
	c := f.client()

	for i := 0; i < 200; i++ {
		req := keyRequest()
		req.DryRun = true

		pin, err := c.SetKey(req)
		if err != nil {
			t.Fatalf("dry run SetKey: %v", err)
		}
		if len(pin) != 6 || strings.HasPrefix(pin, "12") {
			t.Fatalf("dry run pin = %q", pin)
		}
		for _, ch := range pin {
			if ch < '0' || ch > '9' {
				t.Fatalf("dry run pin = %q is not numeric", pin)
			}
		}
	}

	if len(f.recorded()) != 0 {
		t.Errorf("dry run sent %d requests", len(f.recorded()))
	}
}

func TestWithTokenSource(t *testing.T) {
	f := newFakeAPI(t, respond(http.StatusOK, `[]`))

	c := f.client().WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: testAPIKey}))
	if _, err := c.AllLocks(); err != nil {
		t.Fatalf("AllLocks: %v", err)
	}

	if got := f.recorded()[0].header.Get("Authorization"); got != "Bearer "+testAPIKey {
		t.Errorf("Authorization = %q", got)
	}
}

func TestWithTimeout(t *testing.T) {
	f := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		io.WriteString(w, `[]`)
	})

	_, err := f.client().WithTimeout(50 * time.Millisecond).AllLocks()
	if !IsTransport(err) {
		t.Errorf("err = %v, want a transport error", err)
	}
}

func TestWithContextCancelled(t *testing.T) {
	var calls int32
	f := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		io.WriteString(w, `[]`)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.client().WithContext(ctx).AllLocks(); !IsTransport(err) {
		t.Errorf("err = %v, want a transport error", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Error("a cancelled context should not reach the server")
	}
}

func TestWithRateLimit(t *testing.T) {
	f := newFakeAPI(t, respond(http.StatusOK, `[]`))

	c := f.client().WithRateLimit(1000, 1).WithLogPayloads()
	for i := 0; i < 3; i++ {
		if _, err := c.AllLocks(); err != nil {
			t.Fatalf("AllLocks: %v", err)
		}
	}
	if len(f.recorded()) != 3 {
		t.Errorf("got %d requests, want 3", len(f.recorded()))
	}
}

func TestURLEscaping(t *testing.T) {
	c := NewLiveClient(testAPIKey, "https://api.example.com")
	if got := c.url("smartlock", "a/b", "auth"); got != "https://api.example.com/smartlock/a%2Fb/auth" {
		t.Errorf("url = %q", got)
	}
}

func TestObfuscatedHeaders(t *testing.T) {
	h := NewLiveClient(testAPIKey, "").obfuscatedHeaders(true)
	if strings.Contains(h.Get("Authorization"), testAPIKey) {
		t.Error("API key leaked into logged headers")
	}
	if h.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", h.Get("Content-Type"))
	}
}

func TestKeyRequestPinName(t *testing.T) {
	if got := (KeyRequest{}).PinName(); got != DefaultPinName {
		t.Errorf("PinName() = %q, want %q", got, DefaultPinName)
	}
	if got := (KeyRequest{Name: "Smith"}).PinName(); got != "Smith" {
		t.Errorf("PinName() = %q, want Smith", got)
	}
}
