package nukiapi

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/jake-scott/nuki-checkin/internal/pkg/logging"
	"github.com/jake-scott/nuki-checkin/internal/pkg/pincode"
)

const (
	// DefaultAPIURL is the public Nuki Web API endpoint
	DefaultAPIURL = "https://api.nuki.io/"

	// authorization type of a keypad code
	authTypeKeypadCode = 13

	// Monday..Sunday
	allWeekDays = 127

	// DefaultPinName names keypad codes issued without a name
	DefaultPinName = "pin"
)

type Live struct {
	apiKey      string
	apiURL      string
	timeout     time.Duration
	ctx         context.Context
	httpClient  *http.Client
	tokenSource oauth2.TokenSource
	limiter     *rate.Limiter
	logPayloads bool
}

func NewLiveClient(apiKey string, apiURL string) *Live {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}

	return &Live{
		apiKey:     apiKey,
		apiURL:     apiURL,
		ctx:        context.Background(),
		httpClient: http.DefaultClient,
	}
}

func (c *Live) WithContext(ctx context.Context) WebAPI {
	nc := *c
	nc.ctx = ctx
	return &nc
}

func (c *Live) WithTimeout(d time.Duration) WebAPI {
	nc := *c
	nc.timeout = d
	return &nc
}

func (c *Live) WithHTTPClient(hc *http.Client) *Live {
	nc := *c
	nc.httpClient = hc
	return &nc
}

// WithTokenSource sends the API key as an OAuth2 bearer token instead of the
// raw Authorization header value
func (c *Live) WithTokenSource(ts oauth2.TokenSource) *Live {
	nc := *c
	nc.tokenSource = ts
	return &nc
}

// WithRateLimit throttles requests to r per second.  Copies of the client
// share the same limiter.
func (c *Live) WithRateLimit(r rate.Limit, burst int) *Live {
	nc := *c
	nc.limiter = rate.NewLimiter(r, burst)
	return &nc
}

// WithLogPayloads logs request and response bodies at debug level
func (c *Live) WithLogPayloads() *Live {
	nc := *c
	nc.logPayloads = true
	return &nc
}

func (c *Live) MakeContext() (context.Context, context.CancelFunc) {
	var ctx = c.ctx
	var cancel context.CancelFunc = func() {}
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
	}

	return ctx, cancel
}

func (c *Live) client() *http.Client {
	if c.tokenSource == nil {
		return c.httpClient
	}

	hc := *c.httpClient
	hc.Transport = &oauth2.Transport{
		Source: c.tokenSource,
		Base:   c.httpClient.Transport,
	}
	return &hc
}

func (c *Live) url(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}

	return strings.TrimSuffix(c.apiURL, "/") + "/" + strings.Join(escaped, "/")
}

func (c *Live) headers(withBody bool) http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json")
	if withBody {
		h.Set("Content-Type", "application/json")
	}
	if c.tokenSource == nil {
		h.Set("Authorization", c.apiKey)
	}

	return h
}

func hashOf(s string) string {
	sum := sha1.Sum([]byte(s))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// headers safe to log
func (c *Live) obfuscatedHeaders(withBody bool) http.Header {
	h := c.headers(withBody)
	if h.Get("Authorization") != "" {
		h.Set("Authorization", "sha1:"+hashOf(c.apiKey))
	}
	return h
}

type apiResponse struct {
	statusCode int
	status     string
	body       []byte
}

func (r *apiResponse) ok() bool {
	return r.statusCode >= 200 && r.statusCode < 300
}

// do sends one request.  Only failures to get a response at all are returned
// as errors, status checks are left to the caller.
func (c *Live) do(op string, method string, payload interface{}, path ...string) (*apiResponse, error) {
	ctx, cancel := c.MakeContext()
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &APIError{Kind: KindTransport, Op: op, Err: errors.Wrap(err, "waiting for rate limiter")}
		}
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: encoding request", op)
		}
		if c.logPayloads {
			logging.Logger(ctx).Debugf("%s: request body: %s", op, data)
		}
		body = bytes.NewReader(data)
	}

	u := c.url(path...)
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: creating request", op)
	}
	req.Header = c.headers(payload != nil)

	logging.Logger(ctx).Debugf("%s: %s %s", op, method, u)

	resp, err := c.client().Do(req)
	if err != nil {
		return nil, &APIError{Kind: KindTransport, Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Kind: KindTransport, Op: op, Err: errors.Wrap(err, "reading response body")}
	}

	if c.logPayloads {
		logging.Logger(ctx).Debugf("%s: response %d: %s", op, resp.StatusCode, data)
	}

	return &apiResponse{
		statusCode: resp.StatusCode,
		status:     http.StatusText(resp.StatusCode),
		body:       data,
	}, nil
}

// checkStatus turns a non-2xx response into a transport error, and logs the
// reason and status code
func (c *Live) checkStatus(op string, resp *apiResponse) error {
	if resp.ok() {
		return nil
	}

	logging.Logger(c.ctx).WithFields(logrus.Fields{
		"reason": resp.status,
		"status": resp.statusCode,
	}).Warnf("%s didn't succeed", op)

	return &APIError{
		Kind:       KindTransport,
		Op:         op,
		StatusCode: resp.statusCode,
		Status:     resp.status,
		Detail:     vendorDetail(resp.body),
	}
}

type vendorEnvelope struct {
	DetailMessage *string `json:"detailMessage"`
}

// vendorDetail returns the detailMessage of an error envelope, or ""
func vendorDetail(body []byte) string {
	var env vendorEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.DetailMessage == nil {
		return ""
	}
	return *env.DetailMessage
}

// checkList validates the response of a list endpoint.  The API reports some
// errors with a detailMessage object whatever the HTTP status.
func (c *Live) checkList(op string, resp *apiResponse) error {
	trimmed := bytes.TrimSpace(resp.body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var env vendorEnvelope
		if err := json.Unmarshal(trimmed, &env); err == nil && env.DetailMessage != nil {
			logging.Logger(c.ctx).WithField("status", resp.statusCode).Warnf("%s: API error: %s", op, *env.DetailMessage)

			return &APIError{
				Kind:       KindVendor,
				Op:         op,
				StatusCode: resp.statusCode,
				Status:     resp.status,
				Detail:     *env.DetailMessage,
			}
		}
	}

	return c.checkStatus(op, resp)
}

// badBody reports a successful response the client cannot make sense of
func (c *Live) badBody(op string, resp *apiResponse, err error) *APIError {
	logging.Logger(c.ctx).WithField("status", resp.statusCode).Warnf("%s: unexpected response: %v", op, err)

	return &APIError{
		Kind:       KindVendor,
		Op:         op,
		StatusCode: resp.statusCode,
		Status:     resp.status,
		Err:        err,
	}
}

type newAuthRequest struct {
	Name             string `json:"name"`
	Type             int    `json:"type"`
	Code             int    `json:"code"`
	AllowedFromDate  string `json:"allowedFromDate"`
	AllowedUntilDate string `json:"allowedUntilDate"`
	AllowedWeekDays  int    `json:"allowedWeekDays"`
}

// SetKey issues a keypad code valid every day of the week between check-in
// and check-out.  The code is returned even when the request fails, so the
// caller can report it.
func (c *Live) SetKey(req KeyRequest) (string, error) {
	pin := req.Pin
	if pin == "" {
		var err error
		if pin, err = pincode.Generate(); err != nil {
			return "", errors.Wrap(err, "generating pin")
		}
	}

	code, err := strconv.Atoi(pin)
	if err != nil {
		return pin, errors.Wrapf(err, "pin [%s] is not numeric", pin)
	}

	start := Combine(req.BeginDate, req.CheckIn)
	end := Combine(req.EndDate, req.CheckOut)

	authReq := newAuthRequest{
		Name:             req.PinName(),
		Type:             authTypeKeypadCode,
		Code:             code,
		AllowedFromDate:  FormatAPITime(start),
		AllowedUntilDate: FormatAPITime(end),
		AllowedWeekDays:  allWeekDays,
	}

	if req.DryRun {
		logging.Logger(c.ctx).WithField("lock", req.LockID).Infof("dry run, header: %v", c.obfuscatedHeaders(true))
		logging.Logger(c.ctx).WithField("lock", req.LockID).Infof("dry run, data: %+v", authReq)
		return pin, nil
	}

	op := "set key on " + req.LockID
	resp, err := c.do(op, http.MethodPut, authReq, "smartlock", req.LockID, "auth")
	if err != nil {
		return pin, err
	}

	return pin, c.checkStatus(op, resp)
}

func (c *Live) AllLocks() ([]Smartlock, error) {
	op := "listing locks"
	resp, err := c.do(op, http.MethodGet, nil, "smartlock")
	if err != nil {
		return nil, err
	}

	if err := c.checkList(op, resp); err != nil {
		return nil, err
	}

	var entries []apiSmartlock
	if err := json.Unmarshal(resp.body, &entries); err != nil {
		return nil, c.badBody(op, resp, errors.Wrap(err, "decoding lock list"))
	}

	locks := make([]Smartlock, 0, len(entries))
	for _, e := range entries {
		locks = append(locks, Smartlock{ID: string(e.SmartlockID), Name: e.Name})
	}

	return locks, nil
}

// SmartlockByName returns the first lock whose name contains name, ignoring
// case
func (c *Live) SmartlockByName(name string) (*Smartlock, error) {
	locks, err := c.AllLocks()
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(name)
	for _, lock := range locks {
		if strings.Contains(strings.ToLower(lock.Name), needle) {
			l := lock
			return &l, nil
		}
	}

	return nil, notFound("finding lock", "no lock named like [%s]", name)
}

func (c *Live) SmartlockByID(id string) (*Smartlock, error) {
	locks, err := c.AllLocks()
	if err != nil {
		return nil, err
	}

	for _, lock := range locks {
		if lock.ID == id {
			l := lock
			return &l, nil
		}
	}

	return nil, notFound("finding lock", "no lock with ID [%s]", id)
}

func (c *Live) listAuths(op string, lockID string) ([]Pin, error) {
	resp, err := c.do(op, http.MethodGet, nil, "smartlock", lockID, "auth")
	if err != nil {
		return nil, err
	}

	if err := c.checkList(op, resp); err != nil {
		return nil, err
	}

	pins, err := parsePins(resp.body)
	if err != nil {
		return nil, c.badBody(op, resp, err)
	}

	return pins, nil
}

// GetPin returns the pin on the lock whose name is exactly pinName
func (c *Live) GetPin(lockID string, pinName string) (*Pin, error) {
	pins, err := c.listAuths("fetching pins of "+lockID, lockID)
	if err != nil {
		return nil, err
	}

	for _, p := range pins {
		if p.Name == pinName {
			pin := p
			return &pin, nil
		}
	}

	return nil, notFound("finding pin", "no pin named [%s] on lock %s", pinName, lockID)
}

// AllPins returns every pin on the lock, in the order the API lists them
func (c *Live) AllPins(lockID string) ([]Pin, error) {
	return c.listAuths("fetching pins of "+lockID, lockID)
}

func (c *Live) DeletePin(lockID string, pinID string) error {
	op := "deleting pin " + pinID + " on " + lockID
	resp, err := c.do(op, http.MethodDelete, nil, "smartlock", lockID, "auth", pinID)
	if err != nil {
		return err
	}

	return c.checkStatus(op, resp)
}

type deactivateRequest struct {
	Enable bool `json:"enable"`
}

// DeactivatePin disables a pin without deleting it
func (c *Live) DeactivatePin(lockID string, pinID string) error {
	op := "deactivating pin " + pinID + " on " + lockID
	resp, err := c.do(op, http.MethodPost, deactivateRequest{Enable: false}, "smartlock", lockID, "auth", pinID)
	if err != nil {
		return err
	}

	return c.checkStatus(op, resp)
}

// UpdatePin sends newValues as they are, the API decides which fields it
// accepts
func (c *Live) UpdatePin(lockID string, pinID string, newValues map[string]interface{}) error {
	if newValues == nil {
		newValues = map[string]interface{}{}
	}

	op := "updating pin " + pinID + " on " + lockID
	resp, err := c.do(op, http.MethodPost, newValues, "smartlock", lockID, "auth", pinID)
	if err != nil {
		return err
	}

	return c.checkStatus(op, resp)
}
