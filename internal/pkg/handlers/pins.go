package handlers

import (
	"net/http"
	"time"

	oaerrors "github.com/go-openapi/errors"
	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/validate"
	"github.com/gorilla/mux"

	"github.com/jake-scott/nuki-checkin/internal/pkg/logging"
	"github.com/jake-scott/nuki-checkin/internal/pkg/nukiapi"
	"github.com/jake-scott/nuki-checkin/internal/pkg/pincode"
)

type setKeyRequest struct {
	Name      string      `json:"name"`
	BeginDate strfmt.Date `json:"beginDate"`
	EndDate   strfmt.Date `json:"endDate"`
	CheckIn   string      `json:"checkIn"`
	CheckOut  string      `json:"checkOut"`
	Pin       string      `json:"pin,omitempty"`
	DryRun    bool        `json:"dryRun,omitempty"`
}

type setKeyResponse struct {
	LockID string `json:"lockId"`
	Name   string `json:"name"`
	Pin    string `json:"pin"`
	DryRun bool   `json:"dryRun"`
}

func (req *setKeyRequest) Validate() error {
	var res []error

	if err := validate.Required("beginDate", "body", req.BeginDate); err != nil {
		res = append(res, err)
	}
	if err := validate.Required("endDate", "body", req.EndDate); err != nil {
		res = append(res, err)
	}
	if err := validate.RequiredString("checkIn", "body", req.CheckIn); err != nil {
		res = append(res, err)
	}
	if err := validate.RequiredString("checkOut", "body", req.CheckOut); err != nil {
		res = append(res, err)
	}

	if req.Pin != "" {
		if err := validate.Pattern("pin", "body", req.Pin, `^[1-9]{6}$`); err != nil {
			res = append(res, err)
		} else if !pincode.Valid(req.Pin) {
			res = append(res, oaerrors.New(http.StatusUnprocessableEntity, "pin in body must not start with 12"))
		}
	}

	if time.Time(req.EndDate).Before(time.Time(req.BeginDate)) {
		res = append(res, oaerrors.New(http.StatusUnprocessableEntity, "endDate in body must not be before beginDate"))
	}

	if len(res) > 0 {
		return oaerrors.CompositeValidationError(res...)
	}
	return nil
}

// convert to a KeyRequest, dates are taken in the server's time zone
func (req *setKeyRequest) keyRequest(lockID string) (nukiapi.KeyRequest, error) {
	checkIn, err := nukiapi.ParseTimeOfDay(req.CheckIn)
	if err != nil {
		return nukiapi.KeyRequest{}, oaerrors.New(http.StatusUnprocessableEntity, "checkIn in body: %s", err)
	}
	checkOut, err := nukiapi.ParseTimeOfDay(req.CheckOut)
	if err != nil {
		return nukiapi.KeyRequest{}, oaerrors.New(http.StatusUnprocessableEntity, "checkOut in body: %s", err)
	}

	localDate := func(d strfmt.Date) time.Time {
		y, m, day := time.Time(d).Date()
		return time.Date(y, m, day, 0, 0, 0, 0, time.Local)
	}

	return nukiapi.KeyRequest{
		LockID:    lockID,
		BeginDate: localDate(req.BeginDate),
		EndDate:   localDate(req.EndDate),
		CheckIn:   checkIn,
		CheckOut:  checkOut,
		Name:      req.Name,
		Pin:       req.Pin,
		DryRun:    req.DryRun,
	}, nil
}

// PUT /locks/{lockID}/pins issues a new timed keypad code
func (h *LockHandler) setKey(w http.ResponseWriter, r *http.Request) {
	lockID := mux.Vars(r)["lockID"]

	var req setKeyRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		sendBadRequest(w, r, err)
		return
	}

	if err := req.Validate(); err != nil {
		oaerrors.ServeError(w, r, err)
		return
	}

	keyReq, err := req.keyRequest(lockID)
	if err != nil {
		oaerrors.ServeError(w, r, err)
		return
	}

	pin, err := h.client(r).SetKey(keyReq)
	if err != nil {
		sendAPIErrorResponse(w, r, err)
		return
	}

	status := http.StatusCreated
	verb := "issued"
	if req.DryRun {
		status = http.StatusOK
		verb = "dry run, not issued"
	}

	logging.Logger(r.Context()).WithField("lock", lockID).Infof("%s pin %q valid %s %s to %s %s",
		verb, keyReq.PinName(), req.BeginDate, keyReq.CheckIn, req.EndDate, keyReq.CheckOut)

	sendJSONResponse(w, r, status, setKeyResponse{
		LockID: lockID,
		Name:   keyReq.PinName(),
		Pin:    pin,
		DryRun: req.DryRun,
	})
}

// POST /locks/{lockID}/pins/{pinID} forwards the body as a partial update
func (h *LockHandler) updatePin(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var newValues map[string]interface{}
	if err := decodeJSONBody(w, r, &newValues); err != nil {
		sendBadRequest(w, r, err)
		return
	}

	if err := h.client(r).UpdatePin(vars["lockID"], vars["pinID"], newValues); err != nil {
		sendAPIErrorResponse(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *LockHandler) deactivatePin(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if err := h.client(r).DeactivatePin(vars["lockID"], vars["pinID"]); err != nil {
		sendAPIErrorResponse(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *LockHandler) deletePin(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if err := h.client(r).DeletePin(vars["lockID"], vars["pinID"]); err != nil {
		sendAPIErrorResponse(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
