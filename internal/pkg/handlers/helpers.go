package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	oaerrors "github.com/go-openapi/errors"
	"github.com/go-openapi/runtime/middleware/header"
	"github.com/pkg/errors"

	"github.com/jake-scott/nuki-checkin/internal/pkg/logging"
	"github.com/jake-scott/nuki-checkin/internal/pkg/nukiapi"
)

func sendJSONResponse(w http.ResponseWriter, r *http.Request, status int, d interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	if err := enc.Encode(d); err != nil {
		logging.Logger(r.Context()).WithError(err).Error("sending json response")
	}
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if r.Header.Get("Content-Type") != "" {
		value, _ := header.ParseValueAndParams(r.Header, "Content-Type")
		if value != "application/json" {
			return fmt.Errorf("expected JSON request, got %s", value)
		}
	}

	// 100kb max body
	reader := http.MaxBytesReader(w, r.Body, 100*1024)
	dec := json.NewDecoder(reader)

	if err := dec.Decode(dst); err != nil {
		return err
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("request body must only contain a single JSON object")
	}

	return nil
}

// upstream statuses that describe a problem with the caller's request
var passThroughStatus = map[int]bool{
	http.StatusBadRequest:          true,
	http.StatusNotFound:            true,
	http.StatusConflict:            true,
	http.StatusUnprocessableEntity: true,
}

// toHTTPError maps a client error to the status we answer with
func toHTTPError(err error) oaerrors.Error {
	var apiErr *nukiapi.APIError
	if !errors.As(err, &apiErr) {
		return oaerrors.New(http.StatusInternalServerError, "%s", err.Error())
	}

	switch apiErr.Kind {
	case nukiapi.KindNotFound:
		return oaerrors.NotFound("%s", apiErr.Error())
	case nukiapi.KindTransport:
		if passThroughStatus[apiErr.StatusCode] {
			return oaerrors.New(int32(apiErr.StatusCode), "%s", apiErr.Error())
		}
	}

	return oaerrors.New(http.StatusBadGateway, "%s", apiErr.Error())
}

func sendAPIErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	logging.Logger(r.Context()).WithError(err).Error("calling the Nuki Web API")
	oaerrors.ServeError(w, r, toHTTPError(err))
}

func sendBadRequest(w http.ResponseWriter, r *http.Request, err error) {
	logging.Logger(r.Context()).WithError(err).Warn("bad request")
	oaerrors.ServeError(w, r, oaerrors.New(http.StatusBadRequest, "%s", err.Error()))
}
