package handlers

import (
	"net/http"
	"sort"

	"github.com/gorilla/mux"

	"github.com/jake-scott/nuki-checkin/internal/pkg/nukiapi"
)

/*
 * LockHandler exposes the locks and pins of the Nuki account to front-desk
 * tooling.  Every request runs one or more Web API calls bound to the
 * request's context.
 */

type LockHandler struct {
	api           nukiapi.WebAPI
	maxConcurrent int
}

func NewLockHandler(api nukiapi.WebAPI, maxConcurrent int) LockHandler {
	return LockHandler{
		api:           api,
		maxConcurrent: maxConcurrent,
	}
}

// Register adds the lock and pin routes to r
func (h *LockHandler) Register(r *mux.Router) {
	r.HandleFunc("/locks", h.listLocks).Methods(http.MethodGet)
	r.HandleFunc("/locks/{lockID}", h.getLock).Methods(http.MethodGet)
	r.HandleFunc("/locks/{lockID}/pins", h.listPins).Methods(http.MethodGet)
	r.HandleFunc("/locks/{lockID}/pins", h.setKey).Methods(http.MethodPut)
	r.HandleFunc("/locks/{lockID}/pins/{pinID}", h.updatePin).Methods(http.MethodPost)
	r.HandleFunc("/locks/{lockID}/pins/{pinID}", h.deletePin).Methods(http.MethodDelete)
	r.HandleFunc("/locks/{lockID}/pins/{pinID}/deactivate", h.deactivatePin).Methods(http.MethodPost)
	r.HandleFunc("/pins", h.allPins).Methods(http.MethodGet)
}

func (h *LockHandler) client(r *http.Request) nukiapi.WebAPI {
	return h.api.WithContext(r.Context())
}

func lockMaps(locks []nukiapi.Smartlock) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(locks))
	for _, l := range locks {
		out = append(out, l.ToMap())
	}
	return out
}

func pinMaps(pins []nukiapi.Pin) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(pins))
	for _, p := range pins {
		out = append(out, p.ToMap())
	}
	return out
}

// GET /locks[?name=<part of name>][&sort=apartment]
func (h *LockHandler) listLocks(w http.ResponseWriter, r *http.Request) {
	if name := r.URL.Query().Get("name"); name != "" {
		lock, err := h.client(r).SmartlockByName(name)
		if err != nil {
			sendAPIErrorResponse(w, r, err)
			return
		}
		sendJSONResponse(w, r, http.StatusOK, lock.ToMap())
		return
	}

	locks, err := h.client(r).AllLocks()
	if err != nil {
		sendAPIErrorResponse(w, r, err)
		return
	}

	if r.URL.Query().Get("sort") == "apartment" {
		sort.Stable(nukiapi.ByApartment(locks))
	}

	sendJSONResponse(w, r, http.StatusOK, lockMaps(locks))
}

func (h *LockHandler) getLock(w http.ResponseWriter, r *http.Request) {
	lock, err := h.client(r).SmartlockByID(mux.Vars(r)["lockID"])
	if err != nil {
		sendAPIErrorResponse(w, r, err)
		return
	}

	sendJSONResponse(w, r, http.StatusOK, lock.ToMap())
}

// GET /locks/{lockID}/pins[?name=<exact pin name>]
func (h *LockHandler) listPins(w http.ResponseWriter, r *http.Request) {
	lockID := mux.Vars(r)["lockID"]

	if name := r.URL.Query().Get("name"); name != "" {
		pin, err := h.client(r).GetPin(lockID, name)
		if err != nil {
			sendAPIErrorResponse(w, r, err)
			return
		}
		sendJSONResponse(w, r, http.StatusOK, pin.ToMap())
		return
	}

	pins, err := h.client(r).AllPins(lockID)
	if err != nil {
		sendAPIErrorResponse(w, r, err)
		return
	}

	sendJSONResponse(w, r, http.StatusOK, pinMaps(pins))
}

// GET /pins returns the pins of every lock, keyed by lock ID
func (h *LockHandler) allPins(w http.ResponseWriter, r *http.Request) {
	api := h.client(r)

	locks, err := api.AllLocks()
	if err != nil {
		sendAPIErrorResponse(w, r, err)
		return
	}

	byLock, err := nukiapi.CollectPins(api, locks, h.maxConcurrent)
	if err != nil {
		sendAPIErrorResponse(w, r, err)
		return
	}

	out := make(map[string][]map[string]interface{}, len(byLock))
	for lockID, pins := range byLock {
		out[lockID] = pinMaps(pins)
	}

	sendJSONResponse(w, r, http.StatusOK, out)
}
