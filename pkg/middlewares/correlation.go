package middlewares

import (
	"net/http"
	"regexp"

	"github.com/gorilla/mux"

	"github.com/jake-scott/nuki-checkin/internal/pkg/logging"
)

const badCorrelationID = "<Bad_Correlation_Id>"

var correlationIDRegexp = regexp.MustCompile(`^[\w-]{3,64}$`)

// CorrelationMw echoes the caller's correlation ID header and makes it
// available to the request logger
type CorrelationMw struct {
	headerName string
	next       http.Handler
}

func NewCorrelationMw(headerName string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return NewCorrelation(headerName, next)
	}
}

func NewCorrelation(headerName string, next http.Handler) *CorrelationMw {
	return &CorrelationMw{headerName: http.CanonicalHeaderKey(headerName), next: next}
}

func (mw *CorrelationMw) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if id, ok := mw.validateID(r); ok {
		rw.Header().Set(mw.headerName, id)
		r = r.WithContext(logging.WithCorrelationID(r.Context(), id))
	}

	mw.next.ServeHTTP(rw, r)
}

func (mw *CorrelationMw) validateID(r *http.Request) (string, bool) {
	ids, ok := r.Header[mw.headerName]
	if !ok || len(ids) == 0 {
		return "", false
	}

	if correlationIDRegexp.MatchString(ids[0]) {
		return ids[0], true
	}

	return badCorrelationID, true
}
