package middlewares

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/jake-scott/nuki-checkin/internal/pkg/logging"
)

const TxnIDHeader = "X-Txn-ID"

// captures the status code and size of a response, optionally logging the
// body as it is written
type responseWriterEx struct {
	http.ResponseWriter

	statusCode       int
	size             int
	logData          bool
	ctx              context.Context
	hasLoggedHeaders bool
}

func newResponseWriterEx(ctx context.Context, logData bool, rw http.ResponseWriter) *responseWriterEx {
	return &responseWriterEx{
		ResponseWriter: rw,
		statusCode:     http.StatusOK,
		logData:        logData,
		ctx:            ctx,
	}
}

func (rw *responseWriterEx) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriterEx) Write(b []byte) (int, error) {
	if rw.logData && !rw.hasLoggedHeaders {
		logging.Logger(rw.ctx).Debugf("wrote headers: %+v", rw.ResponseWriter.Header())
		rw.hasLoggedHeaders = true
	}

	size, err := rw.ResponseWriter.Write(b)
	rw.size += size

	if err == nil && rw.logData {
		logging.Logger(rw.ctx).Debugf("wrote %d bytes: %s", size, b[:size])
	}
	return size, err
}

// Wrapper around a request body that logs every read
type loggingReader struct {
	io.ReadCloser
	ctx context.Context
}

func (lr loggingReader) Read(b []byte) (size int, err error) {
	size, err = lr.ReadCloser.Read(b)
	if size > 0 {
		logging.Logger(lr.ctx).Debugf("read %d bytes: --:--%s--:--", size, b[:size])
	}

	return size, err
}

// LoggingMw assigns each request a transaction ID and writes an audit record
// once it has been served
type LoggingMw struct {
	logRequests bool
	next        http.Handler
}

func NewLoggingMw(logRequests bool) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return NewLogging(logRequests, next)
	}
}

func NewLogging(logRequests bool, next http.Handler) *LoggingMw {
	return &LoggingMw{next: next, logRequests: logRequests}
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return ""
}

func (mw *LoggingMw) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	txnID := uuid.New().String()
	startTime := time.Now()

	// Set before anything writes the response body
	rw.Header().Set(TxnIDHeader, txnID)

	r = r.WithContext(logging.WithTxnID(r.Context(), txnID))

	if mw.logRequests {
		logging.Logger(r.Context()).Debugf("request headers: %+v", r.Header)
		r.Body = loggingReader{ReadCloser: r.Body, ctx: r.Context()}
	}

	rwex := newResponseWriterEx(r.Context(), mw.logRequests, rw)
	mw.next.ServeHTTP(rwex, r)

	fields := logrus.Fields{
		"entrytype": "audit",
		"status":    rwex.statusCode,
		"method":    r.Method,
		"proto":     r.Proto,
		"host":      r.Host,
		"remote":    r.RemoteAddr,
		"start":     startTime.Format(time.RFC3339Nano),
		"duration":  time.Since(startTime),
		"path":      r.URL.String(),
		"route":     routeTemplate(r),
		"size":      rwex.size,
	}
	if lockID, ok := mux.Vars(r)["lockID"]; ok {
		fields["lock"] = lockID
	}

	logging.Logger(r.Context()).WithFields(fields).Info(http.StatusText(rwex.statusCode))
}
