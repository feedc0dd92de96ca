package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/exchangesets/fsstransfer/internal/debug"
	"github.com/exchangesets/fsstransfer/internal/fss"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		debug.Log("encoding response failed: %v", err)
	}
}

// writeClientError sends the error document used for rejected block lists.
func writeClientError(w http.ResponseWriter, status int, msg string, blockIDs []string) {
	writeJSON(w, status, fss.ClientError{Message: msg, BlockIDs: blockIDs})
}

// writeServerError sends the error document used by all other endpoints.
func writeServerError(w http.ResponseWriter, r *http.Request, status int, source, description string) {
	writeJSON(w, status, fss.ServerError{
		CorrelationID: r.Header.Get(fss.CorrelationHeader),
		Errors:        []fss.ErrorDetail{{Source: source, Description: description}},
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

// correlationMiddleware echoes the correlation id of the request, assigning
// a new one if the client did not send any.
func correlationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(fss.CorrelationHeader)
		if id == "" {
			id = fss.NewCorrelationID()
			r.Header.Set(fss.CorrelationHeader, id)
		}
		w.Header().Set(fss.CorrelationHeader, id)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(fss.WithCorrelationID(r.Context(), id)))
		debug.Log("%v %v -> %d in %v [%v]", r.Method, r.URL.EscapedPath(), rec.status, time.Since(start), id)
	})
}
