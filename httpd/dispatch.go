package httpd

import (
	"encoding/json"
	"net/http"

	"github.com/mapcloud/tileserver/apperr"
)

// writeError maps err to its HTTP status and writes a minimal JSON
// body, never leaking internal detail (stack traces, SQL fragments,
// filesystem paths) past the Cause field, which this function never
// serializes.
func writeError(w http.ResponseWriter, err error) {
	e, ok := apperr.As(err)
	if !ok {
		e = apperr.New(apperr.KindFatal, "internal error")
	}
	status := e.Kind.Status()
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	if e.Kind == apperr.KindOverload {
		w.Header().Set("Retry-After", "1")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apperr.Body{Error: string(e.Kind), Message: e.Message})
}

// methodNotAllowed writes the 405 response for any method outside
// GET/HEAD/OPTIONS.
func methodNotAllowed(w http.ResponseWriter) {
	w.Header().Set("Allow", "GET, HEAD, OPTIONS")
	w.WriteHeader(http.StatusMethodNotAllowed)
}

// writeBlob writes a tile/asset payload with the given cache policy,
// honoring HEAD by omitting the body.
func writeBlob(w http.ResponseWriter, r *http.Request, contentType, contentEncoding, cacheControl string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	if contentEncoding != "" && contentEncoding != "identity" {
		w.Header().Set("Content-Encoding", contentEncoding)
	}
	w.Header().Set("Cache-Control", cacheControl)
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(body)
	}
}

// writeJSON writes a JSON body with a cache policy, honoring HEAD.
func writeJSON(w http.ResponseWriter, r *http.Request, cacheControl string, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", cacheControl)
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_ = json.NewEncoder(w).Encode(v)
	}
}
