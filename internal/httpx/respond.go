// Package httpx holds the small set of JSON request/response helpers shared
// by the gateway and analytics HTTP handlers.
package httpx

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// maxBody caps decoded request bodies at 4 MiB: large enough for a batch of
// a few thousand telemetry records, small enough to bound one bad request.
const maxBody = 4 << 20

// jsonCT is a pre-allocated header value slice so a direct map assignment
// can skip the []string{v} alloc Header.Set does.
var jsonCT = []string{"application/json"}

// apiError is the error envelope every handler in this module returns.
type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// ErrorResponse builds the JSON error envelope for msg.
func ErrorResponse(msg string) any {
	var e apiError
	e.Error.Message = msg
	return e
}

// WriteJSON marshals v and writes it with status, logging (and swallowing)
// any encode failure rather than panicking mid-response.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode response", "error", err)
		return
	}
	w.Header()["Content-Type"] = jsonCT
	w.WriteHeader(status)
	w.Write(data)
}

// DecodeJSON limits the body to maxBody and decodes it into v, writing a
// 400 and returning false on failure.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteJSON(w, http.StatusBadRequest, ErrorResponse("invalid request body"))
		return false
	}
	return true
}
