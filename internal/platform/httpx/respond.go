// Package httpx holds the JSON and RFC7807 response conventions of the
// ledger API.
package httpx

import (
	"encoding/json"
	"net/http"
)

// maxBodyBytes caps request bodies; ledger payloads are small.
const maxBodyBytes = 1 << 20

// ProblemDetail is the RFC7807 body every error response carries.
type ProblemDetail struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// JSON writes data as application/json with the given status. Encoding
// failures are dropped; the status line is already on the wire.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// NoContent writes an empty 204 response.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Problem writes an RFC7807 response using the problem+json media type.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ProblemDetail{
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// DecodeJSON fills target from the request body, capped at maxBodyBytes.
func DecodeJSON(r *http.Request, target any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(target)
}
