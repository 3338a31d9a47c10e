// Package httpkit holds small HTTP helpers shared by the trigger API handlers.
package httpkit

import (
	"encoding/json"
	"net/http"

	"renderbridge/internal/pkg/errors"
)

// MaxBodyBytes caps JSON request bodies. Inline graphs and base64 images can
// be large, so this is generous.
const MaxBodyBytes = 96 << 20

// DecodeJSON decodes the request body into v. Unknown fields are ignored so
// callers can send the render server's full job envelope.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return errors.WrapWithCode(err, errors.CodeBadRequest, "request.decode", "invalid JSON body")
	}
	return nil
}

// WriteJSON writes body as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
