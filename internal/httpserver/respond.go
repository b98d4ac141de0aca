package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/wisbric/urumi-provisioner/internal/apierr"
)

// envelope is the success-response shape: {"success": true, "data": ...}.
type envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

// errorEnvelope is the failure-response shape: {"success": false, "error": {...}}.
type errorEnvelope struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

type errorBody struct {
	Code    apierr.Code `json:"code"`
	Message string      `json:"message"`
	Details any         `json:"details,omitempty"`
}

// Respond writes data wrapped in the success envelope.
func Respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

// RespondErr writes err's status, code and sanitized message wrapped in the
// error envelope. If err is not an *apierr.Error it is treated as internal.
func RespondErr(w http.ResponseWriter, err error) {
	apiErr, ok := apierr.As(err)
	if !ok {
		apiErr = apierr.Internal(err)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(apiErr.Status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Success: false,
		Error: errorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Details: apiErr.Details,
		},
	})
}

// RespondError is a convenience constructor for ad-hoc errors that don't
// already carry an *apierr.Error, e.g. malformed request bodies.
func RespondError(w http.ResponseWriter, status int, code apierr.Code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Success: false,
		Error:   errorBody{Code: code, Message: message},
	})
}
