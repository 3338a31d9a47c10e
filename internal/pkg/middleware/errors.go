package middleware

import (
	"encoding/json"
	"net/http"

	"renderbridge/internal/pkg/errors"
	"renderbridge/internal/pkg/logger"
)

// ErrorHandlerFunc is a handler that reports failure by returning an error.
type ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request) error

// WrapHandler adapts fn to http.HandlerFunc; a returned error goes through
// HandleError.
func WrapHandler(log *logger.Logger, fn ErrorHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			HandleError(w, r, log, err)
		}
	}
}

// HandleError logs err with its code and fields and writes the JSON error
// body. Server-side failures also log the stack where the error was built.
func HandleError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	code := errors.GetCode(err)
	status := code.HTTPStatus()
	fields := errors.GetFields(err)

	args := []any{
		"error", err.Error(),
		"code", string(code),
		"status", status,
		"method", r.Method,
		"path", r.URL.Path,
	}
	for k, v := range fields {
		args = append(args, k, v)
	}

	reqLog := log.FromContext(r.Context())
	if status < 500 {
		reqLog.Warn("request error", args...)
	} else {
		var coded *errors.Error
		if errors.As(err, &coded) && len(coded.Stack) > 0 {
			args = append(args, "stack", coded.StackTrace())
		}
		reqLog.Error("request failed", args...)
	}

	WriteErrorResponse(w, code, err.Error(), fields)
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    errors.Code    `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// WriteErrorResponse writes {"error": {code, message, details}} with the
// status of code. Error values in details are written as their message.
func WriteErrorResponse(w http.ResponseWriter, code errors.Code, message string, details map[string]any) {
	var out map[string]any
	if len(details) > 0 {
		out = make(map[string]any, len(details))
		for k, v := range details {
			if e, ok := v.(error); ok {
				v = e.Error()
			}
			out[k] = v
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code.HTTPStatus())
	_ = json.NewEncoder(w).Encode(errorBody{Error: errorDetail{Code: code, Message: message, Details: out}})
}
