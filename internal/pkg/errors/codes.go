package errors

import "net/http"

// Code categorizes an error. It is stable API: clients match on it.
type Code string

const (
	CodeInternal        Code = "INTERNAL_ERROR"
	CodeValidation      Code = "VALIDATION_ERROR"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeForbidden       Code = "FORBIDDEN"
	CodeTimeout         Code = "TIMEOUT"
	CodeUnavailable     Code = "UNAVAILABLE"
	CodeBadRequest      Code = "BAD_REQUEST"
	CodeAlreadyExists   Code = "ALREADY_EXISTS"
	CodeFailedPrecond   Code = "FAILED_PRECONDITION"
	CodeResourceExhaust Code = "RESOURCE_EXHAUSTED"

	// Render pipeline codes.
	CodeAcquisition        Code = "ACQUISITION_ERROR"
	CodeUpload             Code = "UPLOAD_ERROR"
	CodeSubmission         Code = "SUBMISSION_ERROR"
	CodeExecution          Code = "EXECUTION_ERROR"
	CodeStreamDisconnected Code = "STREAM_DISCONNECTED"
)

// httpStatus maps codes to API statuses. Render-server side failures answer
// 502 since the bridge itself is healthy.
var httpStatus = map[Code]int{
	CodeValidation:         http.StatusBadRequest,
	CodeBadRequest:         http.StatusBadRequest,
	CodeUnauthorized:       http.StatusUnauthorized,
	CodeForbidden:          http.StatusForbidden,
	CodeNotFound:           http.StatusNotFound,
	CodeConflict:           http.StatusConflict,
	CodeAlreadyExists:      http.StatusConflict,
	CodeFailedPrecond:      http.StatusPreconditionFailed,
	CodeAcquisition:        http.StatusUnprocessableEntity,
	CodeResourceExhaust:    http.StatusTooManyRequests,
	CodeTimeout:            http.StatusGatewayTimeout,
	CodeUnavailable:        http.StatusServiceUnavailable,
	CodeUpload:             http.StatusBadGateway,
	CodeSubmission:         http.StatusBadGateway,
	CodeExecution:          http.StatusBadGateway,
	CodeStreamDisconnected: http.StatusBadGateway,
}

// HTTPStatus returns the response status for c. Unknown codes are 500.
func (c Code) HTTPStatus() int {
	if s, ok := httpStatus[c]; ok {
		return s
	}
	return http.StatusInternalServerError
}
