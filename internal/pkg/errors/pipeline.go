package errors

import "fmt"

// Constructors for failures along the render pipeline. Each records the
// pipeline step in Op so logs group by stage.

// Acquisition is an input image that could not be fetched or decoded.
func Acquisition(source string, err error) *Error {
	return build(CodeAcquisition, "input.acquire", "failed to acquire input image", err).
		WithField("source", source)
}

// Upload is an input the render server refused to store.
func Upload(name string, err error) *Error {
	return build(CodeUpload, "input.upload", fmt.Sprintf("failed to upload `%s`", name), err).
		WithField("name", name)
}

// Unreachable is a render server that never answered its liveness probe.
func Unreachable(host string, attempts int) *Error {
	return build(CodeUnavailable, "server.probe", fmt.Sprintf("render server (%s) not reachable after %d attempts", host, attempts), nil).
		WithFields(map[string]any{"host": host, "attempts": attempts})
}

// Submission is a job the render server did not accept.
func Submission(message string) *Error {
	return build(CodeSubmission, "", message, nil)
}

// Execution is a node-level failure reported by the render server.
func Execution(message string) *Error {
	return build(CodeExecution, "", message, nil)
}

// StreamDisconnected is a notification stream that could not be recovered.
func StreamDisconnected(message string, err error) *Error {
	return build(CodeStreamDisconnected, "stream.reconnect", message, err)
}
