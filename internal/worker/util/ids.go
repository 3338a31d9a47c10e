// Package util holds small helpers shared by the worker packages.
package util

import "github.com/google/uuid"

// NewID returns a prefixed random id, e.g. "job_0b9f...".
func NewID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

// NewSessionID returns a stream correlation token. Every job gets its own.
func NewSessionID() string {
	return uuid.NewString()
}
