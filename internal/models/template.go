package models

import (
	"time"

	contracts "renderbridge/internal/contracts/renderserver"
)

// Template is a stored job graph that requests can reference by id.
type Template struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Graph       contracts.Graph `json:"graph,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	DeletedAt   *time.Time      `json:"deleted_at,omitempty"`
}
