// Package server - HTTP detection service with optional result storage and
// event publishing.
package server

import (
	"context"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

// ErrNotFound is returned by a Store for unknown or expired result ids.
var ErrNotFound = errors.New("result not found")

// Result is the outcome of one detection request.
type Result struct {
	// ID identifies the request, a random UUID.
	ID string `json:"id"`
	// Timestamp is the completion time in Unix milliseconds.
	Timestamp  int64                   `json:"timestamp"`
	Format     images.ImageFormat      `json:"format"`
	Width      int                     `json:"width"`
	Height     int                     `json:"height"`
	Detections []postprocess.Detection `json:"detections"`
}

// Store keeps results so they can be fetched by id.
type Store interface {
	Put(ctx context.Context, result Result) error
	// Get returns ErrNotFound when the id is unknown.
	Get(ctx context.Context, id string) (Result, error)
}

// Publisher emits a result to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, result Result) error
}
