// Package remote moves encrypted containers to and from the storage backend.
package remote

import (
	"context"
	"io"
	"time"
)

// Object describes one stored container.
type Object struct {
	Key          string
	Name         string
	Size         int64
	LastModified time.Time
}

// Client is the backend surface used by the pipeline and the CLI. Upload
// matches the transfer pipeline's collaborator signature, so a Client can be
// handed to the orchestrator directly.
type Client interface {
	// Upload streams a container of the given size and returns its storage key.
	Upload(ctx context.Context, name string, r io.Reader, size int64) (string, error)

	// Download streams the object at key into w.
	Download(ctx context.Context, key string, w io.Writer) (int64, error)

	// List returns the stored containers, newest first.
	List(ctx context.Context) ([]Object, error)

	// Delete removes the object at key.
	Delete(ctx context.Context, key string) error

	// Verify checks that the backend is reachable and the bucket exists.
	Verify(ctx context.Context) error
}
