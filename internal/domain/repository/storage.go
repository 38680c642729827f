package repository

import (
	"context"
	"io"
)

// ObjectStorage keeps synthesized speech so repeated texts are served
// without another provider call. Keys are opaque paths chosen by the caller.
type ObjectStorage interface {
	Upload(ctx context.Context, key string, reader io.Reader, contentType string) error

	// Download returns ErrObjectNotFound for an unknown key.
	// Caller is responsible for closing the returned ReadCloser.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	Exists(ctx context.Context, key string) (bool, error)
}
