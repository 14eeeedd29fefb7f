package model

import (
	"context"
	"io"
)

// ObjectStorage stores immutable blobs such as archived audit events.
type ObjectStorage interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)
}
