// Package storage defines the object store that keeps the durable copies of
// uploaded datasets: the raw upload bytes and the parquet archive segments.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

type PutOptions struct {
	ContentType string
}

// ObjectStore is write-side only. Queries always go through the dataset
// store; nothing in the product reads archived objects back, so there is no
// Get.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	// List returns the objects under a key prefix, for whole-dataset cleanup.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}
