// Package core defines the read-side abstraction over the locations that
// hold raw source files.
package core

import (
	"context"
	"errors"
	"io"
	"time"
)

// Driver identifies a concrete source location backend.
type Driver string

const (
	// DriverFilesystem reads files below a local directory.
	DriverFilesystem Driver = "fs"
	// DriverS3 reads objects from an S3 / MinIO compatible bucket.
	DriverS3 Driver = "s3"
	// DriverMemory keeps objects in process memory (tests).
	DriverMemory Driver = "memory"
)

// Info describes a stored source file.
type Info struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size_bytes"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// Store provides read access to raw source files by key.
type Store interface {
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() Driver
}

// ErrNotFound reports a key with no stored file.
var ErrNotFound = errors.New("blob: not found")
