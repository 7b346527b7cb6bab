// Package blob opens the configured source location backend.
package blob

import (
	"context"
	"fmt"

	"mitonet/internal/blob/core"
	"mitonet/internal/infra/blob/fs"
	"mitonet/internal/infra/blob/memory"
	"mitonet/internal/infra/blob/s3"
)

// Re-exported names so callers only import this package.
type (
	Store  = core.Store
	Info   = core.Info
	Driver = core.Driver
)

// Driver identifiers.
const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

// ErrNotFound reports a key with no stored file.
var ErrNotFound = core.ErrNotFound

// Options selects and parameterises a backend.
type Options struct {
	Driver string
	// Root is the directory served by the fs driver.
	Root string
	S3   s3.Config
}

// Open returns the backend named by opts.Driver (default fs).
func Open(ctx context.Context, opts Options) (Store, error) {
	driver := opts.Driver
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return fs.New(opts.Root)
	case DriverS3:
		return s3.New(ctx, opts.S3)
	case DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
