package ingest

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Chunk sizing bounds.
const (
	DefaultChunkSize = 10000
	MinChunkSize     = 100
	MaxChunkSize     = 1_000_000
	// RecordFootprint is the estimated resident size of one buffered record
	// including its resolver and batch bookkeeping.
	RecordFootprint = 2 * 1024
)

// PlanChunkSize returns the explicit chunk size when positive, otherwise one
// derived from a humanized memory budget such as "256MB".
func PlanChunkSize(chunkSize int, memoryBudget string) (int, error) {
	if chunkSize > 0 {
		return chunkSize, nil
	}
	if memoryBudget == "" {
		return DefaultChunkSize, nil
	}
	budget, err := humanize.ParseBytes(memoryBudget)
	if err != nil {
		return 0, fmt.Errorf("parse memory budget %q: %w", memoryBudget, err)
	}
	n := int(budget / RecordFootprint)
	switch {
	case n < MinChunkSize:
		n = MinChunkSize
	case n > MaxChunkSize:
		n = MaxChunkSize
	}
	return n, nil
}
