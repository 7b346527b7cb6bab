package sources

import (
	"errors"
	"io"

	"mitonet/pkg/domain"
)

// Skip consumes n records from p, including ones that fail to parse, so a
// resumed run continues at the first record not covered by a committed chunk.
// It returns io.ErrUnexpectedEOF when the source holds fewer than n records.
func Skip(p Parser, n int64) error {
	for i := int64(0); i < n; i++ {
		_, err := p.Next()
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return io.ErrUnexpectedEOF
		case Skippable(err):
		default:
			return err
		}
	}
	return nil
}

// Skippable reports whether err consumed one record that should be counted
// as skipped rather than failing the run.
func Skippable(err error) bool {
	return errors.Is(err, ErrFiltered) || errors.Is(err, domain.ErrInvalidRecord)
}
