package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by store implementations and ingestion components.
var (
	// ErrNotFound reports a missing entity.
	ErrNotFound = errors.New("not found")
	// ErrUnknownSource is a fatal configuration error: no declaration exists for the name.
	ErrUnknownSource = errors.New("unknown data source")
	// ErrSourceMissing reports that a declared source file is not present.
	ErrSourceMissing = errors.New("source file missing")
	// ErrCorruptCheckpoint is a fatal configuration error: persisted progress cannot be decoded.
	ErrCorruptCheckpoint = errors.New("corrupt checkpoint data")
	// ErrInvalidRecord marks a record that is skipped and counted rather than failing the run.
	ErrInvalidRecord = errors.New("invalid record")
	// ErrSelfInteraction marks an interaction whose two ends resolve to one protein.
	ErrSelfInteraction = errors.New("self interaction")
	// ErrAliasConflict marks an alias whose binding disagrees with a supplied hint.
	// It is resolved by policy and never fails an ingestion.
	ErrAliasConflict = errors.New("alias conflict")
)

// ErrEntityNotFound identifies the missing entity by kind and key.
type ErrEntityNotFound struct {
	Entity string
	Key    string
}

func (e ErrEntityNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

// Is lets errors.Is match ErrNotFound.
func (e ErrEntityNotFound) Is(target error) bool {
	return target == ErrNotFound
}

// PhaseError attaches the failing source and phase to a transient or store error.
type PhaseError struct {
	Source string
	Phase  string
	Err    error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s [%s]: %v", e.Source, e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// InvalidRecordf builds a format error that wraps ErrInvalidRecord.
func InvalidRecordf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRecord, fmt.Sprintf(format, args...))
}

// IsFatal reports whether err must abort a run without touching checkpoints.
func IsFatal(err error) bool {
	return errors.Is(err, ErrUnknownSource) || errors.Is(err, ErrCorruptCheckpoint)
}
