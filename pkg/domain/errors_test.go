package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestEntityNotFoundMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("resolve: %w", ErrEntityNotFound{Entity: "alias", Key: "symbol:ABC"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound match")
	}
	var nf ErrEntityNotFound
	if !errors.As(err, &nf) || nf.Key != "symbol:ABC" {
		t.Fatalf("expected typed error, got %v", err)
	}
}

func TestPhaseErrorUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := error(&PhaseError{Source: "BioGRID", Phase: "interactions", Err: cause})
	if !errors.Is(err, cause) {
		t.Fatalf("cause lost")
	}
	if got := err.Error(); got != "BioGRID [interactions]: disk full" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestIsFatal(t *testing.T) {
	cases := map[error]bool{
		fmt.Errorf("x: %w", ErrUnknownSource):     true,
		fmt.Errorf("x: %w", ErrCorruptCheckpoint): true,
		InvalidRecordf("row %d", 4):               false,
		ErrSourceMissing:                          false,
	}
	for err, want := range cases {
		if IsFatal(err) != want {
			t.Errorf("IsFatal(%v) = %v", err, !want)
		}
	}
	if !errors.Is(InvalidRecordf("row %d", 4), ErrInvalidRecord) {
		t.Fatalf("InvalidRecordf must wrap ErrInvalidRecord")
	}
}

func TestCountersAndStatus(t *testing.T) {
	sum := Counters{Processed: 3, Applied: 2, Skipped: 1}.Add(Counters{Processed: 2, Unresolved: 1, Conflicts: 4})
	if sum != (Counters{Processed: 5, Applied: 2, Skipped: 1, Unresolved: 1, Conflicts: 4}) {
		t.Fatalf("unexpected sum %+v", sum)
	}
	if !CheckpointFailed.Resumable() || !CheckpointInProgress.Resumable() || CheckpointCompleted.Resumable() {
		t.Fatalf("unexpected resumable states")
	}
	if !(AttributePatch{}).Empty() {
		t.Fatalf("zero patch must be empty")
	}
	symbol := "PINK1"
	if (AttributePatch{GeneSymbol: &symbol}).Empty() {
		t.Fatalf("patch with a symbol is not empty")
	}
}
