// Package checkpoint persists phase-scoped ingestion progress so interrupted
// runs resume after their last committed chunk.
package checkpoint

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"mitonet/pkg/domain"
)

// Phases written by the ingestion manager.
const (
	PhaseAliases      = "aliases"
	PhaseInfo         = "info"
	PhaseInteractions = "interactions"
	PhaseAttributes   = "attributes"
)

// MaxErrorLen caps the stored error text.
const MaxErrorLen = 2000

// ErrNotStarted is returned when a transition is applied to a checkpoint that was never begun.
var ErrNotStarted = errors.New("checkpoint not started")

// Name returns the checkpoint key for a (source, phase) pair.
func Name(source, phase string) string {
	return source + ":" + phase
}

// Manager applies checkpoint lifecycle transitions through a store transaction.
type Manager struct {
	now func() time.Time
}

// NewManager returns a manager stamping transitions with now (time.Now when nil).
func NewManager(now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{now: now}
}

// Load reads the checkpoint for (source, phase). Undecodable progress data
// surfaces as domain.ErrCorruptCheckpoint.
func (m *Manager) Load(r domain.Reader, source, phase string) (domain.ProcessingCheckpoint, bool, error) {
	cp, ok, err := r.FindCheckpoint(Name(source, phase))
	if err != nil {
		return domain.ProcessingCheckpoint{}, false, err
	}
	return cp, ok, nil
}

// ResumePoint returns the progress to continue from when cp is a resumption
// point for the file identified by fingerprint.
func ResumePoint(cp domain.ProcessingCheckpoint, found bool, fingerprint string) (domain.Progress, bool) {
	if !found || !cp.Status.Resumable() {
		return domain.Progress{}, false
	}
	if cp.Data.Fingerprint == "" || cp.Data.Fingerprint != fingerprint {
		return domain.Progress{}, false
	}
	return cp.Data, true
}

// Begin marks the phase in progress. With resume set, the existing row keeps
// its creation time and progress continues from its data.
func (m *Manager) Begin(tx domain.Transaction, source, phase string, progress domain.Progress, resumed *domain.ProcessingCheckpoint) (domain.ProcessingCheckpoint, error) {
	cp := domain.ProcessingCheckpoint{
		Name:      Name(source, phase),
		Phase:     phase,
		Status:    domain.CheckpointInProgress,
		CreatedAt: m.now().UTC(),
		Data:      progress,
	}
	if resumed != nil {
		cp.CreatedAt = resumed.CreatedAt
	}
	stored, err := tx.SaveCheckpoint(cp)
	if err != nil {
		return domain.ProcessingCheckpoint{}, fmt.Errorf("begin checkpoint %s: %w", cp.Name, err)
	}
	return stored, nil
}

// Advance records progress after a chunk. It must run in the chunk's transaction.
func (m *Manager) Advance(tx domain.Transaction, cp domain.ProcessingCheckpoint, progress domain.Progress) (domain.ProcessingCheckpoint, error) {
	if cp.Name == "" {
		return cp, ErrNotStarted
	}
	cp.Status = domain.CheckpointInProgress
	cp.Data = progress
	cp.ErrorMessage = ""
	cp.CompletedAt = nil
	return save(tx, cp, "advance")
}

// Complete finalises the phase.
func (m *Manager) Complete(tx domain.Transaction, cp domain.ProcessingCheckpoint, progress domain.Progress) (domain.ProcessingCheckpoint, error) {
	if cp.Name == "" {
		return cp, ErrNotStarted
	}
	done := m.now().UTC()
	cp.Status = domain.CheckpointCompleted
	cp.Data = progress
	cp.ErrorMessage = ""
	cp.CompletedAt = &done
	return save(tx, cp, "complete")
}

// Fail records cause while keeping the last committed progress so a retry resumes.
func (m *Manager) Fail(tx domain.Transaction, cp domain.ProcessingCheckpoint, progress domain.Progress, cause error) (domain.ProcessingCheckpoint, error) {
	if cp.Name == "" {
		return cp, ErrNotStarted
	}
	cp.Status = domain.CheckpointFailed
	cp.Data = progress
	cp.CompletedAt = nil
	cp.ErrorMessage = truncate(errorText(cause))
	return save(tx, cp, "fail")
}

func save(tx domain.Transaction, cp domain.ProcessingCheckpoint, verb string) (domain.ProcessingCheckpoint, error) {
	stored, err := tx.SaveCheckpoint(cp)
	if err != nil {
		return cp, fmt.Errorf("%s checkpoint %s: %w", verb, cp.Name, err)
	}
	return stored, nil
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= MaxErrorLen {
		return s
	}
	return s[:MaxErrorLen] + "..."
}
