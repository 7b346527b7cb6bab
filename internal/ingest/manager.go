// Package ingest orchestrates one source's update: change detection, chunked
// streaming through the resolver and merger, and checkpointing at every
// chunk boundary.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"mitonet/internal/blob"
	"mitonet/internal/checkpoint"
	"mitonet/internal/fingerprint"
	"mitonet/internal/identity"
	"mitonet/internal/merge"
	"mitonet/internal/sources"
	"mitonet/pkg/domain"
)

// Outcome summarises how a run ended.
type Outcome string

// Run outcomes.
const (
	OutcomeCompleted Outcome = "completed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeMissing   Outcome = "missing"
	OutcomeFailed    Outcome = "failed"
)

// Options configures a Manager.
type Options struct {
	// ChunkSize is the number of source records applied per transaction.
	ChunkSize int
	// RetireSuperseded deletes interactions owned by older versions of a
	// source family once a newer version completes.
	RetireSuperseded bool
	Priorities       identity.Priorities
	CacheSize        int
	Logger           *slog.Logger
	Metrics          Metrics
	Tracer           Tracer
	Now              func() time.Time
}

// RunOptions controls a single run.
type RunOptions struct {
	// Force ingests even when the fingerprint is unchanged.
	Force bool
}

// Report describes one source run.
type Report struct {
	RunID    string               `json:"run_id"`
	Source   string               `json:"source"`
	Version  string               `json:"version"`
	Phase    string               `json:"phase"`
	Decision fingerprint.Decision `json:"decision,omitempty"`
	Outcome  Outcome              `json:"outcome"`
	// ResumedFrom is the record offset a resumed run started at.
	ResumedFrom int64 `json:"resumed_from,omitempty"`
	Resumed     bool  `json:"resumed"`
	Chunks      int   `json:"chunks"`
	// Counters covers the records consumed by this run only.
	Counters domain.Counters `json:"counters"`
	Retired  int64           `json:"retired,omitempty"`
	Duration time.Duration   `json:"duration"`
}

// Manager runs source ingestions against one store.
type Manager struct {
	store  domain.PersistentStore
	files  blob.Store
	fps    *fingerprint.Store
	cps    *checkpoint.Manager
	opts   Options
	logger *slog.Logger
}

// NewManager returns a manager reading source files from files and writing
// to store.
func NewManager(store domain.PersistentStore, files blob.Store, opts Options) *Manager {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Priorities == nil {
		opts.Priorities = identity.DefaultPriorities()
	}
	if opts.Metrics == nil {
		opts.Metrics = noopMetrics{}
	}
	if opts.Tracer == nil {
		opts.Tracer = noopTracer{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		store:  store,
		files:  files,
		fps:    fingerprint.NewStore(store),
		cps:    checkpoint.NewManager(opts.Now),
		opts:   opts,
		logger: logger,
	}
}

// ChunkSize returns the configured chunk size.
func (m *Manager) ChunkSize() int { return m.opts.ChunkSize }

// run is the state of one source run.
type run struct {
	decl     sources.Declaration
	report   Report
	check    fingerprint.Check
	source   domain.DataSource
	cp       domain.ProcessingCheckpoint
	progress domain.Progress
	resolver *identity.Resolver
	logger   *slog.Logger
}

// Run ingests one declared source. Unchanged files are skipped unless
// forced; interrupted runs of the same file resume after their last
// committed chunk.
func (m *Manager) Run(ctx context.Context, decl sources.Declaration, opts RunOptions) (rep Report, err error) {
	started := m.opts.Now()
	ctx, span := m.opts.Tracer.Start(ctx, "ingest."+decl.Name)
	defer func() {
		rep.Duration = m.opts.Now().Sub(started)
		if err != nil && rep.Outcome == "" {
			rep.Outcome = OutcomeFailed
		}
		m.opts.Metrics.Observe(ctx, "ingest."+decl.Name, err == nil, rep.Duration)
		span.End(err)
	}()

	r := &run{decl: decl, report: Report{Source: decl.Name, Phase: decl.Phase()}}
	r.logger = m.logger.With("source", decl.Name, "phase", decl.Phase())

	info, err := m.files.Head(ctx, decl.Path)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			r.report.Outcome = OutcomeMissing
			return r.report, fmt.Errorf("%w: %s (%s)", domain.ErrSourceMissing, decl.Name, decl.Path)
		}
		return r.report, m.phaseErr(decl, err)
	}
	r.report.Version = sources.ExtractVersion(decl, decl.Path, info.LastModified)

	fp, _, err := fingerprint.Of(ctx, m.files, decl.Path)
	if err != nil {
		return r.report, m.phaseErr(decl, err)
	}
	r.check, err = m.fps.Detect(ctx, decl.Name, fp, opts.Force)
	if err != nil {
		return r.report, m.phaseErr(decl, err)
	}
	r.report.Decision = r.check.Decision

	var existing domain.ProcessingCheckpoint
	var found bool
	err = m.store.View(ctx, func(rd domain.Reader) error {
		var err error
		existing, found, err = m.cps.Load(rd, decl.Name, decl.Phase())
		return err
	})
	if err != nil {
		if domain.IsFatal(err) {
			return r.report, err
		}
		return r.report, m.phaseErr(decl, err)
	}
	resume, resumable := checkpoint.ResumePoint(existing, found, fp.Hash)

	if r.check.Skip() && !resumable {
		r.report.Outcome = OutcomeSkipped
		r.logger.InfoContext(ctx, "source unchanged, skipping", "version", r.report.Version)
		return r.report, nil
	}

	if resumable {
		r.progress = resume
		r.report.Resumed = true
		r.report.ResumedFrom = resume.Offset
	} else {
		r.progress = domain.Progress{RunID: uuid.NewString(), Version: r.report.Version, Fingerprint: fp.Hash}
	}
	r.report.RunID = r.progress.RunID

	r.resolver, err = identity.NewResolver(m.opts.Priorities, m.opts.CacheSize)
	if err != nil {
		return r.report, err
	}

	var resumedCP *domain.ProcessingCheckpoint
	if resumable {
		resumedCP = &existing
	}
	if err := m.begin(ctx, r, info, resumedCP); err != nil {
		return r.report, m.phaseErr(decl, err)
	}
	r.logger.InfoContext(ctx, "ingestion started",
		"run_id", r.progress.RunID,
		"version", r.report.Version,
		"decision", string(r.check.Decision),
		"resume_offset", r.progress.Offset)

	if err := m.stream(ctx, r); err != nil {
		return r.report, err
	}
	if err := m.complete(ctx, r); err != nil {
		return r.report, m.fail(ctx, r, err)
	}
	r.report.Outcome = OutcomeCompleted
	r.logger.InfoContext(ctx, "ingestion completed",
		"run_id", r.progress.RunID,
		"chunks", r.report.Chunks,
		"processed", r.report.Counters.Processed,
		"applied", r.report.Counters.Applied,
		"skipped", r.report.Counters.Skipped,
		"unresolved", r.report.Counters.Unresolved,
		"retired", r.report.Retired)
	return r.report, nil
}

func (m *Manager) phaseErr(decl sources.Declaration, err error) error {
	return &domain.PhaseError{Source: decl.Name, Phase: decl.Phase(), Err: err}
}

// begin records the source version and marks the checkpoint in progress.
// A changed file under an already recorded version drops that version's
// previous interactions so the new content replaces them.
func (m *Manager) begin(ctx context.Context, r *run, info blob.Info, resumed *domain.ProcessingCheckpoint) error {
	return m.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		ds, err := tx.EnsureSource(domain.DataSource{
			Name:     r.decl.Name,
			Version:  r.report.Version,
			FilePath: r.decl.Path,
			Metadata: sourceMetadata(r.decl, info, m.files.Driver()),
		})
		if err != nil {
			return fmt.Errorf("record source: %w", err)
		}
		r.source = ds
		if resumed == nil && r.check.Decision == fingerprint.NewVersion && r.check.Previous.ID == ds.ID {
			if _, err := tx.DeleteInteractionsBySources([]int64{ds.ID}); err != nil {
				return fmt.Errorf("reset changed version: %w", err)
			}
		}
		r.cp, err = m.cps.Begin(tx, r.decl.Name, r.decl.Phase(), r.progress, resumed)
		return err
	})
}

func sourceMetadata(d sources.Declaration, info blob.Info, driver blob.Driver) map[string]string {
	md := map[string]string{"kind": string(d.Kind), "location": string(driver)}
	if info.ETag != "" {
		md["etag"] = info.ETag
	}
	return md
}

// stream reads the source in chunks. Each chunk and its checkpoint advance
// commit in one transaction.
func (m *Manager) stream(ctx context.Context, r *run) error {
	_, rc, err := m.files.Get(ctx, r.decl.Path)
	if err != nil {
		return m.fail(ctx, r, err)
	}
	defer func() { _ = rc.Close() }()
	parser, closer, err := sources.Open(r.decl, rc)
	if err != nil {
		return m.fail(ctx, r, err)
	}
	defer func() { _ = closer.Close() }()
	if r.progress.Offset > 0 {
		if err := sources.Skip(parser, r.progress.Offset); err != nil {
			return m.fail(ctx, r, fmt.Errorf("skip %d committed records: %w", r.progress.Offset, err))
		}
	}

	buf := make([]sources.Record, 0, m.opts.ChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			// The checkpoint stays in progress; the next run resumes from it.
			return err
		}
		buf = buf[:0]
		var consumed, malformed int64
		eof := false
		for consumed < int64(m.opts.ChunkSize) {
			rec, err := parser.Next()
			if errors.Is(err, io.EOF) {
				eof = true
				break
			}
			if err != nil {
				if sources.Skippable(err) {
					consumed++
					malformed++
					r.logger.DebugContext(ctx, "record skipped", "offset", r.progress.Offset+consumed, "err", err)
					continue
				}
				return m.fail(ctx, r, fmt.Errorf("read record %d: %w", r.progress.Offset+consumed+1, err))
			}
			consumed++
			buf = append(buf, rec)
		}
		if consumed > 0 {
			if err := m.applyChunk(ctx, r, buf, consumed, malformed); err != nil {
				return m.fail(ctx, r, err)
			}
		}
		if eof {
			return nil
		}
	}
}

func (m *Manager) applyChunk(ctx context.Context, r *run, recs []sources.Record, consumed, malformed int64) (err error) {
	ctx, span := m.opts.Tracer.Start(ctx, "ingest.chunk")
	defer func() { span.End(err) }()

	var counters domain.Counters
	progress := r.progress
	var cp domain.ProcessingCheckpoint
	err = m.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		// Cached ids never outlive the transaction that read them.
		r.resolver.Purge()
		counters = domain.Counters{Processed: consumed, Skipped: malformed}
		a := newApplier(tx, r.resolver, r.decl, r.source, len(recs))
		for _, rec := range recs {
			if err := a.apply(rec, &counters); err != nil {
				return err
			}
		}
		if err := a.flush(); err != nil {
			return err
		}
		progress.Offset += consumed
		progress.Chunks++
		progress.Counters = progress.Counters.Add(counters)
		var err error
		cp, err = m.cps.Advance(tx, r.cp, progress)
		return err
	})
	if err != nil {
		r.resolver.Purge()
		return err
	}
	r.cp = cp
	r.progress = progress
	r.report.Chunks++
	r.report.Counters = r.report.Counters.Add(counters)
	m.opts.Metrics.Records(r.decl.Name, counters)
	r.logger.InfoContext(ctx, "chunk applied",
		"chunk", progress.Chunks,
		"rows", consumed,
		"applied", counters.Applied,
		"skipped", counters.Skipped,
		"unresolved", counters.Unresolved,
		"offset", progress.Offset)
	return nil
}

// complete retires superseded versions, commits the fingerprint, and
// finalises the checkpoint atomically.
func (m *Manager) complete(ctx context.Context, r *run) error {
	var cp domain.ProcessingCheckpoint
	var retired int64
	err := m.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if m.opts.RetireSuperseded {
			versions, err := tx.SourcesByName(r.decl.Name)
			if err != nil {
				return err
			}
			var stale []int64
			for _, v := range versions {
				if v.ID != r.source.ID {
					stale = append(stale, v.ID)
				}
			}
			if len(stale) > 0 {
				if retired, err = tx.DeleteInteractionsBySources(stale); err != nil {
					return fmt.Errorf("retire superseded versions: %w", err)
				}
			}
		}
		if err := fingerprint.Commit(tx, r.source.ID, r.check.Current, m.opts.Now().UTC()); err != nil {
			return fmt.Errorf("commit fingerprint: %w", err)
		}
		var err error
		cp, err = m.cps.Complete(tx, r.cp, r.progress)
		return err
	})
	if err != nil {
		return err
	}
	r.cp = cp
	r.report.Retired = retired
	return nil
}

// fail marks the checkpoint failed with the last committed progress and
// returns cause wrapped with the phase.
func (m *Manager) fail(ctx context.Context, r *run, cause error) error {
	r.report.Outcome = OutcomeFailed
	wrapped := m.phaseErr(r.decl, cause)
	err := m.store.RunInTransaction(context.WithoutCancel(ctx), func(tx domain.Transaction) error {
		_, err := m.cps.Fail(tx, r.cp, r.progress, cause)
		return err
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "record checkpoint failure", "err", err)
		return errors.Join(wrapped, err)
	}
	r.logger.ErrorContext(ctx, "ingestion failed", "run_id", r.progress.RunID, "offset", r.progress.Offset, "err", cause)
	return wrapped
}

// applier applies the records of one chunk inside its transaction.
type applier struct {
	tx       domain.Transaction
	resolver *identity.Resolver
	decl     sources.Declaration
	source   domain.DataSource
	batch    *merge.Batch
}

func newApplier(tx domain.Transaction, res *identity.Resolver, decl sources.Declaration, ds domain.DataSource, n int) *applier {
	return &applier{tx: tx, resolver: res, decl: decl, source: ds, batch: merge.NewBatch(n)}
}

func (a *applier) flush() error {
	if a.batch.Len() == 0 {
		return nil
	}
	_, err := a.batch.Flush(a.tx)
	return err
}
