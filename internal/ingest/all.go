package ingest

import (
	"context"
	"errors"
	"sync"

	"mitonet/internal/sources"
	"mitonet/pkg/domain"
)

// RunAll updates every source of the catalog stage by stage. Sources within
// a stage run concurrently as independent pipelines. Missing files are
// reported and skipped; a stage with failures stops later stages, and a fatal
// configuration error aborts immediately. Errors are joined.
func (m *Manager) RunAll(ctx context.Context, catalog *sources.Catalog, opts RunOptions) ([]Report, error) {
	var reports []Report
	var errs []error
	for _, stage := range catalog.Stages() {
		stageReports := make([]Report, len(stage))
		stageErrs := make([]error, len(stage))
		var wg sync.WaitGroup
		for i, decl := range stage {
			wg.Add(1)
			go func(i int, decl sources.Declaration) {
				defer wg.Done()
				stageReports[i], stageErrs[i] = m.Run(ctx, decl, opts)
			}(i, decl)
		}
		wg.Wait()

		failed := false
		for i, err := range stageErrs {
			reports = append(reports, stageReports[i])
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrSourceMissing):
				m.logger.WarnContext(ctx, "source file missing, skipping", "source", stage[i].Name, "path", stage[i].Path)
			default:
				failed = true
				errs = append(errs, err)
				if domain.IsFatal(err) {
					return reports, errors.Join(errs...)
				}
			}
		}
		if failed {
			break
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
	}
	return reports, errors.Join(errs...)
}

// RunNamed updates the named sources in order. An unknown name is a fatal
// configuration error reported before anything runs.
func (m *Manager) RunNamed(ctx context.Context, catalog *sources.Catalog, names []string, opts RunOptions) ([]Report, error) {
	decls := make([]sources.Declaration, 0, len(names))
	for _, name := range names {
		d, err := catalog.Lookup(name)
		if err != nil {
			return nil, err
		}
		decls = append(decls, d)
	}
	reports := make([]Report, 0, len(decls))
	for _, d := range decls {
		rep, err := m.Run(ctx, d, opts)
		reports = append(reports, rep)
		if err != nil {
			return reports, err
		}
	}
	return reports, nil
}
