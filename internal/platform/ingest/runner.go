// Package ingest loads a directory of C-CDA documents into the record store.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/openclinical/ccda-analyst/internal/domain/record"
)

const progressEvery = 10

// Store persists a batch of records, optionally replacing existing ones.
type Store interface {
	Store(ctx context.Context, recs []*record.Record, reset bool) error
}

// FileError describes a document that could not be parsed.
type FileError struct {
	Filename string `json:"filename"`
	Err      error  `json:"-"`
	Message  string `json:"error"`
}

func (e FileError) Error() string { return e.Filename + ": " + e.Message }

// Result summarises one run.
type Result struct {
	Found     int
	Processed int
	Failed    []FileError
}

type Runner struct {
	store   Store
	workers int
	logger  zerolog.Logger
}

// NewRunner creates a runner that parses up to workers documents at once.
func NewRunner(store Store, workers int, logger zerolog.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{store: store, workers: workers, logger: logger}
}

// Run parses every *.xml file in dir and stores the readable ones in
// filename order. Unreadable documents are logged and skipped. When reset
// is set, existing records are replaced in the same transaction.
func (r *Runner) Run(ctx context.Context, dir string, reset bool) (Result, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return Result{}, fmt.Errorf("data directory: %w", err)
	}
	if !info.IsDir() {
		return Result{}, fmt.Errorf("data directory: %s is not a directory", dir)
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*.xml"))
	if err != nil {
		return Result{}, err
	}
	sort.Strings(paths)

	res := Result{Found: len(paths)}
	r.logger.Info().Str("dir", dir).Int("files", len(paths)).Msg("found documents")

	recs := make([]*record.Record, len(paths))
	errs := make([]error, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				errs[i] = err
				return nil
			}
			recs[i], errs[i] = record.FromDocument(filepath.Base(path), data)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	batch := make([]*record.Record, 0, len(paths))
	for i, path := range paths {
		name := filepath.Base(path)
		if errs[i] != nil {
			r.logger.Warn().Err(errs[i]).Str("file", name).Msg("failed to process")
			res.Failed = append(res.Failed, FileError{Filename: name, Err: errs[i], Message: errs[i].Error()})
			continue
		}
		batch = append(batch, recs[i])
		if len(batch)%progressEvery == 0 {
			r.logger.Info().Int("processed", len(batch)).Msg("processed documents")
		}
	}

	if err := r.store.Store(ctx, batch, reset); err != nil {
		return res, fmt.Errorf("store records: %w", err)
	}
	res.Processed = len(batch)
	r.logger.Info().Int("processed", res.Processed).Int("failed", len(res.Failed)).Msg("ingest complete")
	return res, nil
}
