package engine

import (
	"context"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/Chwrld/Edu-IT13Project/internal/manifest"
)

// tableFunc syncs one table and returns the rows applied.
type tableFunc func(ctx context.Context, spec manifest.TableSpec) (int, error)

// tally collects per-table counts from concurrent table runs.
type tally struct {
	mu     sync.Mutex
	counts map[string]int
}

func newTally() *tally {
	return &tally{counts: make(map[string]int)}
}

func (t *tally) record(table string, n int) {
	t.mu.Lock()
	t.counts[table] = n
	t.mu.Unlock()
}

func (t *tally) snapshot() (map[string]int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]int, len(t.counts))
	total := 0
	for k, v := range t.counts {
		out[k] = v
		total += v
	}
	return out, total
}

// runSequential applies tables one at a time in order and stops at the
// first failure.
func runSequential(ctx context.Context, specs []manifest.TableSpec, fn tableFunc, t *tally) error {
	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := fn(ctx, spec)
		if err != nil {
			return err
		}
		t.record(spec.Name, n)
	}
	return nil
}

// runParallel applies every table concurrently, at most limit at a time
// when limit > 0. A failing table does not cancel its siblings; all of them
// run to completion and the failures are combined. Tables that succeeded
// stay applied.
func runParallel(ctx context.Context, specs []manifest.TableSpec, limit int, fn tableFunc, t *tally) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs error
	)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for _, spec := range specs {
		g.Go(func() error {
			n, err := fn(ctx, spec)
			if err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
				return nil
			}
			t.record(spec.Name, n)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}
