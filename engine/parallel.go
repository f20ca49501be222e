package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Factory builds a fresh engine for one worker
type Factory func() (*Engine, error)

// BatchResult is the outcome of one batch run by RunParallel
type BatchResult struct {
	Txs []*TxResult
	// Err is the error Execute returned for this batch, if it stopped early
	Err error
}

// RunParallel executes independent batches on a pool of engines. Each worker owns
// its engine, only the backend given to the factory is shared. Results are aligned
// with batches. A batch that stops early only affects itself; the returned error is
// set when a worker could not be built or ctx was cancelled, in which case batches
// that never ran report every transaction Pending with that error.
func RunParallel(ctx context.Context, workers int, factory Factory, batches []SimulationBatch) ([]BatchResult, error) {
	if workers <= 0 {
		workers = 1
	}
	if workers > len(batches) {
		workers = len(batches)
	}
	results := make([]BatchResult, len(batches))
	g, gctx := errgroup.WithContext(ctx)

	jobs := make(chan int)
	g.Go(func() error {
		defer close(jobs)
		for i := range batches {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			eng, err := factory()
			if err != nil {
				return fmt.Errorf("build engine: %w", err)
			}
			for i := range jobs {
				if err := eng.ResetState(); err != nil {
					return err
				}
				txs, err := eng.Execute(gctx, batches[i])
				results[i] = BatchResult{Txs: txs, Err: err}
			}
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		for i := range results {
			if results[i].Txs == nil {
				results[i] = BatchResult{Txs: pending(len(batches[i].Transactions), err), Err: err}
			}
		}
	}
	return results, err
}

func pending(n int, err error) []*TxResult {
	out := make([]*TxResult, n)
	for i := range out {
		out[i] = &TxResult{Index: i, State: Pending, Err: err}
	}
	return out
}
