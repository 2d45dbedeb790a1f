package scoring

import (
	"context"
	"runtime"

	"dose3d/internal/models"
	"dose3d/pkg/geometry"

	"github.com/aukilabs/go-tooling/pkg/logs"
	"golang.org/x/sync/errgroup"
)

// ctxCheckInterval is the number of deposits a worker scores between
// cancellation checks
const ctxCheckInterval = 1024

// Score splits the deposits over workers, each scoring into its own buffer,
// and merges the buffers once every worker is done. Workers <= 0 uses one
// worker per CPU. The detector must not change while scoring.
func Score(ctx context.Context, d *geometry.Detector, collection string, granularity models.Granularity, deposits []Deposit, workers int) (*Accumulator, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(deposits) {
		workers = len(deposits)
	}
	if workers == 0 {
		workers = 1
	}

	buffers := make([]*Accumulator, workers)
	for i := range buffers {
		acc, err := NewAccumulator(d, collection, granularity)
		if err != nil {
			return nil, err
		}
		buffers[i] = acc
	}

	g, ctx := errgroup.WithContext(ctx)
	chunk := (len(deposits) + workers - 1) / workers
	for i, acc := range buffers {
		start := i * chunk
		end := min(start+chunk, len(deposits))
		if start >= end {
			continue
		}

		acc := acc // per-iteration copy (pre-Go 1.22 loop variable semantics)
		g.Go(func() error {
			for j, dep := range deposits[start:end] {
				if j%ctxCheckInterval == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				acc.Deposit(dep.Position, dep.Edep)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := buffers[0]
	for _, acc := range buffers[1:] {
		if err := result.Merge(acc); err != nil {
			return nil, err
		}
	}

	instrumentDeposits(result.Deposits()-result.Misses(), result.Misses())
	logs.WithTag("collection", collection).
		WithTag("granularity", granularity.String()).
		WithTag("workers", workers).
		WithTag("deposits", result.Deposits()).
		WithTag("misses", result.Misses()).
		Info("deposits scored")
	return result, nil
}
