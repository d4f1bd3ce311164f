package worker

import (
	"context"
	"path"
	"sync"

	"github.com/gyeh/hospital-prices/internal/progress"
)

// Pool runs a stage over many files concurrently.
type Pool struct {
	Workers  int
	Progress progress.Manager
}

// Run processes all keys with at most Workers in flight and returns one
// result per key, in input order.
func (p *Pool) Run(ctx context.Context, keys []string, stage StageFunc) []PipelineResult {
	results := make([]PipelineResult, len(keys))
	workers := max(p.Workers, 1)

	sem := make(chan struct{}, workers)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		done    int
		failed  int
		records int64
	)

	for i, key := range keys {
		wg.Add(1)
		go func(idx int, k string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[idx] = PipelineResult{Key: k, Err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			tracker := p.Progress.NewTracker(idx, len(keys), path.Base(k))
			result := stage(ctx, k, tracker)
			results[idx] = *result
			tracker.Done()

			mu.Lock()
			done++
			if result.Err != nil {
				failed++
			}
			records += int64(result.Records)
			p.Progress.SetTotals(done, failed, records)
			mu.Unlock()
		}(i, key)
	}

	wg.Wait()
	return results
}
