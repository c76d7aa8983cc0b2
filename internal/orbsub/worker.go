package orbsub

import (
	"context"
	"log/slog"
	"sync"

	"github.com/star/orbsub/internal/detector"
)

// detectorJob is a unit of work for the pool.
type detectorJob struct {
	slot int
	id   detector.ID
}

type detectorDone struct {
	slot   int
	result *DetectorResult
}

// pool runs independent per-detector work on a fixed number of goroutines.
// Each job reads and owns its detector's data, so workers share nothing.
type pool struct {
	workers int
	logger  *slog.Logger
}

func newPool(workers int, logger *slog.Logger) *pool {
	return &pool{workers: workers, logger: logger}
}

// process applies fn to every detector and returns the results in the order
// of ids. On cancellation, detectors not yet started are omitted.
func (p *pool) process(ctx context.Context, ids []detector.ID, fn func(detector.ID) *DetectorResult) []*DetectorResult {
	if len(ids) == 0 {
		return nil
	}

	jobs := make(chan detectorJob, p.workers*2)
	results := make(chan detectorDone, p.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				if ctx.Err() != nil {
					return
				}
				res := fn(job.id)
				select {
				case results <- detectorDone{slot: job.slot, result: res}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, id := range ids {
			select {
			case jobs <- detectorJob{slot: i, id: id}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	slots := make([]*DetectorResult, len(ids))
	var successCount, errorCount int
	for d := range results {
		slots[d.slot] = d.result
		if d.result.OK() {
			successCount++
		} else {
			errorCount++
		}
	}
	p.logger.Debug("detectors processed", "succeeded", successCount, "failed", errorCount)

	out := make([]*DetectorResult, 0, len(ids))
	for _, r := range slots {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}
