package pipeline

import (
	"context"
	"sync"

	"github.com/guarzo/cardpulse/internal/model"
)

// BatchResult is one query's outcome from SearchMany.
type BatchResult struct {
	Query  model.TargetQuery
	Result *SearchResult
	Err    error
}

type job struct {
	index int
	query model.TargetQuery
}

// SearchMany runs independent searches on a bounded worker pool. Results
// come back in input order. A failed query does not stop the others;
// cancelling ctx marks every query not yet started with ctx's error.
func (s *Service) SearchMany(ctx context.Context, queries []model.TargetQuery) []BatchResult {
	results := make([]BatchResult, len(queries))
	if len(queries) == 0 {
		return results
	}

	jobs := make(chan job)
	workers := s.workers
	if workers > len(queries) {
		workers = len(queries)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				results[j.index] = s.runJob(ctx, j)
			}
		}()
	}

	sent := 0
feed:
	for ; sent < len(queries); sent++ {
		select {
		case jobs <- job{index: sent, query: queries[sent]}:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	for i := sent; i < len(queries); i++ {
		results[i] = BatchResult{Query: queries[i], Err: ctx.Err()}
	}

	s.log.Info().Int("queries", len(queries)).Int("workers", workers).Msg("batch complete")
	return results
}

func (s *Service) runJob(ctx context.Context, j job) BatchResult {
	if s.pacer != nil {
		if err := s.pacer.Wait(ctx); err != nil {
			return BatchResult{Query: j.query, Err: err}
		}
	}
	res, err := s.Search(ctx, j.query)
	return BatchResult{Query: j.query, Result: res, Err: err}
}
