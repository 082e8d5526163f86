package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/guarzo/cardpulse/internal/config"
	"github.com/guarzo/cardpulse/internal/model"
	"github.com/guarzo/cardpulse/internal/pipeline"
	"github.com/guarzo/cardpulse/internal/report"
)

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

// batchRunner searches the scheduled queries. Overlapping runs are skipped.
type batchRunner struct {
	svc     *pipeline.Service
	queries []model.TargetQuery
	roi     float64
	csvDir  string
	log     zerolog.Logger
}

// newScheduler registers the batch under cfg.Schedule.Spec. Every run
// inherits ctx, so cancelling it aborts in-flight searches.
func newScheduler(ctx context.Context, cfg *config.Config, svc *pipeline.Service, opts *options, log zerolog.Logger) (*cron.Cron, error) {
	if len(cfg.Schedule.Queries) == 0 {
		return nil, fmt.Errorf("schedule: no queries configured")
	}

	cl := cronLogger{log: log}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	runner := &batchRunner{
		svc:     svc,
		queries: cfg.Schedule.Queries,
		roi:     opts.roi,
		csvDir:  opts.csvDir,
		log:     log,
	}
	if _, err := c.AddFunc(cfg.Schedule.Spec, func() { runner.run(ctx) }); err != nil {
		return nil, fmt.Errorf("schedule %q: %w", cfg.Schedule.Spec, err)
	}
	return c, nil
}

func (b *batchRunner) run(ctx context.Context) {
	results := b.svc.SearchMany(ctx, b.queries)

	var ok, failed int
	for i, r := range results {
		outcome := pipeline.Outcome(r.Err, r.Result)
		if r.Err != nil {
			failed++
			b.log.Warn().Err(r.Err).Int("index", i).Str("outcome", outcome.String()).Msg("scheduled query failed")
			continue
		}
		ok++

		ev := b.log.Info().
			Str("outcome", outcome.String()).
			Str("request_id", r.Result.RequestID).
			Int("groups", len(r.Result.Groups))

		if len(r.Result.Groups) > 0 {
			a := b.svc.Analyze(r.Result.Groups[0], b.roi, r.Query.IsRaw())
			ev = ev.Str("action", string(a.Recommendation.Action)).
				Float64("price", a.Metrics.AveragePrice).
				Float64("forecast_30d", a.Forecast.Days30)
		}
		ev.Int("index", i).Msg("scheduled query done")

		if b.csvDir != "" {
			dir := filepath.Join(b.csvDir, fmt.Sprintf("query-%02d", i))
			if err := report.WriteFiles(dir, r.Result.Groups); err != nil {
				b.log.Error().Err(err).Str("dir", dir).Msg("write csv report")
			}
		}
	}
	b.log.Info().Int("ok", ok).Int("failed", failed).Msg("scheduled batch complete")
}
