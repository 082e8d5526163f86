package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/guarzo/cardpulse/internal/config"
	"github.com/guarzo/cardpulse/internal/fetch"
	"github.com/guarzo/cardpulse/internal/logging"
	"github.com/guarzo/cardpulse/internal/model"
	"github.com/guarzo/cardpulse/internal/monitoring"
	"github.com/guarzo/cardpulse/internal/pipeline"
	"github.com/guarzo/cardpulse/internal/ratelimit"
	"github.com/guarzo/cardpulse/internal/report"
	"github.com/guarzo/cardpulse/internal/server"
)

type options struct {
	configPath string
	envFile    string
	query      model.TargetQuery
	negative   string
	roi        float64
	serve      bool
	schedule   bool
	csvDir     string
	browser    bool
	grading    bool
}

func parseFlags(args []string) (*options, error) {
	o := &options{}
	fs := flag.NewFlagSet("cardpulse", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "", "YAML config file")
	fs.StringVar(&o.envFile, "env", ".env", "env file with CARDPULSE_* overrides")
	fs.StringVar(&o.query.Query, "query", "", "free-text search")
	fs.StringVar(&o.query.PlayerName, "player", "", "player name (structured search)")
	fs.StringVar(&o.query.Year, "year", "", "card year")
	fs.StringVar(&o.query.CardSet, "set", "", "card set, e.g. Prizm")
	fs.StringVar(&o.query.CardNumber, "number", "", "card number")
	fs.StringVar(&o.query.Variation, "variation", "", "parallel or variation, e.g. Silver")
	fs.StringVar(&o.query.Grade, "grade", "", `grade, e.g. "PSA 10" or raw`)
	fs.StringVar(&o.negative, "neg", "", "comma-separated keywords to exclude")
	fs.Float64Var(&o.roi, "roi", 20, "target ROI percent for the recommendation")
	fs.BoolVar(&o.serve, "serve", false, "run the HTTP API")
	fs.BoolVar(&o.schedule, "schedule", false, "re-run the configured queries on the configured schedule")
	fs.StringVar(&o.csvDir, "csv", "", "write groups.csv and listings.csv to this directory")
	fs.BoolVar(&o.browser, "browser", false, "fetch pages with headless Chrome")
	fs.BoolVar(&o.grading, "grading", false, "estimate grading profit for the query instead of a plain search")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	for _, kw := range strings.Split(o.negative, ",") {
		if kw = strings.TrimSpace(kw); kw != "" {
			o.query.NegativeKeywords = append(o.query.NegativeKeywords, kw)
		}
	}
	if !o.serve && !o.schedule && o.query.Query == "" && o.query.PlayerName == "" {
		return nil, errors.New("one of -query, -player, -serve or -schedule is required")
	}
	return o, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *options, stdout io.Writer) error {
	cfg, err := config.Load(opts.configPath, opts.envFile)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	if opts.browser {
		cfg.Fetch.Mode = config.FetchModeBrowser
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	recorder := monitoring.NewRecorder()
	svc := newService(cfg, log, recorder)

	if opts.schedule {
		sched, err := newScheduler(ctx, cfg, svc, opts, log)
		if err != nil {
			return err
		}
		sched.Start()
		defer func() { <-sched.Stop().Done() }()
		log.Info().Str("spec", cfg.Schedule.Spec).Int("queries", len(cfg.Schedule.Queries)).Msg("scheduler started")
	}

	switch {
	case opts.serve:
		srv := server.New(svc, cfg.Server.Addr,
			server.WithLogger(log),
			server.WithRecorder(recorder),
			server.WithLimiter(ratelimit.NewKeyed(cfg.RateLimit, nil)),
			server.WithGradingCosts(cfg.Grading.Costs),
			server.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		)
		return srv.Run(ctx)
	case opts.schedule:
		<-ctx.Done()
		return nil
	case opts.grading:
		return runGrading(ctx, cfg, svc, opts.query, stdout)
	default:
		return runSearch(ctx, svc, opts, log, stdout)
	}
}

func newService(cfg *config.Config, log zerolog.Logger, rec *monitoring.Recorder) *pipeline.Service {
	var f fetch.Fetcher
	fetchOpts := []fetch.Option{fetch.WithLogger(log), fetch.WithRecorder(rec)}
	if cfg.Fetch.Mode == config.FetchModeBrowser {
		f = fetch.NewBrowser(cfg.Fetch.Browser, fetchOpts...)
	} else {
		f = fetch.NewHTTP(cfg.Fetch.HTTP, nil, fetchOpts...)
	}

	return pipeline.New(f,
		pipeline.WithSearchBase(cfg.Search.BaseURL),
		pipeline.WithParams(cfg.Search.Params),
		pipeline.WithThresholds(cfg.Grouping),
		pipeline.WithStrictMatch(cfg.Search.StrictMatch),
		pipeline.WithWorkers(cfg.Search.Workers),
		pipeline.WithPacing(cfg.Search.QueriesPerSecond),
		pipeline.WithTimeout(cfg.Fetch.Policy().Deadline()),
		pipeline.WithLogger(log),
		pipeline.WithRecorder(rec),
	)
}

type searchOutput struct {
	*pipeline.SearchResult
	Analysis *pipeline.Analysis `json:"analysis,omitempty"`
	Outcome  string             `json:"outcome"`
	Message  string             `json:"message,omitempty"`
}

func runSearch(ctx context.Context, svc *pipeline.Service, opts *options, log zerolog.Logger, stdout io.Writer) error {
	res, err := svc.Search(ctx, opts.query)
	outcome := pipeline.Outcome(err, res)
	if err != nil {
		log.Error().Err(err).Msg(outcome.Message())
		return err
	}

	out := searchOutput{SearchResult: res, Outcome: outcome.String(), Message: outcome.Message()}
	if len(res.Groups) > 0 {
		a := svc.Analyze(res.Groups[0], opts.roi, opts.query.IsRaw())
		out.Analysis = &a
	}

	if opts.csvDir != "" {
		if err := report.WriteFiles(opts.csvDir, res.Groups); err != nil {
			return err
		}
		log.Info().Str("dir", opts.csvDir).Int("groups", len(res.Groups)).Msg("wrote csv report")
	}
	return writeJSON(stdout, out)
}

func runGrading(ctx context.Context, cfg *config.Config, svc *pipeline.Service, q model.TargetQuery, stdout io.Writer) error {
	out, err := svc.GradingOutlook(ctx, q, cfg.Grading.Odds, cfg.Grading.Costs)
	if err != nil {
		return fmt.Errorf("%s: %w", pipeline.Outcome(err, nil).Message(), err)
	}
	return writeJSON(stdout, out)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
