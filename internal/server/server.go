// Package server exposes search and analysis over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/guarzo/cardpulse/internal/market"
	"github.com/guarzo/cardpulse/internal/model"
	"github.com/guarzo/cardpulse/internal/monitoring"
	"github.com/guarzo/cardpulse/internal/pipeline"
	"github.com/guarzo/cardpulse/internal/ratelimit"
)

// Engine is the search and analysis backend. *pipeline.Service satisfies it.
type Engine interface {
	Search(ctx context.Context, q model.TargetQuery) (*pipeline.SearchResult, error)
	Analyze(group model.VariantGroup, roi float64, isRaw bool) pipeline.Analysis
	GradingOutlook(ctx context.Context, q model.TargetQuery, odds market.GradeOdds, costs market.GradingCosts) (*pipeline.GradingOutlook, error)
}

type Server struct {
	echo     *echo.Echo
	engine   Engine
	addr     string
	limiter  *ratelimit.Keyed
	costs    market.GradingCosts
	shutdown time.Duration
	log      zerolog.Logger
	recorder *monitoring.Recorder
}

type Option func(*Server)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithRecorder serves rec on /metrics and counts rate-limited requests.
func WithRecorder(rec *monitoring.Recorder) Option {
	return func(s *Server) { s.recorder = rec }
}

func WithLimiter(l *ratelimit.Keyed) Option {
	return func(s *Server) { s.limiter = l }
}

func WithGradingCosts(c market.GradingCosts) Option {
	return func(s *Server) { s.costs = c }
}

func WithTimeouts(read, write, shutdown time.Duration) Option {
	return func(s *Server) {
		s.echo.Server.ReadTimeout = read
		s.echo.Server.WriteTimeout = write
		s.shutdown = shutdown
	}
}

// New builds the HTTP server and registers its routes.
func New(engine Engine, addr string, opts ...Option) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		engine:   engine,
		addr:     addr,
		costs:    market.DefaultGradingCosts(),
		shutdown: 10 * time.Second,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.limiter == nil {
		s.limiter = ratelimit.NewKeyed(ratelimit.DefaultConfig(), nil)
	}

	e.Use(recoverer(s.log))
	e.Use(requestLogging(s.log))
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.echo.Group("/api")
	limited := rateLimit(s.limiter, s.recorder)

	api.GET("/health", s.health)
	api.POST("/scrape", s.scrape, limited)
	api.POST("/analyze", s.analyze)
	api.POST("/grading", s.grading, limited)

	if s.recorder != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.recorder.Handler()))
	}
}

// ServeHTTP lets the server be mounted or driven by httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Run serves until ctx is cancelled, then shuts down gracefully. Idle
// rate-limit entries are swept once a minute.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("http server listening")
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sweep := time.NewTicker(time.Minute)
	defer sweep.Stop()

	for {
		select {
		case err, ok := <-errCh:
			if ok {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		case <-sweep.C:
			if n := s.limiter.Sweep(); n > 0 {
				s.log.Debug().Int("removed", n).Msg("swept idle rate-limit entries")
			}
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdown)
			defer cancel()
			if err := s.echo.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown error: %w", err)
			}
			s.log.Info().Msg("http server stopped")
			return nil
		}
	}
}
