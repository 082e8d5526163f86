package fetch

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/guarzo/cardpulse/internal/monitoring"
)

// ErrFetchExhausted is matched by errors.Is when every attempt failed.
var ErrFetchExhausted = errors.New("fetch exhausted")

// Page is a successfully retrieved document.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
	Attempts   int
}

// Fetcher retrieves one marketplace page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
}

// ExhaustedError carries the last failure after all attempts were used.
type ExhaustedError struct {
	URL      string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.URL, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrFetchExhausted, e.Last}
}

// StatusError is returned for any non-200 response.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Status)
}

// Policy controls retries, politeness delay and timeouts.
type Policy struct {
	MaxAttempts int           `yaml:"max_attempts" default:"3" validate:"min=1,max=10"`
	MinDelay    time.Duration `yaml:"min_delay" default:"1s"`
	MaxDelay    time.Duration `yaml:"max_delay" default:"3s" validate:"gtefield=MinDelay"`
	Timeout     time.Duration `yaml:"timeout" default:"30s" validate:"gt=0"`
}

// DefaultPolicy returns the marketplace politeness policy: 3 attempts,
// 1-3s random delay before each, 30s per request.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		MinDelay:    1 * time.Second,
		MaxDelay:    3 * time.Second,
		Timeout:     30 * time.Second,
	}
}

// Deadline is the overall budget for one Fetch call.
func (p Policy) Deadline() time.Duration {
	n := time.Duration(p.MaxAttempts)
	return p.Timeout*n + p.MaxDelay*n
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// JitterFunc picks a delay in [min, max].
type JitterFunc func(min, max time.Duration) time.Duration

func contextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func uniformJitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + rand.N(max-min+1)
}

// retrier runs an attempt function under a Policy. Shared by the HTTP and
// browser fetchers so both observe the same delay and retry rules.
type retrier struct {
	policy   Policy
	sleep    SleepFunc
	jitter   JitterFunc
	log      zerolog.Logger
	recorder *monitoring.Recorder
}

func newRetrier(p Policy) retrier {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	return retrier{
		policy: p,
		sleep:  contextSleep,
		jitter: uniformJitter,
		log:    zerolog.Nop(),
	}
}

func (r *retrier) do(ctx context.Context, url string, attempt func(ctx context.Context) (*Page, error)) (*Page, error) {
	ctx, cancel := context.WithTimeout(ctx, r.policy.Deadline())
	defer cancel()

	var lastErr error
	for i := 1; i <= r.policy.MaxAttempts; i++ {
		delay := r.jitter(r.policy.MinDelay, r.policy.MaxDelay)
		if err := r.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("fetch %s: %w", url, err)
		}

		page, err := attempt(ctx)
		if err == nil {
			r.recorder.FetchAttempt("ok")
			page.Attempts = i
			r.log.Debug().Str("url", url).Int("attempt", i).Msg("fetched page")
			return page, nil
		}

		var se *StatusError
		if errors.As(err, &se) {
			r.recorder.FetchAttempt("status")
		} else {
			r.recorder.FetchAttempt("transport")
		}

		// The caller gave up; stop instead of hammering the host.
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch %s: %w", url, ctx.Err())
		}

		lastErr = err
		if i < r.policy.MaxAttempts {
			r.log.Warn().Err(err).Str("url", url).
				Int("attempt", i).Int("max_attempts", r.policy.MaxAttempts).
				Msg("fetch attempt failed, retrying")
		}
	}

	r.recorder.FetchExhausted()
	return nil, &ExhaustedError{URL: url, Attempts: r.policy.MaxAttempts, Last: lastErr}
}

// Option configures a fetcher.
type Option func(*retrier)

func WithLogger(l zerolog.Logger) Option {
	return func(r *retrier) { r.log = l }
}

func WithRecorder(rec *monitoring.Recorder) Option {
	return func(r *retrier) { r.recorder = rec }
}

// WithSleep replaces the politeness sleep (tests use a no-op).
func WithSleep(s SleepFunc) Option {
	return func(r *retrier) { r.sleep = s }
}

func WithJitter(j JitterFunc) Option {
	return func(r *retrier) { r.jitter = j }
}
