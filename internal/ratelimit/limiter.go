package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config sets the per-client budget: Requests per Window, with bursts up
// to Requests.
type Config struct {
	Requests int           `yaml:"requests" default:"10" validate:"min=1"`
	Window   time.Duration `yaml:"window" default:"1m" validate:"gt=0"`
	IdleTTL  time.Duration `yaml:"idle_ttl" default:"10m" validate:"gt=0"`
}

// DefaultConfig allows 10 requests per minute per client.
func DefaultConfig() Config {
	return Config{Requests: 10, Window: time.Minute, IdleTTL: 10 * time.Minute}
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Keyed holds one token bucket per client key (typically the remote IP).
type Keyed struct {
	cfg   Config
	now   func() time.Time
	limit rate.Limit

	mu      sync.Mutex
	clients map[string]*entry
}

// NewKeyed creates a limiter. now may be nil to use the wall clock.
func NewKeyed(cfg Config, now func() time.Time) *Keyed {
	if cfg.Requests <= 0 {
		cfg.Requests = 1
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &Keyed{
		cfg:     cfg,
		now:     now,
		limit:   rate.Every(cfg.Window / time.Duration(cfg.Requests)),
		clients: make(map[string]*entry),
	}
}

// Allow consumes one token for key. When the bucket is empty it returns
// false and how long until the next token.
func (k *Keyed) Allow(key string) (bool, time.Duration) {
	now := k.now()

	k.mu.Lock()
	e, ok := k.clients[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(k.limit, k.cfg.Requests)}
		k.clients[key] = e
	}
	e.lastSeen = now
	k.mu.Unlock()

	r := e.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, k.cfg.Window
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d
	}
	return true, 0
}

// Sweep forgets clients idle for longer than IdleTTL and returns how many
// were removed.
func (k *Keyed) Sweep() int {
	cutoff := k.now().Add(-k.cfg.IdleTTL)

	k.mu.Lock()
	defer k.mu.Unlock()

	removed := 0
	for key, e := range k.clients {
		if e.lastSeen.Before(cutoff) {
			delete(k.clients, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked clients.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.clients)
}
