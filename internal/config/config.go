// Package config loads runtime settings from defaults, an optional YAML
// file, a .env file and CARDPULSE_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/guarzo/cardpulse/internal/ebay"
	"github.com/guarzo/cardpulse/internal/fetch"
	"github.com/guarzo/cardpulse/internal/logging"
	"github.com/guarzo/cardpulse/internal/market"
	"github.com/guarzo/cardpulse/internal/model"
	"github.com/guarzo/cardpulse/internal/ratelimit"
	"github.com/guarzo/cardpulse/internal/similarity"
)

const envPrefix = "CARDPULSE_"

const (
	FetchModeHTTP    = "http"
	FetchModeBrowser = "browser"
)

type Config struct {
	Fetch     Fetch                 `yaml:"fetch"`
	Search    Search                `yaml:"search"`
	Grouping  similarity.Thresholds `yaml:"grouping"`
	Server    Server                `yaml:"server"`
	RateLimit ratelimit.Config      `yaml:"rate_limit"`
	Logging   logging.Config        `yaml:"logging"`
	Schedule  Schedule              `yaml:"schedule"`
	Grading   Grading               `yaml:"grading"`
}

// Fetch selects and tunes the page fetcher.
type Fetch struct {
	Mode    string              `yaml:"mode" default:"http" validate:"oneof=http browser"`
	HTTP    fetch.HTTPConfig    `yaml:"http"`
	Browser fetch.BrowserConfig `yaml:"browser"`
}

// Policy returns the retry policy of the selected fetcher.
func (f Fetch) Policy() fetch.Policy {
	if f.Mode == FetchModeBrowser {
		return f.Browser.Policy
	}
	return f.HTTP.Policy
}

type Search struct {
	BaseURL string      `yaml:"base_url" default:"https://www.ebay.com/sch/i.html" validate:"url"`
	Params  ebay.Params `yaml:"params"`
	// Workers bounds concurrent queries in batch runs.
	Workers int `yaml:"workers" default:"4" validate:"min=1,max=32"`
	// QueriesPerSecond paces batch runs; 0 disables pacing.
	QueriesPerSecond float64 `yaml:"queries_per_second" default:"0.5" validate:"gte=0"`
	// StrictMatch keeps only listings whose title fuzzy-matches the query.
	StrictMatch bool `yaml:"strict_match"`
}

type Server struct {
	Addr            string        `yaml:"addr" default:":8080" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"2m"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
}

// Schedule drives periodic re-runs of a fixed query list.
type Schedule struct {
	Spec    string              `yaml:"spec" default:"@every 6h"`
	Queries []model.TargetQuery `yaml:"queries" validate:"dive"`
}

type Grading struct {
	Costs market.GradingCosts `yaml:"costs"`
	Odds  market.GradeOdds    `yaml:"odds"`
}

// Default returns a Config populated from struct defaults only.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load builds the configuration. path may be empty to skip the YAML file.
// envFiles default to ".env"; a missing env file is not an error.
func Load(path string, envFiles ...string) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func loadEnvFiles(files []string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Validate checks struct constraints.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

type lookupFunc func(key string) (string, bool)

// applyEnv overrides fields from CARDPULSE_* variables.
func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(envPrefix + key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, key, err)
		}
		*dst = n
		return nil
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(envPrefix + key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, key, err)
		}
		*dst = d
		return nil
	}

	str("FETCH_MODE", &c.Fetch.Mode)
	str("CHROME_BIN", &c.Fetch.Browser.ChromeBin)
	str("SEARCH_BASE_URL", &c.Search.BaseURL)
	str("SERVER_ADDR", &c.Server.Addr)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	str("LOG_OUTPUT", &c.Logging.Output)
	str("SCHEDULE", &c.Schedule.Spec)

	if v, ok := lookup(envPrefix + "USER_AGENTS"); ok && v != "" {
		c.Fetch.HTTP.UserAgents = splitList(v, "|")
	}

	var maxAttempts int
	if err := num("FETCH_MAX_ATTEMPTS", &maxAttempts); err != nil {
		return err
	}
	if maxAttempts > 0 {
		c.Fetch.HTTP.Policy.MaxAttempts = maxAttempts
		c.Fetch.Browser.Policy.MaxAttempts = maxAttempts
	}
	var timeout time.Duration
	if err := dur("FETCH_TIMEOUT", &timeout); err != nil {
		return err
	}
	if timeout > 0 {
		c.Fetch.HTTP.Policy.Timeout = timeout
		c.Fetch.Browser.Policy.Timeout = timeout
	}

	if err := num("SEARCH_WORKERS", &c.Search.Workers); err != nil {
		return err
	}
	if err := num("RATE_LIMIT_REQUESTS", &c.RateLimit.Requests); err != nil {
		return err
	}
	return dur("RATE_LIMIT_WINDOW", &c.RateLimit.Window)
}

func splitList(v, sep string) []string {
	var out []string
	for _, p := range strings.Split(v, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
