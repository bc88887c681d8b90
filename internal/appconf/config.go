// Package appconf holds the process configuration shared by every ikuyo
// subcommand.
package appconf

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Environment int

const (
	Development Environment = iota
	Test
	Production
)

func (e Environment) String() string {
	switch e {
	case Test:
		return "test"
	case Production:
		return "production"
	default:
		return "development"
	}
}

// ParseEnvironment maps a name to an Environment, defaulting to Development.
func ParseEnvironment(s string) Environment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "production", "prod":
		return Production
	case "test":
		return Test
	default:
		return Development
	}
}

const (
	DefaultPort              = 4000
	DefaultDBPath            = "ikuyo.db"
	DefaultProviderBaseURL   = "https://www.mvv-muenchen.de"
	DefaultTimezone          = "Europe/Berlin"
	DefaultRateLimit         = 10
	DefaultProviderRateLimit = 2.0
	DefaultIdleInterval      = time.Minute
)

// Environment variable names. Every key may also be set in a .env file.
const (
	EnvEnv               = "IKUYO_ENV"
	EnvPort              = "IKUYO_PORT"
	EnvDBPath            = "IKUYO_DB_PATH"
	EnvProviderBaseURL   = "IKUYO_PROVIDER_BASE_URL"
	EnvTimezone          = "IKUYO_TIMEZONE"
	EnvRateLimit         = "IKUYO_RATE_LIMIT"
	EnvProviderRateLimit = "IKUYO_PROVIDER_RATE_LIMIT"
	EnvVerbose           = "IKUYO_VERBOSE"
	EnvClockVar          = "IKUYO_CLOCK_ENV_VAR"
	EnvClockFile         = "IKUYO_CLOCK_FILE"
	EnvIdleInterval      = "IKUYO_IDLE_INTERVAL"
	EnvCORSOrigins       = "IKUYO_CORS_ORIGINS"
)

type Config struct {
	Env  Environment
	Port int
	// DBPath is the SQLite file holding the saved widget configuration and
	// lookup cache. ":memory:" keeps everything in process.
	DBPath          string
	ProviderBaseURL string
	Timezone        string
	// RateLimit is the number of manual refreshes accepted per minute and client.
	RateLimit int
	// ProviderRateLimit caps outgoing agency requests per second. 0 disables it.
	ProviderRateLimit float64
	// IdleInterval is how often the refresh loop re-checks for a saved
	// configuration while none exists.
	IdleInterval time.Duration
	Verbose      bool
	// ClockEnvVar and ClockFile pin the wall clock for replay and demos.
	ClockEnvVar string
	ClockFile   string
	// CORSOrigins lists the browser origins allowed to call the API. Empty
	// disables CORS handling.
	CORSOrigins []string
}

// Defaults returns a Config populated with the built-in defaults.
func Defaults() Config {
	return Config{
		Env:               Development,
		Port:              DefaultPort,
		DBPath:            DefaultDBPath,
		ProviderBaseURL:   DefaultProviderBaseURL,
		Timezone:          DefaultTimezone,
		RateLimit:         DefaultRateLimit,
		ProviderRateLimit: DefaultProviderRateLimit,
		IdleInterval:      DefaultIdleInterval,
	}
}

// LoadDotEnv loads the given dotenv files into the process environment.
// Missing files are skipped; values already present in the environment win.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// FromEnv overlays environment values onto base. lookup is usually
// os.LookupEnv.
func FromEnv(base Config, lookup func(string) (string, bool)) (Config, error) {
	cfg := base
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		if !ok {
			return "", false
		}
		v = strings.TrimSpace(v)
		return v, v != ""
	}

	if v, ok := get(EnvEnv); ok {
		cfg.Env = ParseEnvironment(v)
	}
	if v, ok := get(EnvPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", EnvPort, err)
		}
		cfg.Port = port
	}
	if v, ok := get(EnvDBPath); ok {
		cfg.DBPath = v
	}
	if v, ok := get(EnvProviderBaseURL); ok {
		cfg.ProviderBaseURL = strings.TrimRight(v, "/")
	}
	if v, ok := get(EnvTimezone); ok {
		cfg.Timezone = v
	}
	if v, ok := get(EnvRateLimit); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", EnvRateLimit, err)
		}
		cfg.RateLimit = n
	}
	if v, ok := get(EnvProviderRateLimit); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", EnvProviderRateLimit, err)
		}
		cfg.ProviderRateLimit = f
	}
	if v, ok := get(EnvIdleInterval); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", EnvIdleInterval, err)
		}
		cfg.IdleInterval = d
	}
	if v, ok := get(EnvVerbose); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", EnvVerbose, err)
		}
		cfg.Verbose = b
	}
	if v, ok := get(EnvClockVar); ok {
		cfg.ClockEnvVar = v
	}
	if v, ok := get(EnvClockFile); ok {
		cfg.ClockFile = v
	}
	if v, ok := get(EnvCORSOrigins); ok {
		cfg.CORSOrigins = SplitList(v)
	}
	return cfg, nil
}

// SplitList splits a comma separated value, dropping blank entries.
func SplitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return errors.New("database path must not be empty")
	}
	if !strings.HasPrefix(c.ProviderBaseURL, "http://") && !strings.HasPrefix(c.ProviderBaseURL, "https://") {
		return fmt.Errorf("provider base URL must be http(s), got %q", c.ProviderBaseURL)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative, got %d", c.RateLimit)
	}
	if c.ProviderRateLimit < 0 {
		return fmt.Errorf("provider rate limit must not be negative, got %g", c.ProviderRateLimit)
	}
	if c.IdleInterval <= 0 {
		return fmt.Errorf("idle interval must be positive, got %s", c.IdleInterval)
	}
	return nil
}

// Location resolves Timezone. An empty value means the host's local zone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
