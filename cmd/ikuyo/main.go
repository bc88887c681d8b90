// Command ikuyo shows live departures for one stop. It configures the
// stop and its routes, prints departures, and serves them as JSON.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"ikuyo.transit.dev/internal/appconf"
)

const usage = `Usage: ikuyo [global flags] <command> [flags]

Commands:
  serve                          run the refresh loop and the HTTP API
  stops <query>                  search stops (--near lat,lon --radius m)
  routes                         list routes of a stop (--stop id --no-cache)
  configure --stop id --routes a,b
                                 save the widget configuration
  departures                     run one refresh and print the result
  show                           print the saved configuration and lookup cache
  reset                          forget the lookup cache (--all also the configuration)

Global flags:
`

// errUsage marks errors caused by bad invocation.
var errUsage = errors.New("usage error")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.LookupEnv, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, lookupEnv func(string) (string, bool), stdout, stderr io.Writer) int {
	cfg, rest, err := loadConfig(args, lookupEnv, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(stderr, "ikuyo:", err)
		return 2
	}
	if len(rest) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	cmd, ok := commands[rest[0]]
	if !ok {
		fmt.Fprintf(stderr, "ikuyo: unknown command %q\n\n%s", rest[0], usage)
		return 2
	}

	coreApp, err := BuildApplication(cfg, stderr)
	if err != nil {
		fmt.Fprintln(stderr, "ikuyo:", err)
		return 1
	}
	defer coreApp.Close()

	err = cmd(ctx, &commandEnv{app: coreApp, args: rest[1:], stdout: stdout, stderr: stderr})
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintln(stderr, "ikuyo:", err)
		return 2
	default:
		fmt.Fprintln(stderr, "ikuyo:", err)
		return 1
	}
}

// loadConfig resolves settings from defaults, a .env file, the environment
// and global flags, later sources winning.
func loadConfig(args []string, lookupEnv func(string) (string, bool), stderr io.Writer) (appconf.Config, []string, error) {
	fs := flag.NewFlagSet("ikuyo", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}

	envFile := fs.String("env-file", ".env", "dotenv file to load; empty to skip")
	env := fs.String("env", "", "environment: development, test or production")
	port := fs.Int("port", 0, "HTTP port for serve")
	dbPath := fs.String("db", "", "SQLite database path, or :memory:")
	baseURL := fs.String("base-url", "", "MVV base URL")
	timezone := fs.String("timezone", "", "time zone for displayed times")
	rateLimit := fs.Int("rate-limit", 0, "manual refreshes per minute and client")
	verbose := fs.Bool("verbose", false, "debug logging")
	corsOrigins := fs.String("cors-origins", "", "comma separated browser origins allowed to call the API")

	if err := fs.Parse(args); err != nil {
		return appconf.Config{}, nil, err
	}

	if *envFile != "" {
		if err := appconf.LoadDotEnv(*envFile); err != nil {
			return appconf.Config{}, nil, err
		}
	}
	cfg, err := appconf.FromEnv(appconf.Defaults(), lookupEnv)
	if err != nil {
		return appconf.Config{}, nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "env":
			cfg.Env = appconf.ParseEnvironment(*env)
		case "port":
			cfg.Port = *port
		case "db":
			cfg.DBPath = *dbPath
		case "base-url":
			cfg.ProviderBaseURL = *baseURL
		case "timezone":
			cfg.Timezone = *timezone
		case "rate-limit":
			cfg.RateLimit = *rateLimit
		case "verbose":
			cfg.Verbose = *verbose
		case "cors-origins":
			cfg.CORSOrigins = appconf.SplitList(*corsOrigins)
		}
	})

	if err := cfg.Validate(); err != nil {
		return appconf.Config{}, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, fs.Args(), nil
}
