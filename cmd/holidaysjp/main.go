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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"holidaysjp/internal/config"
	"holidaysjp/internal/holiday"
	appLog "holidaysjp/internal/log"
	"holidaysjp/internal/model"
	"holidaysjp/internal/obs"
	"holidaysjp/internal/scheduler"
	"holidaysjp/internal/web"
)

var version = "1.0.0-dev"

const usage = `holidaysjp checks dates against the Japanese national holiday calendar.

Usage:
  holidaysjp [-config path] [command] [flags]

Commands:
  check [DATE] [-d DATE] [-o human|json|quiet]   check one date (default: today)
  list -s START -e END [-o human|json|quiet]     list holidays in a range
  update                                         redownload holiday data
  serve                                          run the HTTP API

Dates: YYYYMMDD, YYYY-MM-DD, YYYY/MM/DD, YYYY年MM月DD日, MM/DD/YYYY, DD/MM/YYYY, YYYY.MM.DD
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			printError(os.Stderr, err)
		}
		os.Exit(exitCode(err))
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("holidaysjp", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := global.String("config", "config.yaml", "Path to config file")
	showVersion := global.Bool("version", false, "Print version and exit")
	if err := global.Parse(args); err != nil {
		return err
	}
	if *showVersion {
		fmt.Fprintf(stdout, "holidaysjp %s\n", version)
		return nil
	}

	cmd, rest := "check", global.Args()
	if len(rest) > 0 {
		switch rest[0] {
		case "check", "list", "update", "serve":
			cmd, rest = rest[0], rest[1:]
		case "help":
			global.Usage()
			return nil
		}
	}

	conf, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	appLog.Debug("effective config",
		"config_path", *configPath,
		"strategy", conf.Cache.Strategy,
		"max_age_hours", conf.Cache.MaxAgeHours,
		"etag_check_interval_hours", conf.Cache.ETagCheckIntervalHours,
		"cache_file", conf.HolidayData.CacheFile,
	)

	switch cmd {
	case "list":
		return runList(ctx, conf, rest, stdout, stderr)
	case "update":
		return runUpdate(ctx, conf, stdout)
	case "serve":
		return runServe(ctx, conf)
	default:
		return runCheck(ctx, conf, rest, stdout, stderr)
	}
}

func runCheck(ctx context.Context, conf *config.Config, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	date := fs.String("d", "", "Date to check (default: today)")
	fs.StringVar(date, "date", "", "Date to check (default: today)")
	output := fs.String("o", string(outputHuman), "Output format: human, json or quiet")
	fs.StringVar(output, "output", string(outputHuman), "Output format: human, json or quiet")

	positional, err := parseInterspersed(fs, args)
	if err != nil {
		return err
	}
	format, err := parseOutputFormat(*output)
	if err != nil {
		return err
	}

	switch {
	case len(positional) > 1:
		return fmt.Errorf("%w: check takes at most one date", errUsage)
	case len(positional) == 1 && *date != "":
		return fmt.Errorf("%w: give the date either positionally or with -d, not both", errUsage)
	case len(positional) == 1:
		*date = positional[0]
	case *date == "":
		*date = holiday.Today(timeNow())
	}

	svc, err := newService(ctx, conf)
	if err != nil {
		return err
	}
	ok, name, err := svc.GetHoliday(*date)
	if err != nil {
		return err
	}
	return writeHolidayResult(stdout, *date, ok, name, format)
}

func runList(ctx context.Context, conf *config.Config, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(stderr)
	start := fs.String("s", "", "Start date of the range")
	fs.StringVar(start, "start", "", "Start date of the range")
	end := fs.String("e", "", "End date of the range")
	fs.StringVar(end, "end", "", "End date of the range")
	output := fs.String("o", string(outputHuman), "Output format: human, json or quiet")
	fs.StringVar(output, "output", string(outputHuman), "Output format: human, json or quiet")

	if _, err := parseInterspersed(fs, args); err != nil {
		return err
	}
	format, err := parseOutputFormat(*output)
	if err != nil {
		return err
	}
	if *start == "" || *end == "" {
		return fmt.Errorf("%w: both -s and -e are required for list", errUsage)
	}

	svc, err := newService(ctx, conf)
	if err != nil {
		return err
	}
	list, err := svc.GetHolidaysInRange(*start, *end)
	if err != nil {
		return err
	}
	return writeHolidayList(stdout, *start, *end, list, format)
}

func runUpdate(ctx context.Context, conf *config.Config, stdout io.Writer) error {
	svc, err := holiday.NewService(conf, holiday.ServiceOptions{})
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, "Updating holiday data from the official source...")
	if err := svc.Refresh(ctx, true); err != nil {
		return err
	}
	st := svc.Status()
	fmt.Fprintf(stdout, "Holiday data updated: %d holidays saved to %s\n", st.Holidays, st.CacheFile)
	return nil
}

// runServe keeps the service alive behind the HTTP API and refreshes it on
// the configured cron schedule until ctx is canceled.
func runServe(ctx context.Context, conf *config.Config) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := obs.NewMetrics(reg)

	svc, err := holiday.NewService(conf, holiday.ServiceOptions{Metrics: metrics})
	if err != nil {
		return err
	}
	// A failed first load is not fatal here; the API answers 503 until a
	// scheduled refresh succeeds.
	if err := svc.Initialize(ctx); err != nil {
		appLog.Error("initial holiday load failed; serving without data", err)
	}

	sched, err := scheduler.New(conf.Server.RefreshCron, func(ctx context.Context) {
		if err := svc.Refresh(ctx, false); err != nil {
			appLog.Error("scheduled refresh failed", err)
		}
	})
	if err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	appLog.Info("holidaysjp serving", "version", version, "listen", conf.Server.Listen, "strategy", conf.Cache.Strategy)
	return web.StartServer(ctx, conf, svc, reg)
}

// newService builds and initializes a service for one-shot commands.
func newService(ctx context.Context, conf *config.Config) (*holiday.Service, error) {
	svc, err := holiday.NewService(conf, holiday.ServiceOptions{})
	if err != nil {
		return nil, err
	}
	if err := svc.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initializing holiday data: %w", err)
	}
	return svc, nil
}

// parseInterspersed parses fs allowing positional arguments between flags,
// e.g. "check 2023-01-01 -o json".
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		if args[0] == "--" {
			return append(positional, args[1:]...), nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

var errUsage = errors.New("usage error")

func exitCode(err error) int {
	switch {
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		return 2
	default:
		return 1
	}
}

// printError writes err plus a hint for the failure class.
func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "error: %v\n", err)
	if hint := hintFor(err); hint != "" {
		fmt.Fprintf(w, "hint: %s\n", hint)
	}
}

func hintFor(err error) string {
	switch {
	case errors.Is(err, errUsage):
		return "run 'holidaysjp help' for usage"
	case errors.Is(err, model.ErrParse):
		return "check the date format, for example 2023-01-01 or 2023年1月1日"
	case errors.Is(err, model.ErrInvalidRange):
		return "the start date must not be after the end date"
	case errors.Is(err, model.ErrNetwork):
		return "check your internet connection and the configured source_url"
	case errors.Is(err, model.ErrCacheIO):
		return "check that the cache_file location is writable"
	case errors.Is(err, model.ErrConfig):
		return "fix the config file or delete it to regenerate defaults"
	default:
		return ""
	}
}
