// surveyor-dashboard is a headless tracking dashboard. It drives the same
// view-mode state machine as the map UI and prints each refresh.
//
// Usage:
//
//	surveyor-dashboard watch     [--surveyor SUR001] [--duration 5m]
//	surveyor-dashboard history   --surveyor SUR001 [--from T] [--to T]
//	surveyor-dashboard surveyors [--city C] [--project P]
//	surveyor-dashboard feed      [--source URL|FILE]
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/theoremus-urban-solutions/surveyor-tracking/client"
	"github.com/theoremus-urban-solutions/surveyor-tracking/clock"
	"github.com/theoremus-urban-solutions/surveyor-tracking/config"
	"github.com/theoremus-urban-solutions/surveyor-tracking/dashboard"
	"github.com/theoremus-urban-solutions/surveyor-tracking/internal"
	"github.com/theoremus-urban-solutions/surveyor-tracking/model"
	"github.com/theoremus-urban-solutions/surveyor-tracking/polling"
	"github.com/theoremus-urban-solutions/surveyor-tracking/utils"
)

type options struct {
	configPath  string
	backendName string
	baseURL     string
	logLevel    string
	username    string
	password    string
	surveyor    string
	from, to    string
	city        string
	project     string
	source      string
	duration    time.Duration
	returnTo    string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var o options
	flags := pflag.NewFlagSet("surveyor-dashboard", pflag.ContinueOnError)
	flags.StringVar(&o.configPath, "config", "", "path to config.yml (default: $SURVEYOR_CONFIG or ./config.yml)")
	flags.StringVar(&o.backendName, "backend", "", "backend name from config.backends[]")
	flags.StringVar(&o.baseURL, "base-url", "", "backend base URL (overrides config and $SURVEYOR_BASE_URL)")
	flags.StringVar(&o.logLevel, "log-level", "", "debug|info|warn|error")
	flags.StringVarP(&o.username, "username", "u", "", "sign in before reading (needed when the backend requires read auth)")
	flags.StringVarP(&o.password, "password", "p", "", "password for --username")
	flags.StringVarP(&o.surveyor, "surveyor", "s", "", "surveyor id (watch: follow one surveyor; history: required)")
	flags.StringVar(&o.from, "from", "", "history range start, ISO-8601 (default: 24h before --to)")
	flags.StringVar(&o.to, "to", "", "history range end, ISO-8601 (default: now)")
	flags.StringVar(&o.city, "city", "", "surveyors: city filter")
	flags.StringVar(&o.project, "project", "", "surveyors: project filter")
	flags.StringVar(&o.source, "source", "", "feed: VehiclePositions URL or file (default: the backend feed)")
	flags.DurationVar(&o.duration, "duration", 0, "watch: stop after this long (0: until interrupted)")
	flags.StringVar(&o.returnTo, "return", "", "all|selection: where to go when leaving a historical view")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	args := flags.Args()
	if len(args) != 1 {
		return errors.New("expected one command: watch, history, surveyors or feed")
	}

	if err := internal.LoadEnv(); err != nil {
		return err
	}
	cfg, err := internal.LoadConfig(o.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if o.logLevel == "" {
		o.logLevel = cfg.Logging.Level
	}
	logger := internal.InitLogging(o.logLevel)

	b := internal.ResolveBackend(o.backendName, o.baseURL)
	c := client.NewClient(b.BaseURL, nil, client.WithTimeout(b.Timeout()), client.WithLogger(logger))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if o.username != "" {
		if _, err := c.Login(ctx, o.username, o.password); err != nil {
			return err
		}
	}

	switch args[0] {
	case "watch":
		return watch(ctx, c, cfg, o, logger)
	case "history":
		return history(ctx, c, cfg, o, logger)
	case "surveyors":
		return surveyors(ctx, c, o)
	case "feed":
		src := o.source
		if src == "" {
			src = b.BaseURL + "/api/feeds/vehicle-positions.pb"
		}
		return printFeed(ctx, src, b.Timeout())
	}
	return fmt.Errorf("unknown command %q", args[0])
}

func newDashboard(c *client.Client, cfg config.AppConfig, o options, logger *slog.Logger) (*dashboard.Dashboard, error) {
	policy := cfg.Dashboard.ReturnPolicy
	if o.returnTo != "" {
		policy = o.returnTo
	}
	rp, err := dashboard.ParseReturnPolicy(policy)
	if err != nil {
		return nil, err
	}
	clk := clock.Real()
	return dashboard.New(c, polling.NewController(clk, logger),
		dashboard.WithClock(clk),
		dashboard.WithLogger(logger),
		dashboard.WithIntervals(dashboard.Intervals{
			Status:     cfg.Dashboard.StatusInterval(),
			AllLatest:  cfg.Dashboard.AllLatestInterval(),
			SingleLive: cfg.Dashboard.SingleLiveInterval(),
		}),
		dashboard.WithReturnPolicy(rp),
		dashboard.WithMaxAuthFailures(cfg.Dashboard.AuthFailureLimit()),
		dashboard.WithRenderer(&textRenderer{out: os.Stdout}),
	), nil
}

func watch(ctx context.Context, c *client.Client, cfg config.AppConfig, o options, logger *slog.Logger) error {
	d, err := newDashboard(c, cfg, o, logger)
	if err != nil {
		return err
	}
	defer func() {
		d.Close()
		d.Wait()
	}()

	if o.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.duration)
		defer cancel()
	}

	d.Start(ctx)
	if o.surveyor != "" {
		if err := d.SelectSurveyor(o.surveyor); err != nil {
			return err
		}
	}
	select {
	case <-d.Expired():
		return dashboard.ErrSessionExpired
	case <-ctx.Done():
		return nil
	}
}

func history(ctx context.Context, c *client.Client, cfg config.AppConfig, o options, logger *slog.Logger) error {
	to := time.Now().UTC()
	if o.to != "" {
		t, err := utils.ParseTimestamp(o.to)
		if err != nil {
			return fmt.Errorf("--to: %w", err)
		}
		to = t
	}
	from := to.Add(-24 * time.Hour)
	if o.from != "" {
		t, err := utils.ParseTimestamp(o.from)
		if err != nil {
			return fmt.Errorf("--from: %w", err)
		}
		from = t
	}

	d, err := newDashboard(c, cfg, o, logger)
	if err != nil {
		return err
	}
	defer func() {
		d.Close()
		d.Wait()
	}()

	res, err := d.RequestHistorical(ctx, o.surveyor, from, to)
	if err != nil {
		return err
	}
	if res.Empty {
		return nil
	}
	for _, f := range res.Fixes {
		fmt.Printf("%s  %9.5f %10.5f\n", f.Timestamp, f.Latitude, f.Longitude)
	}
	return nil
}

func surveyors(ctx context.Context, c *client.Client, o options) error {
	list, err := c.FetchSurveyors(ctx)
	if err != nil {
		return err
	}
	trackable := make([]model.Surveyor, 0, len(list))
	for _, s := range list {
		if s.IsTrackable() {
			trackable = append(trackable, s)
		}
	}
	for _, s := range dashboard.FilterSurveyors(trackable, o.city, o.project) {
		fmt.Printf("%-10s %-24s %-16s %s\n", s.ID, s.Name, s.City, s.ProjectName)
	}
	return nil
}

func printFeed(ctx context.Context, src string, timeout time.Duration) error {
	fixes, err := newFetcher(&http.Client{Timeout: timeout}).vehiclePositions(ctx, src)
	if err != nil {
		return err
	}
	for _, f := range fixes {
		fmt.Printf("%-10s %9.5f %10.5f  %s\n", f.SurveyorID, f.Latitude, f.Longitude, f.Timestamp)
	}
	return nil
}
