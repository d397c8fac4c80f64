// surveyor-agent is the field capture client: it signs a surveyor in,
// captures positions and pushes them to the tracking backend.
//
// Usage:
//
//	surveyor-agent login  --username ana --password secret
//	surveyor-agent track  [--duration 10m] [--resume]
//	surveyor-agent status
//	surveyor-agent logout
//
// There is no platform location service on a server, so track walks a
// simulated path starting at --lat/--lon.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/theoremus-urban-solutions/surveyor-tracking/capture"
	"github.com/theoremus-urban-solutions/surveyor-tracking/client"
	"github.com/theoremus-urban-solutions/surveyor-tracking/config"
	"github.com/theoremus-urban-solutions/surveyor-tracking/internal"
	"github.com/theoremus-urban-solutions/surveyor-tracking/prefs"
)

type options struct {
	configPath  string
	backendName string
	baseURL     string
	statePath   string
	logLevel    string
	username    string
	password    string
	interval    time.Duration
	minInterval time.Duration
	duration    time.Duration
	resume      bool
	lat, lon    float64
	speed       float64
	heading     float64
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var o options
	flags := pflag.NewFlagSet("surveyor-agent", pflag.ContinueOnError)
	flags.StringVar(&o.configPath, "config", "", "path to config.yml (default: $SURVEYOR_CONFIG or ./config.yml)")
	flags.StringVar(&o.backendName, "backend", "", "backend name from config.backends[]")
	flags.StringVar(&o.baseURL, "base-url", "", "backend base URL (overrides config and $SURVEYOR_BASE_URL)")
	flags.StringVar(&o.statePath, "state", "", "agent state database (default: $SURVEYOR_STATE or agent.statePath)")
	flags.StringVar(&o.logLevel, "log-level", "", "debug|info|warn|error")
	flags.StringVarP(&o.username, "username", "u", "", "username for login")
	flags.StringVarP(&o.password, "password", "p", "", "password for login")
	flags.DurationVar(&o.interval, "interval", 0, "target capture interval (overrides agent.intervalMS)")
	flags.DurationVar(&o.minInterval, "min-interval", 0, "minimum spacing between fixes (overrides agent.minIntervalMS)")
	flags.DurationVar(&o.duration, "duration", 0, "stop tracking after this long (0: until interrupted)")
	flags.BoolVar(&o.resume, "resume", false, "track only if tracking was active when the agent last ran")
	flags.Float64Var(&o.lat, "lat", 42.6977, "simulated start latitude")
	flags.Float64Var(&o.lon, "lon", 23.3219, "simulated start longitude")
	flags.Float64Var(&o.speed, "speed", 1.4, "simulated walking speed in m/s")
	flags.Float64Var(&o.heading, "heading", 45, "simulated heading in degrees from north")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	args := flags.Args()
	if len(args) != 1 {
		return fmt.Errorf("expected one command: login, track, status or logout")
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

	store, err := prefs.Open(internal.ResolveStatePath(o.statePath), logger)
	if err != nil {
		return err
	}
	defer store.Close()

	b := internal.ResolveBackend(o.backendName, o.baseURL)
	c := client.NewClient(b.BaseURL, nil, client.WithTimeout(b.Timeout()), client.WithLogger(logger))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "login":
		return login(ctx, c, store, o)
	case "logout":
		return capture.SignOut(ctx, nil, c, store)
	case "status":
		return status(ctx, store)
	case "track":
		return track(ctx, c, store, cfg, o, logger)
	}
	return fmt.Errorf("unknown command %q", args[0])
}

func login(ctx context.Context, c *client.Client, store *prefs.Store, o options) error {
	if o.username == "" || o.password == "" {
		return errors.New("login needs --username and --password")
	}
	sv, err := capture.SignIn(ctx, c, store, o.username, o.password)
	if err != nil {
		return err
	}
	fmt.Printf("signed in as %s (%s), %s / %s\n", sv.Name, sv.ID, sv.City, sv.ProjectName)
	return nil
}

func status(ctx context.Context, store *prefs.Store) error {
	sess, err := store.LoadSession(ctx)
	switch {
	case errors.Is(err, prefs.ErrNotFound):
		fmt.Println("signed out")
	case err != nil:
		return err
	default:
		fmt.Printf("signed in as %s (%s) since %s\n", sess.Username, sess.Surveyor.ID, sess.SavedAt.Format(time.RFC3339))
	}
	state, err := store.Tracking(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("tracking active: %v, last surveyor: %q\n", state.Active, state.SurveyorID)
	return nil
}

func track(ctx context.Context, c *client.Client, store *prefs.Store, cfg config.AppConfig, o options, logger *slog.Logger) error {
	sess, ok, err := capture.Restore(ctx, store, c.Session())
	if err != nil {
		return err
	}
	if !ok {
		if o.username == "" {
			return errors.New("not signed in; run login first or pass --username/--password")
		}
		if err := login(ctx, c, store, o); err != nil {
			return err
		}
		if sess, _, err = capture.Restore(ctx, store, c.Session()); err != nil {
			return err
		}
	}

	interval, minInterval := cfg.Agent.Interval(), cfg.Agent.MinInterval()
	if o.interval > 0 {
		interval = o.interval
	}
	if o.minInterval > 0 {
		minInterval = o.minInterval
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if o.duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, o.duration)
		defer cancel()
	}

	provider := &capture.SimulatedProvider{Latitude: o.lat, Longitude: o.lon, SpeedMPS: o.speed, HeadingDeg: o.heading}
	agent := capture.NewAgent(provider, c,
		capture.WithLogger(logger),
		capture.WithInterval(interval, minInterval),
		capture.WithTrackingStore(store),
		capture.WithMaxAuthFailures(cfg.Dashboard.AuthFailureLimit()),
		capture.WithOnStopped(func(reason error) {
			logger.Error("capture stopped", "reason", reason)
			cancel()
		}),
	)

	if o.resume {
		resumed, err := agent.Resume(ctx)
		if err != nil {
			return err
		}
		if !resumed {
			fmt.Println("tracking was not active; nothing to resume")
			return nil
		}
	} else if err := agent.Start(sess.Surveyor.ID); err != nil {
		return err
	}

	<-ctx.Done()
	agent.Stop()
	agent.Wait()

	st := agent.Stats()
	fmt.Printf("captured %d, dropped %d, pushed %d, failed %d\n", st.Captured, st.Dropped, st.Pushed, st.Failed)
	return nil
}
