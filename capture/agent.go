package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/theoremus-urban-solutions/surveyor-tracking/client"
	"github.com/theoremus-urban-solutions/surveyor-tracking/model"
	"github.com/theoremus-urban-solutions/surveyor-tracking/prefs"
)

// Default cadence.
const (
	DefaultInterval    = 30 * time.Second
	DefaultMinInterval = 15 * time.Second
	DefaultMaxAuthFail = 3
)

// State is the agent lifecycle state.
type State int

const (
	Stopped State = iota
	Starting
	Running
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Pusher sends a fix to the backend. *client.Client implements it.
type Pusher interface {
	PushFix(ctx context.Context, fix model.LocationFix) error
}

// TrackingStore persists whether capture is active. *prefs.Store implements it.
type TrackingStore interface {
	SetTracking(ctx context.Context, active bool, surveyorID string) error
	Tracking(ctx context.Context) (prefs.TrackingState, error)
}

// Stats counts what the agent did since it was created.
type Stats struct {
	Captured uint64 // fixes accepted and handed to a push
	Dropped  uint64 // readings closer than the floor
	Pushed   uint64
	Failed   uint64
}

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// WithInterval sets the target interval and the floor.
func WithInterval(interval, minInterval time.Duration) Option {
	return func(a *Agent) {
		if interval > 0 {
			a.req.Interval = interval
		}
		if minInterval > 0 {
			a.req.MinInterval = minInterval
		}
	}
}

// WithTrackingStore persists the tracking flag on every start and stop.
func WithTrackingStore(ts TrackingStore) Option {
	return func(a *Agent) { a.tracking = ts }
}

// WithMaxAuthFailures stops capture after n consecutive unauthorized pushes.
// Zero disables the check.
func WithMaxAuthFailures(n int) Option {
	return func(a *Agent) { a.maxAuthFail = n }
}

// WithOnStopped registers a callback for stops the caller did not ask for:
// capability loss or an expired session. It runs on its own goroutine.
func WithOnStopped(f func(error)) Option {
	return func(a *Agent) { a.onStopped = f }
}

// Agent is the location capture agent.
type Agent struct {
	provider    Provider
	pusher      Pusher
	tracking    TrackingStore
	logger      *slog.Logger
	req         Request
	maxAuthFail int
	onStopped   func(error)

	// opMu serializes Start and Stop; mu guards the fields below and is
	// the only lock taken on the delivery path.
	opMu sync.Mutex
	mu   sync.Mutex

	state      State
	surveyorID string
	session    uint64
	sub        Subscription
	cancel     context.CancelFunc
	ctx        context.Context
	lastStamp  time.Time
	authFails  int
	stats      Stats

	pushes sync.WaitGroup
}

// NewAgent creates a stopped agent.
func NewAgent(provider Provider, pusher Pusher, opts ...Option) *Agent {
	a := &Agent{
		provider:    provider,
		pusher:      pusher,
		logger:      slog.Default(),
		req:         Request{Interval: DefaultInterval, MinInterval: DefaultMinInterval},
		maxAuthFail: DefaultMaxAuthFail,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.req.MinInterval > a.req.Interval {
		a.req.MinInterval = a.req.Interval
	}
	return a
}

// State returns the current lifecycle state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// SurveyorID returns the surveyor being tracked, or "" when stopped.
func (a *Agent) SurveyorID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == Stopped {
		return ""
	}
	return a.surveyorID
}

// Stats returns a copy of the counters.
func (a *Agent) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// Start subscribes to the provider on behalf of surveyorID. If the
// capability is denied the agent is Stopped again when Start returns and
// the error is a *CapabilityError.
func (a *Agent) Start(surveyorID string) error {
	if surveyorID == "" {
		return errors.New("capture: surveyor id is required")
	}

	a.opMu.Lock()
	defer a.opMu.Unlock()

	a.mu.Lock()
	if a.state != Stopped {
		a.mu.Unlock()
		return ErrAlreadyRunning
	}
	a.state = Starting
	a.surveyorID = surveyorID
	a.session++
	session := a.session
	a.ctx, a.cancel = context.WithCancel(context.Background())
	a.lastStamp = time.Time{}
	a.authFails = 0
	a.mu.Unlock()

	a.logger.Info("starting location capture",
		"surveyor_id", surveyorID,
		"provider", a.provider.Name(),
		"interval", a.req.Interval,
		"min_interval", a.req.MinInterval,
	)

	sub, err := a.provider.Subscribe(a.req, &sessionSink{agent: a, session: session})
	if err != nil {
		a.mu.Lock()
		a.state = Stopped
		a.cancel()
		a.session++
		a.mu.Unlock()

		if errors.Is(err, ErrCapabilityDenied) {
			a.logger.Error("location capability denied", "provider", a.provider.Name(), "error", err)
			return &CapabilityError{Provider: a.provider.Name(), Err: err}
		}
		a.logger.Error("location subscription failed", "provider", a.provider.Name(), "error", err)
		return fmt.Errorf("capture: subscribe: %w", err)
	}

	a.mu.Lock()
	if a.session != session {
		// Lost during Subscribe.
		a.state = Stopped
		a.cancel()
		a.mu.Unlock()
		sub.Cancel()
		return &CapabilityError{Provider: a.provider.Name(), Err: ErrCapabilityDenied}
	}
	a.sub = sub
	a.state = Running
	a.mu.Unlock()

	a.persist(true, surveyorID)
	a.logger.Info("location capture running", "surveyor_id", surveyorID)
	return nil
}

// Stop unsubscribes and returns to Stopped. Stopping a stopped agent does
// nothing. In-flight pushes are cancelled.
func (a *Agent) Stop() {
	a.opMu.Lock()
	defer a.opMu.Unlock()
	if a.stopLocked(0, nil) {
		a.persist(false, "")
	}
}

// Wait blocks until every push issued so far has finished.
func (a *Agent) Wait() {
	a.pushes.Wait()
}

// Resume restarts capture for the surveyor recorded in the tracking store
// if capture was active when the process last ran.
func (a *Agent) Resume(ctx context.Context) (bool, error) {
	if a.tracking == nil {
		return false, nil
	}
	state, err := a.tracking.Tracking(ctx)
	if err != nil {
		return false, fmt.Errorf("capture: reading tracking state: %w", err)
	}
	if !state.Active || state.SurveyorID == "" {
		return false, nil
	}
	a.logger.Info("resuming location capture", "surveyor_id", state.SurveyorID)
	if err := a.Start(state.SurveyorID); err != nil {
		if errors.Is(err, ErrCapabilityDenied) {
			a.persist(false, "")
		}
		return false, err
	}
	return true, nil
}

// stopLocked tears down the current session. With session != 0 it only
// acts if that session is still current. Callers hold opMu.
func (a *Agent) stopLocked(session uint64, reason error) bool {
	a.mu.Lock()
	if a.state == Stopped || (session != 0 && session != a.session) {
		a.mu.Unlock()
		return false
	}
	sub := a.sub
	cancel := a.cancel
	surveyorID := a.surveyorID
	a.sub = nil
	a.state = Stopped
	a.session++
	a.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
	if cancel != nil {
		cancel()
	}
	if reason != nil {
		a.logger.Warn("location capture stopped", "surveyor_id", surveyorID, "reason", reason)
	} else {
		a.logger.Info("location capture stopped", "surveyor_id", surveyorID)
	}
	return true
}

// abort stops session for a reason the caller did not request.
func (a *Agent) abort(session uint64, reason error) {
	a.opMu.Lock()
	stopped := a.stopLocked(session, reason)
	a.opMu.Unlock()
	if !stopped {
		return
	}
	a.persist(false, "")
	if a.onStopped != nil {
		go a.onStopped(reason)
	}
}

func (a *Agent) persist(active bool, surveyorID string) {
	if a.tracking == nil {
		return
	}
	if err := a.tracking.SetTracking(context.Background(), active, surveyorID); err != nil {
		a.logger.Warn("failed to persist tracking state", "active", active, "error", err)
	}
}

// deliver handles one reading of session.
func (a *Agent) deliver(session uint64, r Reading) {
	stamp := r.Time.UTC().Truncate(time.Second)

	a.mu.Lock()
	if session != a.session || a.state == Stopped {
		a.mu.Unlock()
		return
	}
	if !a.lastStamp.IsZero() && stamp.Sub(a.lastStamp) < a.req.MinInterval {
		a.stats.Dropped++
		a.mu.Unlock()
		a.logger.Debug("dropping fix under minimum interval", "gap", stamp.Sub(a.lastStamp))
		return
	}
	a.lastStamp = stamp
	a.stats.Captured++
	surveyorID := a.surveyorID
	ctx := a.ctx
	a.pushes.Add(1)
	a.mu.Unlock()

	fix := model.NewLocationFix(surveyorID, r.Latitude, r.Longitude, stamp)
	fix.Accuracy = r.Accuracy
	a.logger.Debug("location captured", "surveyor_id", surveyorID, "lat", fix.Latitude, "lon", fix.Longitude, "timestamp", fix.Timestamp)

	go a.push(ctx, session, fix)
}

func (a *Agent) push(ctx context.Context, session uint64, fix model.LocationFix) {
	defer a.pushes.Done()

	err := a.pusher.PushFix(ctx, fix)
	if err != nil && ctx.Err() != nil {
		a.logger.Debug("push abandoned after stop", "timestamp", fix.Timestamp)
		return
	}

	a.mu.Lock()
	if err == nil {
		a.stats.Pushed++
		if session == a.session {
			a.authFails = 0
		}
		a.mu.Unlock()
		return
	}
	a.stats.Failed++
	expired := false
	if session == a.session && client.IsUnauthorized(err) {
		a.authFails++
		expired = a.maxAuthFail > 0 && a.authFails >= a.maxAuthFail
	}
	a.mu.Unlock()

	a.logger.Warn("failed to push fix", "surveyor_id", fix.SurveyorID, "timestamp", fix.Timestamp, "error", err)
	if expired {
		a.abort(session, fmt.Errorf("capture: session rejected %d times: %w", a.maxAuthFail, err))
	}
}

// sessionSink binds provider callbacks to one capture session so a late
// callback from an old subscription is ignored.
type sessionSink struct {
	agent   *Agent
	session uint64
}

func (s *sessionSink) Fix(r Reading) { s.agent.deliver(s.session, r) }

func (s *sessionSink) Lost(err error) {
	a := s.agent
	reason := &CapabilityError{Provider: a.provider.Name(), Err: err}

	// Lost may fire from inside Subscribe, while Start holds opMu.
	a.mu.Lock()
	if a.session == s.session && a.state == Starting {
		a.session++
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()
	go a.abort(s.session, reason)
}
