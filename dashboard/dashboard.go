package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/theoremus-urban-solutions/surveyor-tracking/client"
	"github.com/theoremus-urban-solutions/surveyor-tracking/clock"
	"github.com/theoremus-urban-solutions/surveyor-tracking/model"
	"github.com/theoremus-urban-solutions/surveyor-tracking/polling"
	"github.com/theoremus-urban-solutions/surveyor-tracking/utils"
)

var (
	ErrSurveyorRequired = errors.New("dashboard: a specific surveyor is required")
	ErrInvalidRange     = errors.New("dashboard: start time is after end time")
	ErrSuperseded       = errors.New("dashboard: view changed while the request was in flight")
	ErrSessionExpired   = errors.New("dashboard: session expired")
	ErrClosed           = errors.New("dashboard: closed")
)

// Source is the backend as the dashboard sees it. *client.Client
// implements it.
type Source interface {
	FetchSurveyors(ctx context.Context) ([]model.Surveyor, error)
	FetchStatusAll(ctx context.Context) (map[string]model.OnlineState, error)
	FetchLatestAll(ctx context.Context) ([]model.LocationFix, error)
	FetchLatest(ctx context.Context, surveyorID string) (*model.LocationFix, error)
	FetchTrack(ctx context.Context, surveyorID string, from, to time.Time) ([]model.LocationFix, error)
}

// Scheduler runs the polling loops. *polling.Controller implements it.
type Scheduler interface {
	Ensure(kind polling.Kind, interval time.Duration, action polling.Action) bool
	Cancel(kind polling.Kind)
	CancelAll()
	IsCurrent(kind polling.Kind, gen uint64) bool
}

// Intervals are the loop periods.
type Intervals struct {
	Status     time.Duration
	AllLatest  time.Duration
	SingleLive time.Duration
}

// DefaultIntervals returns 15s status, 20s all-latest and 5s single-live.
func DefaultIntervals() Intervals {
	return Intervals{Status: 15 * time.Second, AllLatest: 20 * time.Second, SingleLive: 5 * time.Second}
}

// Marker is a fix placed on the map.
type Marker struct {
	Fix   model.LocationFix
	Name  string
	State model.OnlineState
}

// HistoricalResult is returned by RequestHistorical. Empty is set when the
// range held no fixes; the mode is then left unchanged.
type HistoricalResult struct {
	Empty bool
	Fixes []model.LocationFix
	Route utils.RouteSummary
}

// Snapshot is the displayed state. The Loaded flags separate "nothing
// fetched yet" from "fetched and empty"; Stale means the last refresh failed
// and the previous data is still shown.
type Snapshot struct {
	Mode      ViewMode
	Surveyors []model.Surveyor

	Status       map[string]model.OnlineState
	StatusLoaded bool
	StatusStale  bool

	Latest       []Marker
	LatestLoaded bool
	LatestStale  bool

	Live       *Marker
	LiveLoaded bool
	LiveStale  bool

	Track []model.LocationFix
	Route utils.RouteSummary

	SessionExpired bool
	UpdatedAt      time.Time
}

// NoticeKind classifies a Notice.
type NoticeKind int

const (
	NoticeNoData NoticeKind = iota
	NoticeFetchFailed
	NoticeSessionExpired
)

// Notice is a one-off message for the user.
type Notice struct {
	Kind    NoticeKind
	Op      string
	Message string
	Err     error
}

// MapRenderer displays the dashboard. Both methods are called with the
// dashboard's lock held and must not call back into the Dashboard.
type MapRenderer interface {
	Render(Snapshot)
	Notify(Notice)
}

// Option configures a Dashboard.
type Option func(*Dashboard)

// WithClock sets the time source for UpdatedAt.
func WithClock(c clock.Clock) Option {
	return func(d *Dashboard) { d.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dashboard) { d.logger = l }
}

// WithIntervals overrides the loop periods.
func WithIntervals(iv Intervals) Option {
	return func(d *Dashboard) { d.intervals = iv }
}

// WithReturnPolicy sets where ReturnToLive goes. The default is ReturnToAll.
func WithReturnPolicy(p ReturnPolicy) Option {
	return func(d *Dashboard) { d.policy = p }
}

// WithRenderer attaches a display.
func WithRenderer(r MapRenderer) Option {
	return func(d *Dashboard) { d.renderer = r }
}

// WithMaxAuthFailures expires the session after n consecutive unauthorized
// fetches. Zero disables expiry.
func WithMaxAuthFailures(n int) Option {
	return func(d *Dashboard) { d.maxAuthFail = n }
}

// Dashboard is the view-mode state machine. All methods are safe for
// concurrent use.
type Dashboard struct {
	source      Source
	sched       Scheduler
	renderer    MapRenderer
	clock       clock.Clock
	logger      *slog.Logger
	intervals   Intervals
	policy      ReturnPolicy
	maxAuthFail int

	mu        sync.Mutex
	mode      ViewMode
	modeSeq   uint64
	closed    bool
	expired   bool
	expiredCh chan struct{}
	authFails int

	surveyors []model.Surveyor
	names     map[string]string

	status       map[string]model.OnlineState
	statusLoaded bool
	statusStale  bool

	latest       []Marker
	latestLoaded bool
	latestStale  bool

	live       *Marker
	liveLoaded bool
	liveStale  bool

	track     []model.LocationFix
	route     utils.RouteSummary
	updatedAt time.Time

	inflight sync.WaitGroup
}

// New returns a dashboard in LiveAll with no loops running; call Start.
func New(source Source, sched Scheduler, opts ...Option) *Dashboard {
	d := &Dashboard{
		source:      source,
		sched:       sched,
		clock:       clock.Real(),
		logger:      slog.Default(),
		intervals:   DefaultIntervals(),
		maxAuthFail: 3,
		mode:        LiveAllMode(),
		expiredCh:   make(chan struct{}),
		names:       map[string]string{},
		status:      map[string]model.OnlineState{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start enters LiveAll and loads the surveyor list in the background.
func (d *Dashboard) Start(ctx context.Context) {
	d.mu.Lock()
	if d.closed || d.expired {
		d.mu.Unlock()
		return
	}
	d.transitionLocked(LiveAllMode())
	d.mu.Unlock()

	d.spawn(func() {
		if err := d.RefreshSurveyors(ctx); err != nil {
			d.logger.Warn("failed to load surveyors", "error", err)
		}
	})
}

// RefreshSurveyors reloads the surveyor list used for names and filters.
func (d *Dashboard) RefreshSurveyors(ctx context.Context) error {
	list, err := d.source.FetchSurveyors(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		d.fetchFailedLocked("fetch surveyors", err)
		return err
	}
	trackable := make([]model.Surveyor, 0, len(list))
	names := make(map[string]string, len(list))
	for _, s := range list {
		if !s.IsTrackable() {
			continue
		}
		s.Password = ""
		trackable = append(trackable, s)
		names[s.ID] = s.Name
	}
	d.surveyors = trackable
	d.names = names
	for i := range d.latest {
		d.latest[i].Name = names[d.latest[i].Fix.SurveyorID]
	}
	if d.live != nil {
		d.live.Name = names[d.live.Fix.SurveyorID]
	}
	d.renderLocked()
	return nil
}

// Surveyors returns the loaded list filtered by city and project.
func (d *Dashboard) Surveyors(city, project string) []model.Surveyor {
	d.mu.Lock()
	defer d.mu.Unlock()
	return FilterSurveyors(d.surveyors, city, project)
}

// SelectSurveyor switches to LiveSingle(id), or to LiveAll when id is
// model.AllSurveyors. It is valid from any mode.
func (d *Dashboard) SelectSurveyor(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrSurveyorRequired
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.usableLocked(); err != nil {
		return err
	}
	if id == model.AllSurveyors {
		d.transitionLocked(LiveAllMode())
	} else {
		d.transitionLocked(LiveSingleMode(id))
	}
	return nil
}

// RequestHistorical fetches the track of id over [from, to]. A non-empty
// track moves the dashboard to Historical. An empty one leaves the mode as
// it was and returns a result with Empty set. If the mode changes while the
// fetch is in flight the result is dropped and ErrSuperseded returned.
func (d *Dashboard) RequestHistorical(ctx context.Context, id string, from, to time.Time) (HistoricalResult, error) {
	id = strings.TrimSpace(id)
	if id == "" || id == model.AllSurveyors {
		return HistoricalResult{}, ErrSurveyorRequired
	}
	if from.After(to) {
		return HistoricalResult{}, ErrInvalidRange
	}

	d.mu.Lock()
	if err := d.usableLocked(); err != nil {
		d.mu.Unlock()
		return HistoricalResult{}, err
	}
	seq := d.modeSeq
	d.mu.Unlock()

	d.logger.Info("requesting historical track", "surveyor_id", id, "from", from, "to", to)
	fixes, err := d.source.FetchTrack(ctx, id, from, to)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.modeSeq != seq {
		d.logger.Debug("discarding superseded historical track", "surveyor_id", id)
		return HistoricalResult{}, ErrSuperseded
	}
	if err != nil {
		d.fetchFailedLocked("fetch track", err)
		return HistoricalResult{}, err
	}
	d.authFails = 0

	if len(fixes) == 0 {
		d.notifyLocked(Notice{Kind: NoticeNoData, Op: "fetch track", Message: "No location data found for the selected time range"})
		return HistoricalResult{Empty: true, Fixes: []model.LocationFix{}}, nil
	}

	fixes = sortedByTime(fixes)
	route := summarize(fixes)
	d.track = fixes
	d.route = route
	d.transitionLocked(HistoricalMode(id, from, to))
	return HistoricalResult{Fixes: append([]model.LocationFix(nil), fixes...), Route: route}, nil
}

// ReturnToLive leaves Historical according to the return policy. In any
// other mode it does nothing.
func (d *Dashboard) ReturnToLive() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.usableLocked(); err != nil {
		return err
	}
	if d.mode.Kind != Historical {
		return nil
	}
	if d.policy == ReturnToSelection {
		d.transitionLocked(LiveSingleMode(d.mode.SurveyorID))
	} else {
		d.transitionLocked(LiveAllMode())
	}
	return nil
}

// Mode returns the current mode.
func (d *Dashboard) Mode() ViewMode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// Snapshot returns a copy of the displayed state.
func (d *Dashboard) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

// Expired is closed once repeated auth failures have expired the session.
func (d *Dashboard) Expired() <-chan struct{} {
	return d.expiredCh
}

// Close cancels every loop. In-flight fetches finish but are discarded.
func (d *Dashboard) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	d.modeSeq++
	d.sched.CancelAll()
}

// Wait blocks until every fetch started so far has been applied or
// discarded.
func (d *Dashboard) Wait() {
	d.inflight.Wait()
}

func (d *Dashboard) usableLocked() error {
	switch {
	case d.closed:
		return ErrClosed
	case d.expired:
		return ErrSessionExpired
	}
	return nil
}

// transitionLocked enters m: cancel every loop, then start the loops m
// needs.
func (d *Dashboard) transitionLocked(m ViewMode) {
	prev := d.mode
	d.mode = m
	d.modeSeq++

	if m.Kind != LiveAll {
		d.latest, d.latestLoaded, d.latestStale = nil, false, false
	}
	if m.Kind != LiveSingle || m.SurveyorID != prev.SurveyorID {
		d.live, d.liveLoaded, d.liveStale = nil, false, false
	}
	if m.Kind != Historical {
		d.track, d.route = nil, utils.RouteSummary{}
	}

	d.sched.CancelAll()
	for _, kind := range loopsFor(m.Kind) {
		d.sched.Ensure(kind, d.intervalFor(kind), d.actionFor(kind, m))
	}

	d.logger.Info("view mode changed", "from", prev.String(), "to", m.String())
	d.renderLocked()
}

func (d *Dashboard) intervalFor(kind polling.Kind) time.Duration {
	switch kind {
	case polling.AllLatest:
		return d.intervals.AllLatest
	case polling.SingleLive:
		return d.intervals.SingleLive
	}
	return d.intervals.Status
}

func (d *Dashboard) actionFor(kind polling.Kind, m ViewMode) polling.Action {
	switch kind {
	case polling.AllLatest:
		return func(t polling.Tick) {
			d.spawn(func() {
				fixes, err := d.source.FetchLatestAll(t.Ctx)
				d.applyLatest(t, fixes, err)
			})
		}
	case polling.SingleLive:
		id := m.SurveyorID
		return func(t polling.Tick) {
			d.spawn(func() {
				fix, err := d.source.FetchLatest(t.Ctx, id)
				d.applyLive(t, id, fix, err)
			})
		}
	}
	return func(t polling.Tick) {
		d.spawn(func() {
			status, err := d.source.FetchStatusAll(t.Ctx)
			d.applyStatus(t, status, err)
		})
	}
}

func (d *Dashboard) spawn(f func()) {
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		f()
	}()
}

// currentLocked reports whether a tick's result may still be applied.
func (d *Dashboard) currentLocked(t polling.Tick) bool {
	if d.closed || d.expired || !d.sched.IsCurrent(t.Kind, t.Generation) {
		d.logger.Debug("discarding stale poll result", "kind", t.Kind, "generation", t.Generation, "seq", t.Seq)
		return false
	}
	return true
}

func (d *Dashboard) applyStatus(t polling.Tick, status map[string]model.OnlineState, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.currentLocked(t) {
		return
	}
	if err != nil {
		d.statusStale = true
		d.fetchFailedLocked("fetch status", err)
		d.renderLocked()
		return
	}
	d.authFails = 0
	d.status = make(map[string]model.OnlineState, len(status))
	for id, state := range status {
		d.status[id] = state
	}
	d.statusLoaded, d.statusStale = true, false
	for i := range d.latest {
		d.latest[i].State = d.status[d.latest[i].Fix.SurveyorID]
	}
	if d.live != nil {
		d.live.State = d.status[d.live.Fix.SurveyorID]
	}
	d.updatedAt = d.clock.Now()
	d.renderLocked()
}

func (d *Dashboard) applyLatest(t polling.Tick, fixes []model.LocationFix, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.currentLocked(t) {
		return
	}
	if err != nil {
		d.latestStale = true
		d.fetchFailedLocked("fetch latest", err)
		d.renderLocked()
		return
	}
	d.authFails = 0
	markers := make([]Marker, 0, len(fixes))
	for _, f := range fixes {
		markers = append(markers, d.markerLocked(f))
	}
	d.latest = markers
	d.latestLoaded, d.latestStale = true, false
	d.updatedAt = d.clock.Now()
	d.renderLocked()
}

func (d *Dashboard) applyLive(t polling.Tick, id string, fix *model.LocationFix, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.currentLocked(t) || d.mode.SurveyorID != id {
		return
	}
	if err != nil {
		d.liveStale = true
		d.fetchFailedLocked("fetch live fix", err)
		d.renderLocked()
		return
	}
	d.authFails = 0
	d.liveLoaded, d.liveStale = true, false
	if fix != nil {
		m := d.markerLocked(*fix)
		d.live = &m
	}
	d.updatedAt = d.clock.Now()
	d.renderLocked()
}

func (d *Dashboard) markerLocked(f model.LocationFix) Marker {
	return Marker{Fix: f, Name: d.names[f.SurveyorID], State: d.status[f.SurveyorID]}
}

// fetchFailedLocked logs a failed fetch, keeps the previous data and
// expires the session after too many consecutive auth failures.
func (d *Dashboard) fetchFailedLocked(op string, err error) {
	d.logger.Warn("fetch failed", "op", op, "error", err)
	d.notifyLocked(Notice{Kind: NoticeFetchFailed, Op: op, Message: err.Error(), Err: err})

	if !client.IsUnauthorized(err) {
		return
	}
	d.authFails++
	if d.maxAuthFail <= 0 || d.authFails < d.maxAuthFail || d.expired {
		return
	}
	d.expired = true
	close(d.expiredCh)
	d.modeSeq++
	d.sched.CancelAll()
	d.logger.Error("session expired, polling stopped", "consecutive_auth_failures", d.authFails)
	d.notifyLocked(Notice{
		Kind:    NoticeSessionExpired,
		Op:      op,
		Message: fmt.Sprintf("session rejected %d times in a row", d.authFails),
		Err:     err,
	})
}

func (d *Dashboard) snapshotLocked() Snapshot {
	s := Snapshot{
		Mode:           d.mode,
		Surveyors:      append([]model.Surveyor(nil), d.surveyors...),
		Status:         make(map[string]model.OnlineState, len(d.status)),
		StatusLoaded:   d.statusLoaded,
		StatusStale:    d.statusStale,
		Latest:         append([]Marker(nil), d.latest...),
		LatestLoaded:   d.latestLoaded,
		LatestStale:    d.latestStale,
		LiveLoaded:     d.liveLoaded,
		LiveStale:      d.liveStale,
		Track:          append([]model.LocationFix(nil), d.track...),
		Route:          d.route,
		SessionExpired: d.expired,
		UpdatedAt:      d.updatedAt,
	}
	for id, state := range d.status {
		s.Status[id] = state
	}
	if d.live != nil {
		live := *d.live
		s.Live = &live
	}
	return s
}

func (d *Dashboard) renderLocked() {
	if d.renderer != nil {
		d.renderer.Render(d.snapshotLocked())
	}
}

func (d *Dashboard) notifyLocked(n Notice) {
	if d.renderer != nil {
		d.renderer.Notify(n)
	}
}

// sortedByTime orders fixes oldest first. Fixes with unparseable timestamps
// keep their relative order at the end.
func sortedByTime(fixes []model.LocationFix) []model.LocationFix {
	out := append([]model.LocationFix(nil), fixes...)
	sort.SliceStable(out, func(i, j int) bool {
		ti, erri := out[i].Time()
		tj, errj := out[j].Time()
		if erri != nil || errj != nil {
			return erri == nil && errj != nil
		}
		return ti.Before(tj)
	})
	return out
}

func summarize(fixes []model.LocationFix) utils.RouteSummary {
	points := make([]utils.RoutePoint, 0, len(fixes))
	for _, f := range fixes {
		t, _ := f.Time()
		points = append(points, utils.RoutePoint{Latitude: f.Latitude, Longitude: f.Longitude, Time: t})
	}
	return utils.SummarizeRoute(points)
}
