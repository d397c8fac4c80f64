package polling

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/theoremus-urban-solutions/surveyor-tracking/clock"
)

// Kind names a loop.
type Kind string

const (
	Status     Kind = "status"
	AllLatest  Kind = "all-latest"
	SingleLive Kind = "single-live"
)

// Tick is passed to an action on every firing.
type Tick struct {
	Kind       Kind
	Generation uint64
	// Seq counts ticks of this loop, starting at 1.
	Seq int
	At  time.Time
	// Ctx is cancelled when the loop is cancelled.
	Ctx context.Context
}

// Action is invoked on each tick. It runs on the timer goroutine (the first
// tick runs inside Ensure) and must return quickly; network work belongs on
// a goroutine it starts.
type Action func(Tick)

type loop struct {
	kind     Kind
	interval time.Duration
	action   Action
	gen      uint64
	seq      int
	timer    *clock.Timer
	ctx      context.Context
	cancel   context.CancelFunc
}

// Controller is the set of running loops.
type Controller struct {
	clock  clock.Clock
	logger *slog.Logger

	mu    sync.Mutex
	loops map[Kind]*loop
	gen   uint64
}

// NewController returns a controller with no loops. A nil clock uses the
// real one.
func NewController(clk clock.Clock, logger *slog.Logger) *Controller {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{clock: clk, logger: logger, loops: make(map[Kind]*loop)}
}

// Ensure starts a loop of kind unless one is already running, in which case
// it does nothing and returns false. The first tick fires immediately, then
// every interval. Ticks are not serialized: an action slower than interval
// overlaps the next one.
func (c *Controller) Ensure(kind Kind, interval time.Duration, action Action) bool {
	if interval <= 0 {
		panic("polling: interval must be positive")
	}

	c.mu.Lock()
	if _, ok := c.loops[kind]; ok {
		c.mu.Unlock()
		return false
	}
	c.gen++
	l := &loop{kind: kind, interval: interval, action: action, gen: c.gen}
	l.ctx, l.cancel = context.WithCancel(context.Background())
	c.loops[kind] = l
	c.mu.Unlock()

	c.logger.Debug("polling loop started", "kind", kind, "interval", interval, "generation", l.gen)
	c.fire(l)
	return true
}

// Cancel stops the loop of kind. Cancelling a loop that is not running does
// nothing.
func (c *Controller) Cancel(kind Kind) {
	c.mu.Lock()
	l, ok := c.loops[kind]
	if ok {
		delete(c.loops, kind)
		c.stopLocked(l)
	}
	c.mu.Unlock()
	if ok {
		c.logger.Debug("polling loop cancelled", "kind", kind, "generation", l.gen)
	}
}

// CancelAll stops every loop.
func (c *Controller) CancelAll() {
	c.mu.Lock()
	n := len(c.loops)
	for kind, l := range c.loops {
		delete(c.loops, kind)
		c.stopLocked(l)
	}
	c.mu.Unlock()
	if n > 0 {
		c.logger.Debug("polling loops cancelled", "count", n)
	}
}

// IsCurrent reports whether gen is the running loop of kind. A result
// produced by a tick whose loop is no longer current must be discarded.
func (c *Controller) IsCurrent(kind Kind, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.loops[kind]
	return ok && l.gen == gen
}

// Running lists the kinds of the running loops in name order.
func (c *Controller) Running() []Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	kinds := make([]Kind, 0, len(c.loops))
	for k := range c.loops {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func (c *Controller) stopLocked(l *loop) {
	if l.timer != nil {
		l.timer.Stop()
	}
	l.cancel()
}

// fire runs one tick of l and schedules the next. The next tick is
// scheduled before the action runs so a slow action cannot delay it.
func (c *Controller) fire(l *loop) {
	c.mu.Lock()
	if c.loops[l.kind] != l {
		c.mu.Unlock()
		return
	}
	l.seq++
	tick := Tick{Kind: l.kind, Generation: l.gen, Seq: l.seq, At: c.clock.Now(), Ctx: l.ctx}
	c.mu.Unlock()

	timer := c.clock.AfterFunc(l.interval, func() { c.fire(l) })

	c.mu.Lock()
	if c.loops[l.kind] != l {
		c.mu.Unlock()
		timer.Stop()
		return
	}
	l.timer = timer
	c.mu.Unlock()

	l.action(tick)
}
