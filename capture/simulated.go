package capture

import (
	"math"
	"sync"
	"time"

	"github.com/theoremus-urban-solutions/surveyor-tracking/clock"
)

// SimulatedProvider emits a synthetic walk on a clock. It stands in for the
// platform location service on machines without one, and in tests.
type SimulatedProvider struct {
	// Clock drives emission. Nil uses the real clock.
	Clock clock.Clock
	// Origin is the first position.
	Latitude, Longitude float64
	// SpeedMPS is the walking speed in metres per second.
	SpeedMPS float64
	// HeadingDeg is the direction of travel, clockwise from north.
	HeadingDeg float64
	// Spacing, when set, returns the delay before reading n (n >= 1).
	// Otherwise readings are spaced by the requested Interval.
	Spacing func(n int) time.Duration
	// Denied makes Subscribe fail with ErrCapabilityDenied.
	Denied bool
}

// Name implements Provider.
func (p *SimulatedProvider) Name() string { return "simulated" }

// Subscribe implements Provider. The first reading is emitted immediately.
func (p *SimulatedProvider) Subscribe(req Request, sink Sink) (Subscription, error) {
	if p.Denied {
		return nil, ErrCapabilityDenied
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.Real()
	}
	s := &simulatedSubscription{provider: p, clock: clk, req: req, sink: sink}
	s.emit()
	return s, nil
}

type simulatedSubscription struct {
	provider *SimulatedProvider
	clock    clock.Clock
	req      Request
	sink     Sink

	mu        sync.Mutex
	n         int
	timer     *clock.Timer
	cancelled bool
}

func (s *simulatedSubscription) emit() {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	n := s.n
	s.n++
	s.mu.Unlock()

	lat, lon := s.provider.position(n, s.req.Interval)
	s.sink.Fix(Reading{Latitude: lat, Longitude: lon, Time: s.clock.Now()})

	delay := s.req.Interval
	if s.provider.Spacing != nil {
		delay = s.provider.Spacing(n + 1)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return
	}
	s.timer = s.clock.AfterFunc(delay, s.emit)
}

func (s *simulatedSubscription) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
	if s.timer != nil {
		s.timer.Stop()
	}
}

const earthRadiusM = 6371000.0

// position returns the walk's n-th point assuming nominal spacing.
func (p *SimulatedProvider) position(n int, interval time.Duration) (float64, float64) {
	dist := p.SpeedMPS * interval.Seconds() * float64(n)
	heading := p.HeadingDeg * math.Pi / 180
	dLat := dist * math.Cos(heading) / earthRadiusM
	dLon := dist * math.Sin(heading) / (earthRadiusM * math.Cos(p.Latitude*math.Pi/180))
	return p.Latitude + dLat*180/math.Pi, p.Longitude + dLon*180/math.Pi
}
