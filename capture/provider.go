package capture

import "time"

// Reading is one raw position from a provider.
type Reading struct {
	Latitude  float64
	Longitude float64
	Accuracy  *float64
	Time      time.Time
}

// Request describes the cadence the agent wants. Providers aim for Interval
// and must never deliver faster than MinInterval.
type Request struct {
	Interval    time.Duration
	MinInterval time.Duration
}

// Sink receives what a subscription produces.
type Sink interface {
	// Fix is called for every reading.
	Fix(Reading)
	// Lost is called once if the subscription dies, e.g. the capability is
	// revoked while running. No Fix calls follow.
	Lost(error)
}

// Subscription is an active provider registration.
type Subscription interface {
	Cancel()
}

// Provider is a source of device positions.
type Provider interface {
	Name() string
	Subscribe(req Request, sink Sink) (Subscription, error)
}
