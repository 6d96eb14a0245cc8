package controller

import (
	"log"

	"github.com/nasa-jpl/cncctl/util"
)

// options holds the configurable knobs New accepts via Option.
type options struct {
	logger      *log.Logger
	axisLimits  map[string]util.Limiter
	queueCap    int
	queueRPS    float64
	queueBurst  int
}

func defaultOptions() options {
	return options{
		logger:     log.Default(),
		queueCap:   64,
		queueRPS:   0, // unpaced by default
		queueBurst: 1,
	}
}

// Option configures a Core at construction time.
type Option func(*options)

// WithLogger installs a logger for internal diagnostics not significant
// enough to be a broadcast error event.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithAxisLimits installs a soft travel limit per axis label. A Move
// whose target would violate a limit is rejected with an
// *errs.Error{Kind: errs.LimitHit} before it ever reaches the backend.
func WithAxisLimits(limits map[string]util.Limiter) Option {
	return func(o *options) {
		o.axisLimits = limits
	}
}

// WithQueueCapacity sets the bounded submission queue's capacity (default
// 64).
func WithQueueCapacity(n int) Option {
	return func(o *options) { o.queueCap = n }
}

// WithQueuePacing sets the rate (instructions/sec) and burst the
// submission queue dequeues at. A non-positive rps disables pacing
// (default).
func WithQueuePacing(rps float64, burst int) Option {
	return func(o *options) {
		o.queueRPS = rps
		o.queueBurst = burst
	}
}
