package settle

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

type options struct {
	name          string
	timeout       time.Duration
	interval      time.Duration
	maxInterval   time.Duration
	fallbackDelay time.Duration
	clock         clockwork.Clock
	logger        *slog.Logger
	observer      Observer
}

// Option configures a Poller or a Confirmer.
type Option func(*options)

// WithName labels log lines, errors and reports. Confirmers use the
// Operation name instead.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithTimeout sets the total time budget. A value of 0 means "use
// defaults". Negative values are rejected when the run starts.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithInterval sets the delay between samples. A value of 0 means "use
// defaults". Positive values under 10ms are clamped to 10ms.
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		o.interval = d
	}
}

// WithBackoff grows the delay between samples exponentially, starting at
// the poll interval and capped at max. A max not above the interval keeps
// the interval fixed.
func WithBackoff(max time.Duration) Option {
	return func(o *options) {
		o.maxInterval = max
	}
}

// WithFallbackDelay sets how long a Confirmer waits after convergence when
// no completion signal could be registered. Zero skips the wait.
func WithFallbackDelay(d time.Duration) Option {
	return func(o *options) {
		o.fallbackDelay = d
	}
}

// WithClock injects the clock used for timestamps and every wait.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithLogger sets the structured logger. Attempts are logged at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithObserver receives a Report for every finished run. Nil disables
// reporting.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

const (
	defaultTimeout       = 10 * time.Second
	defaultInterval      = 100 * time.Millisecond
	defaultFallbackDelay = 10 * time.Second
	minPollInterval      = 10 * time.Millisecond
)

func defaultOptions() options {
	return options{
		name:          "poll",
		timeout:       defaultTimeout,
		interval:      defaultInterval,
		fallbackDelay: defaultFallbackDelay,
	}
}

// resolveOptions applies opts over the defaults and validates the result.
func resolveOptions(opts []Option) (options, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	switch {
	case o.timeout < 0:
		return o, fmt.Errorf("negative timeout: %v", o.timeout)
	case o.timeout == 0:
		o.timeout = defaultTimeout
	}

	switch {
	case o.interval < 0:
		return o, fmt.Errorf("negative poll interval: %v", o.interval)
	case o.interval == 0:
		o.interval = defaultInterval
	case o.interval < minPollInterval:
		o.interval = minPollInterval
	}

	if o.fallbackDelay < 0 {
		return o, fmt.Errorf("negative fallback delay: %v", o.fallbackDelay)
	}

	if o.clock == nil {
		o.clock = clockwork.NewRealClock()
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}

	return o, nil
}

// Report summarizes one finished poll or confirmation.
type Report struct {
	Operation string
	Kind      Kind
	Attempts  int
	Elapsed   time.Duration
	Signaled  bool
	FellBack  bool
	Err       error
}

// An Observer receives a Report for every finished run. Observe is called
// on the goroutine that ran the poll.
type Observer interface {
	Observe(r Report)
}

// ObserverFunc adapts a function to an Observer.
type ObserverFunc func(r Report)

// Observe calls f(r).
func (f ObserverFunc) Observe(r Report) {
	f(r)
}

func (o options) report(r Report) {
	if o.observer != nil {
		o.observer.Observe(r)
	}
}
