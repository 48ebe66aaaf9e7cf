package settle

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jonboulle/clockwork"
)

// A Supplier produces one value per polling attempt.
type Supplier[T any] func(ctx context.Context) (T, error)

// Kind classifies how a poll ended.
type Kind int

const (
	// Success means the convergence condition held.
	Success Kind = iota + 1
	// TerminalFailure means the terminal condition held, so no further
	// polling could help.
	TerminalFailure
	// TimedOut means the budget ran out with neither condition holding.
	TimedOut
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case TerminalFailure:
		return "terminal"
	case TimedOut:
		return "timeout"
	default:
		return "incomplete"
	}
}

// Outcome is the result of a poll. Sample is the converging sample for
// Success, the offending sample for TerminalFailure and the last sample
// for TimedOut.
type Outcome[T any] struct {
	Kind        Kind
	Sample      Sample[T]
	Attempts    int
	Elapsed     time.Duration
	Description string

	// Recent holds the last few samples, oldest first.
	Recent []Sample[T]
}

// OK reports whether the poll converged.
func (o Outcome[T]) OK() bool {
	return o.Kind == Success
}

const recentSamples = 3

// Poller is an immutable polling configuration. Each builder method returns
// a modified copy; copies derived from the same ForValue call share one
// lock, so their runs never sample the supplier concurrently.
type Poller[T any] struct {
	supplier    Supplier[T]
	until       Condition[T]
	terminal    Condition[T]
	errorOnFail bool
	failMessage string
	retryErrors bool
	opts        []Option
	serial      *sync.Mutex
}

// ForValue starts a poll over the values produced by supplier.
func ForValue[T any](supplier Supplier[T]) Poller[T] {
	return Poller[T]{
		supplier: supplier,
		serial:   &sync.Mutex{},
	}
}

// ToMeet sets the convergence condition. Without it the poll converges on
// the first non-zero value.
func (p Poller[T]) ToMeet(c Condition[T]) Poller[T] {
	p.until = c
	return p
}

// TerminalValue sets a condition under which polling stops immediately
// with TerminalFailure. It is only evaluated on samples that did not
// converge.
func (p Poller[T]) TerminalValue(c Condition[T]) Poller[T] {
	p.terminal = c
	return p
}

// ErrorOnFail makes Await return a *PollError for TerminalFailure and
// TimedOut outcomes. The optional message prefixes the error text.
func (p Poller[T]) ErrorOnFail(message ...string) Poller[T] {
	p.errorOnFail = true
	if len(message) > 0 {
		p.failMessage = message[0]
	}
	return p
}

// RetryOnError treats supplier errors as "no value yet" instead of ending
// the poll.
func (p Poller[T]) RetryOnError() Poller[T] {
	p.retryErrors = true
	return p
}

// With appends options.
func (p Poller[T]) With(opts ...Option) Poller[T] {
	p.opts = append(slices.Clip(p.opts), opts...)
	return p
}

// Await polls on the calling goroutine until the value converges, the
// terminal condition holds, or the timeout expires. Supplier errors (unless
// retried) and context cancellation are returned immediately together with
// the outcome observed so far.
func (p Poller[T]) Await(ctx context.Context) (Outcome[T], error) {
	if p.supplier == nil {
		return Outcome[T]{}, errors.New("settle: poll: nil supplier")
	}
	o, err := resolveOptions(p.opts)
	if err != nil {
		return Outcome[T]{}, fmt.Errorf("settle: poll: %w", err)
	}

	p.serial.Lock()
	defer p.serial.Unlock()

	out, err := p.run(ctx, o)
	o.report(Report{
		Operation: o.name,
		Kind:      out.Kind,
		Attempts:  out.Attempts,
		Elapsed:   out.Elapsed,
		Err:       err,
	})
	return out, err
}

func (p Poller[T]) run(ctx context.Context, o options) (Outcome[T], error) {
	until := p.until
	if until == nil {
		until = nonZero[T]()
	}
	clock := o.clock
	schedule := newSchedule(o)
	start := clock.Now()

	var out Outcome[T]
	for attempt := 1; ; attempt++ {
		value, err := p.supplier(ctx)
		sample := Sample[T]{Value: value, Attempt: attempt, Time: clock.Now(), Err: err}
		out.Sample = sample
		out.Attempts = attempt
		out.Recent = appendRecent(out.Recent, sample, recentSamples)
		out.Elapsed = clock.Since(start)

		if err != nil {
			if !p.retryErrors {
				return out, &SupplierError{Attempt: attempt, Err: err}
			}
			o.logger.Debug("Supplier failed, retrying", "name", o.name, "attempt", attempt, "error", err)
		} else {
			ok, desc := until(sample)
			out.Description = desc
			if ok {
				out.Kind = Success
				o.logger.Debug("Converged", "name", o.name, "attempts", attempt, "duration", out.Elapsed)
				return out, nil
			}
			if p.terminal != nil {
				if stop, terminalDesc := p.terminal(sample); stop {
					out.Kind = TerminalFailure
					out.Description = terminalDesc
					o.logger.Debug("Terminal condition reached", "name", o.name, "attempts", attempt, "condition", terminalDesc)
					return out, p.failure(o, out)
				}
			}
		}

		if attempt == 1 || attempt%5 == 0 {
			o.logger.Debug("--> Waiting for condition", "name", o.name, "condition", out.Description, "attempts", attempt)
		}

		if out.Elapsed >= o.timeout {
			out.Kind = TimedOut
			if out.Description == "" {
				out.Description = "a sample without supplier error"
			}
			return out, p.failure(o, out)
		}

		wait := min(schedule.next(), o.timeout-out.Elapsed)
		if err := sleep(ctx, clock, wait); err != nil {
			return out, fmt.Errorf("settle: %s: interrupted after %d attempts: %w", o.name, attempt, err)
		}
	}
}

func (p Poller[T]) failure(o options, out Outcome[T]) error {
	if !p.errorOnFail {
		return nil
	}
	return newPollError(o.name, p.failMessage, out)
}

// Must polls like Await with the test's context and calls t.Fatal unless
// the value converges. The failure message includes the recent samples.
func (p Poller[T]) Must(t testing.TB) Sample[T] {
	t.Helper()

	out, err := p.Await(t.Context())
	if err == nil && out.OK() {
		return out.Sample
	}

	var reason string
	switch {
	case err != nil && out.Kind == 0:
		reason = err.Error()
	case out.Kind == TerminalFailure:
		reason = fmt.Sprintf("terminal condition after %d attempts", out.Attempts)
	default:
		reason = fmt.Sprintf("timed out after %v", out.Elapsed)
	}
	t.Fatalf("settle: poll: %s\n    waiting for: %s\n    recent samples (oldest to newest):\n%s",
		reason, out.Description, formatRecent(out.Recent))
	return out.Sample
}

// schedule yields the delay before each next sample.
type schedule struct {
	fixed time.Duration
	grow  *backoff.ExponentialBackOff
}

func newSchedule(o options) *schedule {
	if o.maxInterval <= o.interval {
		return &schedule{fixed: o.interval}
	}
	grow := backoff.NewExponentialBackOff()
	grow.InitialInterval = o.interval
	grow.MaxInterval = o.maxInterval
	grow.RandomizationFactor = 0
	grow.Reset()
	return &schedule{fixed: o.interval, grow: grow}
}

func (s *schedule) next() time.Duration {
	if s.grow == nil {
		return s.fixed
	}
	if d := s.grow.NextBackOff(); d != backoff.Stop {
		return d
	}
	return s.fixed
}

// sleep blocks for d on clock, returning early with the context's error.
func sleep(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}
