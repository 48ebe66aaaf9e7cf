package settle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// Scope names the execution context (process, user) a signal is emitted in
// or listened from.
type Scope string

// Signal is one asynchronous notification delivered by a Source.
type Signal struct {
	Action string
	Scope  Scope
	Extras map[string]string
	Time   time.Time
}

// Filter selects the signals a subscription fires on. An empty Action
// accepts every action; Match, when set, must also accept the signal.
type Filter struct {
	Action string
	Match  func(s Signal) bool
}

// Accepts reports whether the signal passes the filter.
func (f Filter) Accepts(s Signal) bool {
	if f.Action != "" && s.Action != f.Action {
		return false
	}
	return f.Match == nil || f.Match(s)
}

func (f Filter) String() string {
	if f.Action == "" {
		return "any signal"
	}
	return fmt.Sprintf("signal %q", f.Action)
}

// Handle cancels one registration on a Source.
type Handle interface {
	Unregister() error
}

// Source delivers signals emitted in its own scope to ordinary
// registrations. deliver may be called on any goroutine, more than once,
// and before Register returns.
type Source interface {
	Scope() Scope
	Register(ctx context.Context, filter Filter, deliver func(Signal)) (Handle, error)
}

// PrivilegedSource can additionally register on behalf of another
// listener scope while the caller holds an elevated Grant.
type PrivilegedSource interface {
	Source
	RegisterFor(ctx context.Context, grant Grant, listener Scope, filter Filter, deliver func(Signal)) (Handle, error)
}

// Grant is an elevated capability. It must be released once the
// privileged registration call returns.
type Grant interface {
	Release()
}

// Elevator acquires Grants.
type Elevator interface {
	Elevate(ctx context.Context) (Grant, error)
}

// SubscriptionState is the lifecycle position of a Subscription.
type SubscriptionState int32

const (
	// Registered means the subscription is attached to its source.
	Registered SubscriptionState = iota + 1
	// Armed means AwaitOrFail has started waiting for the signal.
	Armed
	// Fired means a matching signal was delivered.
	Fired
	// Unregistered means the subscription was released and ignores
	// further signals.
	Unregistered
)

func (s SubscriptionState) String() string {
	switch s {
	case Registered:
		return "registered"
	case Armed:
		return "armed"
	case Fired:
		return "fired"
	case Unregistered:
		return "unregistered"
	default:
		return "unknown"
	}
}

// Subscription is a scoped registration for one signal. It fires at most
// once; the first accepted delivery wins. Release it with
// UnregisterQuietly on every exit path.
type Subscription struct {
	filter     Filter
	listener   Scope
	privileged bool
	handle     Handle
	logger     *slog.Logger

	fire     sync.Once
	done     chan struct{}
	signal   Signal
	armed    atomic.Bool
	released atomic.Bool
	release  sync.Once
}

func newSubscription(filter Filter, listener Scope, logger *slog.Logger) *Subscription {
	return &Subscription{
		filter:   filter,
		listener: listener,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// deliver is handed to the Source. Closing done publishes signal to every
// goroutine that later observes the closed channel.
func (s *Subscription) deliver(sig Signal) {
	if s.released.Load() || !s.filter.Accepts(sig) {
		return
	}
	s.fire.Do(func() {
		s.signal = sig
		close(s.done)
	})
}

// Done is closed once the subscription has fired.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Signal returns the signal that fired the subscription.
func (s *Subscription) Signal() (Signal, bool) {
	select {
	case <-s.done:
		return s.signal, true
	default:
		return Signal{}, false
	}
}

// Privileged reports whether the registration crossed scopes.
func (s *Subscription) Privileged() bool {
	return s.privileged
}

// State returns the current lifecycle state.
func (s *Subscription) State() SubscriptionState {
	select {
	case <-s.done:
		return Fired
	default:
	}
	if s.released.Load() {
		return Unregistered
	}
	if s.armed.Load() {
		return Armed
	}
	return Registered
}

// UnregisterQuietly releases the registration. Only the first call reaches
// the Source; errors are logged and swallowed. Safe on a nil Subscription.
func (s *Subscription) UnregisterQuietly() {
	if s == nil {
		return
	}
	s.release.Do(func() {
		s.released.Store(true)
		if s.handle == nil {
			return
		}
		if err := s.handle.Unregister(); err != nil {
			s.logger.Debug("Ignoring unregister failure", "filter", s.filter.String(), "error", err)
		}
	})
}

// SignalWaiter registers one-shot subscriptions on a Source and blocks
// callers until they fire.
type SignalWaiter struct {
	source     Source
	elevator   Elevator
	crossScope func(listener, emitter Scope) bool
	clock      clockwork.Clock
	logger     *slog.Logger
}

// SignalOption configures a SignalWaiter.
type SignalOption func(*SignalWaiter)

// WithElevator sets the Elevator used for cross-scope registrations.
func WithElevator(e Elevator) SignalOption {
	return func(w *SignalWaiter) {
		w.elevator = e
	}
}

// WithCrossScopeCheck replaces the check deciding whether a registration
// needs the privileged path. The default requires it whenever the listener
// scope differs from the source's scope.
func WithCrossScopeCheck(f func(listener, emitter Scope) bool) SignalOption {
	return func(w *SignalWaiter) {
		w.crossScope = f
	}
}

// WithSignalClock injects the clock used for await timeouts.
func WithSignalClock(c clockwork.Clock) SignalOption {
	return func(w *SignalWaiter) {
		w.clock = c
	}
}

// WithSignalLogger sets the structured logger.
func WithSignalLogger(l *slog.Logger) SignalOption {
	return func(w *SignalWaiter) {
		w.logger = l
	}
}

// NewSignalWaiter creates a SignalWaiter over source.
func NewSignalWaiter(source Source, opts ...SignalOption) *SignalWaiter {
	w := &SignalWaiter{
		source: source,
		crossScope: func(listener, emitter Scope) bool {
			return listener != emitter
		},
		clock:  clockwork.NewRealClock(),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Register subscribes to the first signal accepted by filter, listening
// from the listener scope ("" means the source's own scope). Cross-scope
// registrations go through the privileged path and fail with
// ErrPrivilegeUnavailable rather than falling back to an ordinary one.
func (w *SignalWaiter) Register(ctx context.Context, filter Filter, listener Scope) (*Subscription, error) {
	emitter := w.source.Scope()
	if listener == "" {
		listener = emitter
	}
	sub := newSubscription(filter, listener, w.logger)

	var (
		handle Handle
		err    error
	)
	if w.crossScope(listener, emitter) {
		sub.privileged = true
		handle, err = w.registerPrivileged(ctx, listener, filter, sub.deliver)
	} else {
		handle, err = w.source.Register(ctx, filter, sub.deliver)
	}
	if err != nil {
		return nil, &RegistrationError{
			Filter:     filter.String(),
			Listener:   listener,
			Emitter:    emitter,
			Privileged: sub.privileged,
			Err:        err,
		}
	}

	sub.handle = handle
	w.logger.Debug("Registered for signal", "filter", filter.String(), "listener", listener, "privileged", sub.privileged)
	return sub, nil
}

func (w *SignalWaiter) registerPrivileged(ctx context.Context, listener Scope, filter Filter, deliver func(Signal)) (Handle, error) {
	ps, ok := w.source.(PrivilegedSource)
	if !ok {
		return nil, fmt.Errorf("source cannot register across scopes: %w", ErrPrivilegeUnavailable)
	}
	if w.elevator == nil {
		return nil, fmt.Errorf("no elevator configured: %w", ErrPrivilegeUnavailable)
	}

	grant, err := w.elevator.Elevate(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPrivilegeUnavailable, err)
	}
	defer grant.Release()

	return ps.RegisterFor(ctx, grant, listener, filter, deliver)
}

// AwaitOrFail blocks until sub fires, returning its signal. It returns a
// *SignalTimeoutError when timeout elapses first, and the context's error
// on cancellation. A signal delivered before the call is returned at once.
func (w *SignalWaiter) AwaitOrFail(ctx context.Context, sub *Subscription, timeout time.Duration) (Signal, error) {
	if sub == nil {
		return Signal{}, errors.New("settle: await signal: nil subscription")
	}
	if sig, ok := sub.Signal(); ok {
		return sig, nil
	}
	if sub.released.Load() {
		return Signal{}, fmt.Errorf("settle: await %s: %w", sub.filter, ErrUnregistered)
	}
	sub.armed.Store(true)

	if timeout <= 0 {
		return Signal{}, &SignalTimeoutError{Filter: sub.filter.String(), Timeout: timeout}
	}
	timer := w.clock.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-sub.done:
		return sub.signal, nil
	case <-timer.Chan():
		return Signal{}, &SignalTimeoutError{Filter: sub.filter.String(), Timeout: timeout}
	case <-ctx.Done():
		return Signal{}, fmt.Errorf("settle: await %s: %w", sub.filter, ctx.Err())
	}
}

// UnregisterQuietly releases sub. It is the same as sub.UnregisterQuietly
// and is safe on a nil or already released subscription.
func (w *SignalWaiter) UnregisterQuietly(sub *Subscription) {
	sub.UnregisterQuietly()
}
