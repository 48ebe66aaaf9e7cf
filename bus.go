package settle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
)

// Bus is an in-memory broadcast bus partitioned by Scope. It implements
// PrivilegedSource and Elevator. Publish delivers synchronously on the
// publishing goroutine.
type Bus struct {
	scope Scope
	clock clockwork.Clock

	mu          sync.Mutex
	nextID      int
	subscribers map[int]busSubscriber
	elevation   bool
	held        int
	registerErr error
}

type busSubscriber struct {
	listener Scope
	filter   Filter
	deliver  func(Signal)
}

// NewBus creates a Bus whose ordinary registrations listen in scope.
// Elevation is refused until AllowElevation(true).
func NewBus(scope Scope) *Bus {
	return &Bus{
		scope:       scope,
		clock:       clockwork.NewRealClock(),
		subscribers: make(map[int]busSubscriber),
	}
}

// SetClock sets the clock stamped on published signals.
func (b *Bus) SetClock(c clockwork.Clock) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clock = c
}

// Scope returns the bus's own scope.
func (b *Bus) Scope() Scope {
	return b.scope
}

// Register listens for signals published in the bus's own scope.
func (b *Bus) Register(ctx context.Context, filter Filter, deliver func(Signal)) (Handle, error) {
	return b.add(b.scope, filter, deliver)
}

// RegisterFor listens for signals published in listener's scope. grant must
// be an unreleased Grant obtained from this bus.
func (b *Bus) RegisterFor(ctx context.Context, grant Grant, listener Scope, filter Filter, deliver func(Signal)) (Handle, error) {
	g, ok := grant.(*busGrant)
	if !ok || g.bus != b || g.released.Load() {
		return nil, errors.New("bus: registration requires a held grant")
	}
	return b.add(listener, filter, deliver)
}

func (b *Bus) add(listener Scope, filter Filter, deliver func(Signal)) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.registerErr != nil {
		return nil, b.registerErr
	}
	b.nextID++
	id := b.nextID
	b.subscribers[id] = busSubscriber{listener: listener, filter: filter, deliver: deliver}
	return &busHandle{bus: b, id: id}, nil
}

// Publish delivers sig to every subscriber listening in sig.Scope ("" means
// the bus's scope) whose filter accepts it, and returns how many were
// notified.
func (b *Bus) Publish(sig Signal) int {
	if sig.Scope == "" {
		sig.Scope = b.scope
	}

	b.mu.Lock()
	if sig.Time.IsZero() {
		sig.Time = b.clock.Now()
	}
	var targets []func(Signal)
	for _, s := range b.subscribers {
		if s.listener == sig.Scope && s.filter.Accepts(sig) {
			targets = append(targets, s.deliver)
		}
	}
	b.mu.Unlock()

	for _, deliver := range targets {
		deliver(sig)
	}
	return len(targets)
}

// Subscribers returns the number of live registrations.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// AllowElevation controls whether Elevate grants capabilities.
func (b *Bus) AllowElevation(allowed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.elevation = allowed
}

// FailRegistrations makes every later registration fail with err. Nil
// restores normal behavior.
func (b *Bus) FailRegistrations(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registerErr = err
}

// Elevate grants a capability for cross-scope registration.
func (b *Bus) Elevate(ctx context.Context) (Grant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.elevation {
		return nil, errors.New("bus: elevation refused")
	}
	b.held++
	return &busGrant{bus: b}, nil
}

// HeldGrants returns the number of grants not yet released.
func (b *Bus) HeldGrants() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.held
}

type busGrant struct {
	bus      *Bus
	released atomic.Bool
}

func (g *busGrant) Release() {
	if g.released.Swap(true) {
		return
	}
	g.bus.mu.Lock()
	g.bus.held--
	g.bus.mu.Unlock()
}

type busHandle struct {
	bus  *Bus
	id   int
	done atomic.Bool
}

func (h *busHandle) Unregister() error {
	if h.done.Swap(true) {
		return errors.New("bus: already unregistered")
	}
	h.bus.mu.Lock()
	delete(h.bus.subscribers, h.id)
	h.bus.mu.Unlock()
	return nil
}
