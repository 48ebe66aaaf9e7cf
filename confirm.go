package settle

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// State is the position of a confirmation in its act-then-confirm run.
type State int

const (
	// Idle means the operation has not been dispatched.
	Idle State = iota
	// Dispatching means the completion signal is being registered and the
	// action performed.
	Dispatching
	// Confirming means status polling or the signal wait is under way.
	Confirming
	// Done means the confirmation ended, successfully or not.
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dispatching:
		return "dispatching"
	case Confirming:
		return "confirming"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// SignalSpec names the completion signal of an Operation.
type SignalSpec struct {
	Waiter   *SignalWaiter
	Filter   Filter
	Listener Scope
}

// Operation is one side-effecting action and the way to confirm it.
type Operation struct {
	Name string

	// Dispatch performs the action. An error ends the confirmation.
	Dispatch Supplier[Output]

	// Status samples the external state after dispatch.
	Status Supplier[Output]

	// Converged matches status output showing the action took effect.
	Converged Condition[Output]

	// AlreadyDone matches status output showing the desired state held
	// before dispatch, e.g. removing something already absent. No
	// completion signal follows, so it ends the confirmation immediately.
	AlreadyDone Condition[Output]

	// Terminal matches status output that no amount of waiting can turn
	// into convergence.
	Terminal Condition[Output]

	// Signal, when set, is registered before dispatch. Without it, or when
	// registration fails, the confirmer waits the fallback delay instead.
	Signal *SignalSpec
}

// Confirmation is the result of Confirm.
type Confirmation struct {
	Outcome    Outcome[Output]
	Dispatched Output
	Signal     Signal
	Signaled   bool
	FellBack   bool
	State      State
}

// Confirmer runs Operations: register for the completion signal, dispatch,
// then poll the status until it converges and the signal fires or the
// fallback delay passes.
type Confirmer struct {
	opts []Option
}

// NewConfirmer creates a Confirmer. The timeout budget starts when Dispatch
// returns and covers both polling and the wait for the completion signal, so
// a slow dispatch is charged to neither. The fallback delay is additional.
func NewConfirmer(opts ...Option) *Confirmer {
	return &Confirmer{opts: opts}
}

// Confirm runs op on the calling goroutine. Terminal and timed-out
// confirmations return a *PollError matching ErrTerminal or ErrTimeout;
// the Confirmation is filled in on every path.
func (c *Confirmer) Confirm(ctx context.Context, op Operation) (Confirmation, error) {
	conf := Confirmation{State: Idle}
	if err := op.validate(); err != nil {
		return conf, fmt.Errorf("settle: confirm %s: %w", op.Name, err)
	}
	o, err := resolveOptions(c.opts)
	if err != nil {
		return conf, fmt.Errorf("settle: confirm %s: %w", op.Name, err)
	}
	o.name = op.Name

	start := o.clock.Now()
	err = c.confirm(ctx, o, op, &conf)
	conf.State = Done
	conf.Outcome.Elapsed = o.clock.Since(start)

	o.logger.Debug("Confirmation finished", "operation", op.Name, "outcome", conf.Outcome.Kind,
		"signaled", conf.Signaled, "fellBack", conf.FellBack, "duration", conf.Outcome.Elapsed)
	o.report(Report{
		Operation: op.Name,
		Kind:      conf.Outcome.Kind,
		Attempts:  conf.Outcome.Attempts,
		Elapsed:   conf.Outcome.Elapsed,
		Signaled:  conf.Signaled,
		FellBack:  conf.FellBack,
		Err:       err,
	})
	return conf, err
}

func (c *Confirmer) confirm(ctx context.Context, o options, op Operation, conf *Confirmation) error {
	log := o.logger.With("operation", op.Name)

	conf.State = Dispatching
	sub := subscribe(ctx, o, op)
	defer sub.UnregisterQuietly()

	log.Debug("Dispatching", "state", conf.State, "signal", sub != nil)
	dispatched, err := op.Dispatch(ctx)
	conf.Dispatched = dispatched
	if err != nil {
		return &DispatchError{Operation: op.Name, Output: dispatched, Err: err}
	}
	start := o.clock.Now()

	conf.State = Confirming
	log.Debug("Confirming", "state", conf.State)
	poller := ForValue(op.Status).
		ToMeet(Any(op.Converged, op.AlreadyDone)).
		TerminalValue(op.Terminal).
		With(c.opts...).
		With(WithName(op.Name), WithObserver(nil))
	out, err := poller.Await(ctx)
	conf.Outcome = out
	if err != nil {
		return err
	}
	if out.Kind != Success {
		return newPollError("confirm "+op.Name, "", out)
	}

	if op.AlreadyDone != nil {
		if ok, _ := op.AlreadyDone(out.Sample); ok {
			log.Debug("Desired state already held, no signal expected")
			return nil
		}
	}

	if sub == nil {
		conf.FellBack = true
		log.Debug("Waiting out fallback delay", "delay", o.fallbackDelay)
		if err := sleep(ctx, o.clock, o.fallbackDelay); err != nil {
			conf.Outcome.Kind = 0
			return fmt.Errorf("settle: confirm %s: fallback delay: %w", op.Name, err)
		}
		return nil
	}

	remaining := o.timeout - o.clock.Since(start)
	sig, err := op.Signal.Waiter.AwaitOrFail(ctx, sub, remaining)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			conf.Outcome.Kind = TimedOut
			conf.Outcome.Elapsed = o.clock.Since(start)
			conf.Outcome.Description = "completion " + op.Signal.Filter.String() + " after " + out.Description
			return newPollError("confirm "+op.Name, "", conf.Outcome)
		}
		conf.Outcome.Kind = 0
		return err
	}
	conf.Signal = sig
	conf.Signaled = true
	return nil
}

// subscribe registers op's completion signal, returning nil when the
// operation has none or registration is unavailable.
func subscribe(ctx context.Context, o options, op Operation) *Subscription {
	if op.Signal == nil {
		return nil
	}
	sub, err := op.Signal.Waiter.Register(ctx, op.Signal.Filter, op.Signal.Listener)
	if err != nil {
		o.logger.Info("Completion signal unavailable, falling back to fixed delay",
			"operation", op.Name, "delay", o.fallbackDelay, "error", err)
		return nil
	}
	return sub
}

func (op Operation) validate() error {
	switch {
	case op.Dispatch == nil:
		return errors.New("nil dispatch")
	case op.Status == nil:
		return errors.New("nil status supplier")
	case op.Converged == nil:
		return errors.New("nil convergence condition")
	case op.Signal != nil && op.Signal.Waiter == nil:
		return errors.New("signal spec without waiter")
	}
	return nil
}

// Must confirms op with the test's context and calls t.Fatal unless it
// succeeds. The failure message includes the recent status samples.
func (c *Confirmer) Must(t testing.TB, op Operation) Confirmation {
	t.Helper()

	conf, err := c.Confirm(t.Context(), op)
	if err != nil {
		t.Fatalf("%v\n    state: %s\n    waiting for: %s\n    recent status captures (oldest to newest):\n%s",
			err, conf.State, conf.Outcome.Description, formatRecent(conf.Outcome.Recent))
	}
	return conf
}
