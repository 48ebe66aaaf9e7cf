package settle

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout is matched by every failure caused by an exhausted time
	// budget: a poll that never converged or a signal that never fired.
	ErrTimeout = errors.New("timed out")

	// ErrTerminal is matched by failures where a terminal condition ended
	// polling before the budget ran out.
	ErrTerminal = errors.New("terminal condition reached")

	// ErrRegistration is matched by every *RegistrationError.
	ErrRegistration = errors.New("signal registration failed")

	// ErrPrivilegeUnavailable is wrapped by a *RegistrationError when a
	// cross-scope registration was required but could not be performed.
	ErrPrivilegeUnavailable = errors.New("privileged registration unavailable")

	// ErrUnregistered is returned when waiting on a subscription that was
	// released before it fired.
	ErrUnregistered = errors.New("subscription already unregistered")
)

// PollError reports a TerminalFailure or TimedOut outcome as an error. It
// keeps the last observed sample for diagnostics.
type PollError struct {
	Op          string
	Kind        Kind
	Message     string
	Description string
	Attempts    int
	Elapsed     time.Duration
	Last        any
	LastErr     error
}

func (e *PollError) Error() string {
	var msg string
	switch e.Kind {
	case TerminalFailure:
		msg = fmt.Sprintf("settle: %s: terminal condition after %d attempts (%v): %s", e.Op, e.Attempts, e.Elapsed, e.Description)
	default:
		msg = fmt.Sprintf("settle: %s: timed out after %v (%d attempts) waiting for %s", e.Op, e.Elapsed, e.Attempts, e.Description)
	}
	if e.Message != "" {
		msg = e.Message + ": " + msg
	}
	if e.LastErr != nil {
		msg += fmt.Sprintf("\nlast error: %v", e.LastErr)
	}
	return msg
}

func (e *PollError) Unwrap() []error {
	sentinel := ErrTimeout
	if e.Kind == TerminalFailure {
		sentinel = ErrTerminal
	}
	if e.LastErr != nil {
		return []error{sentinel, e.LastErr}
	}
	return []error{sentinel}
}

func newPollError[T any](op, message string, out Outcome[T]) *PollError {
	return &PollError{
		Op:          op,
		Kind:        out.Kind,
		Message:     message,
		Description: out.Description,
		Attempts:    out.Attempts,
		Elapsed:     out.Elapsed,
		Last:        out.Sample.Value,
		LastErr:     out.Sample.Err,
	}
}

// SupplierError wraps an error returned by a Supplier when the poller is
// not configured to retry on errors.
type SupplierError struct {
	Attempt int
	Err     error
}

func (e *SupplierError) Error() string {
	return fmt.Sprintf("settle: poll: supplier failed on attempt %d: %v", e.Attempt, e.Err)
}

func (e *SupplierError) Unwrap() error {
	return e.Err
}

// RegistrationError reports a signal subscription that could not be
// established.
type RegistrationError struct {
	Filter     string
	Listener   Scope
	Emitter    Scope
	Privileged bool
	Err        error
}

func (e *RegistrationError) Error() string {
	domain := "ordinary"
	if e.Privileged {
		domain = "privileged"
	}
	return fmt.Sprintf("settle: register %s: %s registration for scope %q (emitter %q) failed: %v",
		e.Filter, domain, e.Listener, e.Emitter, e.Err)
}

func (e *RegistrationError) Unwrap() []error {
	return []error{ErrRegistration, e.Err}
}

// SignalTimeoutError reports a subscription that did not fire in time.
type SignalTimeoutError struct {
	Filter  string
	Timeout time.Duration
}

func (e *SignalTimeoutError) Error() string {
	return fmt.Sprintf("settle: await signal: no %s within %v", e.Filter, e.Timeout)
}

func (e *SignalTimeoutError) Unwrap() error {
	return ErrTimeout
}

// DispatchError wraps a failure of an Operation's dispatch step.
type DispatchError struct {
	Operation string
	Output    Output
	Err       error
}

func (e *DispatchError) Error() string {
	msg := fmt.Sprintf("settle: confirm %s: dispatch failed: %v", e.Operation, e.Err)
	if text := e.Output.String(); text != "" {
		msg += "\noutput: " + text
	}
	return msg
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}
