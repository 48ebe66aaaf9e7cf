// Package settle makes assertions against an external, asynchronously
// changing system reliable.
//
// Tests that drive a host-controlled system (a package manager, a window
// manager, a service supervisor) issue a command and then have to wait until
// the system reflects it. settle replaces ad hoc sleeps with three pieces: a
// polling engine, a one-shot signal wait, and a composer that runs an action
// and confirms it.
//
// # Quick Start
//
//	func TestUninstall(t *testing.T) {
//		sh := settle.Shell()
//		settle.NewConfirmer().Must(t, settle.Operation{
//			Name:        "uninstall demo",
//			Dispatch:    settle.Command(sh, "pm", "uninstall", "demo"),
//			Status:      settle.Command(sh, "pm", "path", "demo"),
//			Converged:   settle.Text("removed"),
//			AlreadyDone: settle.Text("NOT INSTALLED FOR"),
//			Terminal:    settle.Text("DELETE_FAILED_OWNER_BLOCKED"),
//		})
//	}
//
// # Polling
//
// [ForValue] starts an immutable [Poller] over a [Supplier]. [Poller.Await]
// samples on the calling goroutine until the convergence [Condition] holds,
// the terminal condition holds, or the timeout expires, and reports an
// [Outcome] of kind [Success], [TerminalFailure] or [TimedOut].
//
// Poll behavior:
//
//   - Defaults: 10s timeout, 100ms interval, converge on a non-zero value
//   - The terminal condition is only evaluated on samples that did not converge
//   - The wait before the last sample is shortened to the remaining budget
//   - Poll intervals under 10ms are clamped to 10ms
//   - Supplier errors end the poll unless [Poller.RetryOnError] is set
//   - [Poller.ErrorOnFail] turns non-success outcomes into a [*PollError]
//   - Copies of one Poller never sample concurrently
//
// Built-in conditions include [Text], [Regexp], [Line], [LineContains],
// [ExitCode], [Empty], [Satisfies], [Not], [All] and [Any].
//
// # Signals
//
// A [SignalWaiter] registers a [Subscription] on a [Source] before the
// action that triggers the signal, so a signal that arrives early is never
// missed. Registrations for a listener scope other than the source's own go
// through a [PrivilegedSource] with a [Grant] from an [Elevator]; if that is
// not possible registration fails with [ErrPrivilegeUnavailable] rather than
// silently listening in the wrong scope. [Bus] is an in-memory source and
// [OSSignals] delivers process signals.
//
// # Confirming Operations
//
// [Confirmer.Confirm] registers the operation's completion signal, runs
// Dispatch, polls Status, and then waits for the signal within the remaining
// budget. When no signal can be registered it waits a fixed fallback delay
// (default 10s) instead.
//
// # Diagnostics
//
// Failures keep the last sample. [Poller.Must] and [Confirmer.Must] fail a
// test with the expected condition and the most recent samples, oldest to
// newest. [Output.MatchSnapshot] compares a capture with a golden file; set
// SETTLE_UPDATE=1 to create or update golden files.
//
// # Requirements
//
//   - Go 1.24+
//   - Linux or macOS
//
// The shell used by [ShellChannel.Script] is resolved in this order:
//
//   - [WithShellPath]
//   - SETTLE_SHELL
//   - PATH lookup for sh
package settle
