package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cboone/settle"
)

func execute(t *testing.T, args ...string) (string, string, ExitCode) {
	t.Helper()
	for _, key := range []string{"SETTLE_TIMEOUT", "SETTLE_INTERVAL", "SETTLE_FALLBACK"} {
		t.Setenv(key, "")
	}

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), exitCode(err)
}

func TestExitCode(t *testing.T) {
	require.Equal(t, exitCodeSuccess, exitCode(nil))
	require.Equal(t, exitCodeTerminal, exitCode(&settle.PollError{Kind: settle.TerminalFailure}))
	require.Equal(t, exitCodeTimeout, exitCode(&settle.PollError{Kind: settle.TimedOut}))
	require.Equal(t, exitCodeTimeout, exitCode(fmt.Errorf("wrapped: %w", &settle.SignalTimeoutError{})))
	require.Equal(t, exitCodeError, exitCode(errors.New("boom")))
}

func TestConditionFlags(t *testing.T) {
	out := settle.Sample[settle.Output]{Value: settle.NewOutput("package:demo installed", 0)}

	f := conditionFlags{untilExit: -1}
	_, err := f.converged()
	require.ErrorContains(t, err, "--until")
	require.Nil(t, f.terminalCondition())
	require.Nil(t, f.alreadyDone())

	f = conditionFlags{until: []string{"package:demo"}, untilRegexp: []string{`install(ed)?$`}, untilExit: 0}
	cond, err := f.converged()
	require.NoError(t, err)
	ok, desc := cond(out)
	require.True(t, ok, desc)

	f = conditionFlags{untilRegexp: []string{"("}, untilExit: -1}
	_, err = f.converged()
	require.ErrorContains(t, err, "invalid --until-regexp")

	f = conditionFlags{terminal: []string{"FAILED", "installed"}, already: []string{"NOT INSTALLED"}}
	ok, _ = f.terminalCondition()(out)
	require.True(t, ok)
	ok, _ = f.alreadyDone()(out)
	require.False(t, ok)
}

func TestPollCommand(t *testing.T) {
	stdout, _, code := execute(t, "poll", "--status", "echo package:demo installed", "--until", "installed", "--timeout", "2s")
	require.Equal(t, exitCodeSuccess, code)
	require.Equal(t, "package:demo installed\n", stdout)

	_, stderr, code := execute(t, "poll", "--status", "echo DELETE_FAILED_OWNER_BLOCKED", "--until", "removed", "--terminal", "BLOCKED")
	require.Equal(t, exitCodeTerminal, code)
	require.Contains(t, stderr, "Poll failed")

	_, _, code = execute(t, "poll", "--status", "echo pending", "--until", "done", "--timeout", "100ms", "--interval", "20ms")
	require.Equal(t, exitCodeTimeout, code)

	_, _, code = execute(t, "poll", "--status", "echo pending")
	require.Equal(t, exitCodeError, code)

	_, _, code = execute(t, "poll", "--until", "x")
	require.Equal(t, exitCodeError, code)
}

func TestPollCommandUsesProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settle.yaml")
	require.NoError(t, os.WriteFile(path, []byte("profiles:\n  quick:\n    timeout: 50ms\n    interval: 10ms\n"), 0o644))

	_, _, code := execute(t, "--config", path, "--profile", "quick", "poll", "--status", "echo pending", "--until", "done")
	require.Equal(t, exitCodeTimeout, code)

	_, _, code = execute(t, "--config", path, "--profile", "missing", "poll", "--status", "echo pending", "--until", "done")
	require.Equal(t, exitCodeError, code)
}

func TestConfirmCommandWithSignal(t *testing.T) {
	stdout, stderr, code := execute(t, "-v", "confirm",
		"--act", `kill -USR1 "$SETTLE_PID"`,
		"--status", "echo package:demo installed",
		"--until", "installed",
		"--signal", "usr1",
		"--timeout", "5s",
	)
	require.Equal(t, exitCodeSuccess, code, stderr)
	require.Equal(t, "package:demo installed\n", stdout)
	require.Contains(t, stderr, "signaled=true")
}

func TestConfirmCommandFallbackAndAlreadyDone(t *testing.T) {
	_, stderr, code := execute(t, "confirm",
		"--act", "true",
		"--status", "echo package:demo removed",
		"--until", "removed",
		"--fallback", "10ms",
	)
	require.Equal(t, exitCodeSuccess, code, stderr)
	require.Contains(t, stderr, "fellBack=true")

	_, stderr, code = execute(t, "confirm",
		"--act", "true",
		"--status", "echo package:demo NOT INSTALLED FOR user 0",
		"--until", "removed",
		"--already", "NOT INSTALLED FOR",
		"--fallback", "1h",
	)
	require.Equal(t, exitCodeSuccess, code, stderr)
	require.Contains(t, stderr, "fellBack=false")
}

func TestConfirmCommandDispatchFailure(t *testing.T) {
	_, _, code := execute(t, "confirm", "--act", "exit 1", "--status", "echo ok", "--until", "ok", "--fallback", "0s")
	require.Equal(t, exitCodeSuccess, code, "a non-zero exit is output, not a dispatch error")

	_, _, code = execute(t, "--shell", filepath.Join(t.TempDir(), "nosh"), "confirm", "--act", "true", "--status", "echo ok", "--until", "ok")
	require.Equal(t, exitCodeError, code)
}

func TestMetricsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settle.prom")

	_, _, code := execute(t, "--metrics-file", path, "poll", "--status", "echo ok", "--until", "ok")
	require.Equal(t, exitCodeSuccess, code)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `settle_outcomes_total{kind="success",operation="poll"}`)
}

func TestSummaryAndEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("SETTLE_FALLBACK=5ms\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("SETTLE_FALLBACK") })

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"--env-file", envFile, "--summary", "confirm", "--act", "true", "--status", "echo ok", "--until", "ok"})
	require.NoError(t, cmd.Execute())

	require.Equal(t, "ok\n", stdout.String())
	summary := stderr.String()
	require.Contains(t, summary, "Operation")
	require.Contains(t, summary, "success")
	require.Contains(t, summary, "fallback")
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	writeSummary(&buf, summaryRow{operation: "poll", kind: settle.TimedOut, attempts: 11, elapsed: 1234567 * time.Microsecond, signal: "-"})

	out := buf.String()
	require.Contains(t, out, "timeout")
	require.Contains(t, out, "11")
	require.Contains(t, out, "1.235s")
}

func TestSignalColumn(t *testing.T) {
	require.Equal(t, "received", signalColumn(settle.Confirmation{Signaled: true}, true))
	require.Equal(t, "fallback", signalColumn(settle.Confirmation{FellBack: true}, true))
	require.Equal(t, "missing", signalColumn(settle.Confirmation{}, true))
	require.Equal(t, "-", signalColumn(settle.Confirmation{}, false))
}
