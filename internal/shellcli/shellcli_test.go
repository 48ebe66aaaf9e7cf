package shellcli_test

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cboone/settle/internal/shellcli"
)

func findShell(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not found in PATH")
	}
	return path
}

func TestRunnerCapturesOutput(t *testing.T) {
	sh := findShell(t)
	runner := shellcli.New("", nil)

	res, err := runner.Run(context.Background(), sh, "-c", "echo out; echo err 1>&2")
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)
	require.Contains(t, res.Output, "out")
	require.Contains(t, res.Output, "err")
	require.Equal(t, "err", res.Stderr)
}

func TestRunnerReportsExitCode(t *testing.T) {
	sh := findShell(t)
	runner := shellcli.New("", nil)

	res, err := runner.Run(context.Background(), sh, "-c", "echo Failure; exit 3")
	require.NoError(t, err)
	require.Equal(t, 3, res.ExitCode)
	require.Equal(t, "Failure", strings.TrimSpace(res.Output))
}

func TestRunnerDirAndEnv(t *testing.T) {
	sh := findShell(t)
	dir := t.TempDir()
	runner := shellcli.New(dir, []string{"SETTLE_TEST_VAR=hello_from_env"})

	res, err := runner.Run(context.Background(), sh, "-c", "pwd; echo $SETTLE_TEST_VAR")
	require.NoError(t, err)
	require.Contains(t, res.Output, "hello_from_env")
	require.Contains(t, res.Output, dir)
}

func TestRunnerStartFailure(t *testing.T) {
	runner := shellcli.New("", nil)

	_, err := runner.Run(context.Background(), "/nonexistent/settle-binary")
	require.Error(t, err)

	var runErr *shellcli.Error
	require.True(t, errors.As(err, &runErr), "expected *shellcli.Error, got %T", err)
	require.Equal(t, "/nonexistent/settle-binary", runErr.Op)
}

func TestRunnerContextCancel(t *testing.T) {
	sh := findShell(t)
	runner := shellcli.New("", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := runner.Run(ctx, sh, "-c", "sleep 5")
	require.Error(t, err)
	var runErr *shellcli.Error
	require.True(t, errors.As(err, &runErr))
}

func TestLookShell(t *testing.T) {
	path, explicit, err := shellcli.LookShell("/bin/custom-sh")
	require.NoError(t, err)
	require.True(t, explicit)
	require.Equal(t, "/bin/custom-sh", path)

	t.Setenv("SETTLE_SHELL", "/bin/env-sh")
	path, explicit, err = shellcli.LookShell("")
	require.NoError(t, err)
	require.True(t, explicit)
	require.Equal(t, "/bin/env-sh", path)

	t.Setenv("SETTLE_SHELL", "")
	findShell(t)
	path, explicit, err = shellcli.LookShell("")
	require.NoError(t, err)
	require.False(t, explicit)
	require.NotEmpty(t, path)
}
