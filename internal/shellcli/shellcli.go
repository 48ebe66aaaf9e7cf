// Package shellcli provides low-level command execution with exit-status
// capture. It is internal to the settle package.
package shellcli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// Runner executes commands in a fixed working directory and environment.
type Runner struct {
	dir string
	env []string
}

// New creates a Runner. env entries ("KEY=VALUE") are appended to the
// current process environment; an empty dir means the current directory.
func New(dir string, env []string) *Runner {
	return &Runner{
		dir: dir,
		env: env,
	}
}

// Result is the captured outcome of one command. Output interleaves stdout
// and stderr in the order they were written.
type Result struct {
	Output   string
	Stderr   string
	ExitCode int
}

// Run executes name with args. A non-zero exit status is reported in the
// Result, not as an error; errors are reserved for commands that could not
// be started or were interrupted by ctx.
func (r *Runner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.dir
	if len(r.env) > 0 {
		cmd.Env = append(os.Environ(), r.env...)
	}

	var combined, stderr bytes.Buffer
	shared := &lockedWriter{w: &combined}
	cmd.Stdout = shared
	cmd.Stderr = io.MultiWriter(shared, &stderr)

	err := cmd.Run()
	res := Result{
		Output: combined.String(),
		Stderr: strings.TrimSpace(stderr.String()),
	}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, &Error{
		Op:     name,
		Args:   args,
		Stderr: res.Stderr,
		Err:    err,
	}
}

// lockedWriter serializes the stdout and stderr copy goroutines.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// Error represents a command that could not be run to completion.
type Error struct {
	Op     string
	Args   []string
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	if e.Stderr != "" {
		msg += "\nstderr: " + e.Stderr
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// LookShell resolves the shell used for script commands by checking, in
// order, the configured path, the SETTLE_SHELL environment variable and a
// $PATH lookup of "sh".
//
// Returns the resolved path and whether it was explicitly configured.
func LookShell(configured string) (path string, explicit bool, err error) {
	if configured != "" {
		return configured, true, nil
	}
	if envPath := os.Getenv("SETTLE_SHELL"); envPath != "" {
		return envPath, true, nil
	}
	found, err := exec.LookPath("sh")
	if err != nil {
		return "", false, fmt.Errorf("shell not found: %w", err)
	}
	return found, false, nil
}
