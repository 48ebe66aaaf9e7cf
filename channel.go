package settle

import (
	"context"
	"fmt"

	"github.com/cboone/settle/internal/shellcli"
)

// Channel runs commands against the external system and returns their
// text and exit status. A non-zero exit status is data, not an error.
type Channel interface {
	Run(ctx context.Context, args ...string) (Output, error)
}

// ChannelFunc adapts a function to a Channel.
type ChannelFunc func(ctx context.Context, args ...string) (Output, error)

// Run calls f(ctx, args...).
func (f ChannelFunc) Run(ctx context.Context, args ...string) (Output, error) {
	return f(ctx, args...)
}

// Command returns a Supplier that runs args on ch for every sample.
func Command(ch Channel, args ...string) Supplier[Output] {
	return func(ctx context.Context) (Output, error) {
		return ch.Run(ctx, args...)
	}
}

type shellOptions struct {
	dir   string
	env   []string
	shell string
}

// ShellOption configures the channel returned by Shell.
type ShellOption func(*shellOptions)

// WithDir sets the working directory for commands.
func WithDir(dir string) ShellOption {
	return func(o *shellOptions) {
		o.dir = dir
	}
}

// WithEnv appends environment variables to the command environment.
// Each entry should be in "KEY=VALUE" format.
func WithEnv(env ...string) ShellOption {
	return func(o *shellOptions) {
		o.env = append(o.env, env...)
	}
}

// WithShellPath sets the shell used by ShellChannel.Script. Defaults to
// SETTLE_SHELL, then "sh" resolved via $PATH.
func WithShellPath(path string) ShellOption {
	return func(o *shellOptions) {
		o.shell = path
	}
}

// ShellChannel runs local processes.
type ShellChannel struct {
	runner *shellcli.Runner
	shell  string
}

// Shell returns a Channel that executes commands as local processes.
func Shell(opts ...ShellOption) *ShellChannel {
	var o shellOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &ShellChannel{
		runner: shellcli.New(o.dir, o.env),
		shell:  o.shell,
	}
}

// Run executes args[0] with the remaining arguments.
func (c *ShellChannel) Run(ctx context.Context, args ...string) (Output, error) {
	if len(args) == 0 {
		return Output{}, fmt.Errorf("settle: run: empty command")
	}
	res, err := c.runner.Run(ctx, args[0], args[1:]...)
	out := NewOutput(res.Output, res.ExitCode)
	if err != nil {
		return out, fmt.Errorf("settle: run: %w", err)
	}
	return out, nil
}

// Script returns a Supplier that runs script with "<shell> -c".
func (c *ShellChannel) Script(script string) Supplier[Output] {
	return func(ctx context.Context) (Output, error) {
		shell, _, err := shellcli.LookShell(c.shell)
		if err != nil {
			return Output{}, fmt.Errorf("settle: run: %w", err)
		}
		return c.Run(ctx, shell, "-c", script)
	}
}
