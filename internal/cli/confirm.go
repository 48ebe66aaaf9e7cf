package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cboone/settle"
)

type ConfirmCmd struct {
	act        string
	status     string
	signal     string
	fallback   time.Duration
	conditions conditionFlags
}

func NewConfirmCmd() *ConfirmCmd {
	return &ConfirmCmd{}
}

func (c *ConfirmCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "confirm",
		Short: "Run an action, then wait until the status command confirms it",
		Long: `Run an action, then wait until the status command confirms it.

With --signal, settle listens for that signal before running the action and
waits for it after the status converges. Actions can reach the listener
through $SETTLE_PID. Without --signal, or when the signal cannot be
intercepted, settle waits the fallback delay instead.`,
		Example: `  settle confirm --act 'pm uninstall demo' --status 'pm path demo' \
      --until 'removed' --already 'NOT INSTALLED FOR' --terminal DELETE_FAILED_OWNER_BLOCKED
  settle confirm --act './deploy.sh && kill -USR1 $SETTLE_PID' --status './health.sh' \
      --until-exit 0 --signal USR1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.act == "" {
				return errors.New("--act is required")
			}
			if c.status == "" {
				return errors.New("--status is required")
			}
			converged, err := c.conditions.converged()
			if err != nil {
				return err
			}

			env, err := newRunEnv(cmd, "confirm")
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("fallback") {
				if c.fallback < 0 {
					return errors.New("--fallback must be >= 0")
				}
				env.opts = append(env.opts, settle.WithFallbackDelay(c.fallback))
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return env.finish(c.run(ctx, cmd, env, c.operation(env, converged)))
		},
	}

	cmd.Flags().StringVarP(&c.act, "act", "a", "", "action `COMMAND`, run once with the shell")
	cmd.Flags().StringVarP(&c.status, "status", "s", "", "status `COMMAND`, run with the shell for every sample")
	cmd.Flags().StringVar(&c.signal, "signal", "", "completion `SIGNAL` sent to this process (e.g. USR1)")
	cmd.Flags().DurationVar(&c.fallback, "fallback", 0, "delay after convergence when no completion signal is available (overrides the profile)")
	c.conditions.register(cmd.Flags(), true)

	return cmd
}

func (c *ConfirmCmd) operation(env *runEnv, converged settle.Condition[settle.Output]) settle.Operation {
	sh := settle.Shell(
		settle.WithShellPath(env.shell),
		settle.WithEnv("SETTLE_PID="+strconv.Itoa(os.Getpid())),
	)

	op := settle.Operation{
		Name:        "confirm",
		Dispatch:    sh.Script(c.act),
		Status:      sh.Script(c.status),
		Converged:   converged,
		AlreadyDone: c.conditions.alreadyDone(),
		Terminal:    c.conditions.terminalCondition(),
	}
	if c.signal != "" {
		op.Signal = &settle.SignalSpec{
			Waiter: settle.NewSignalWaiter(settle.NewOSSignals(), settle.WithSignalLogger(env.log)),
			Filter: settle.Filter{Action: settle.SignalName(c.signal)},
		}
	}
	return op
}

func (c *ConfirmCmd) run(ctx context.Context, cmd *cobra.Command, env *runEnv, op settle.Operation) error {
	conf, err := settle.NewConfirmer(env.opts...).Confirm(ctx, op)
	if env.summary {
		writeSummary(cmd.ErrOrStderr(), summaryRow{
			operation: "confirm",
			kind:      conf.Outcome.Kind,
			attempts:  conf.Outcome.Attempts,
			elapsed:   conf.Outcome.Elapsed,
			signal:    signalColumn(conf, op.Signal != nil),
		})
	}
	if err != nil {
		env.log.Error("Confirmation failed", "state", conf.State, "outcome", conf.Outcome.Kind,
			"attempts", conf.Outcome.Attempts, "duration", conf.Outcome.Elapsed, "error", err)
		return err
	}

	env.log.Info("Confirmed", "attempts", conf.Outcome.Attempts, "duration", conf.Outcome.Elapsed,
		"signaled", conf.Signaled, "fellBack", conf.FellBack)
	_, err = fmt.Fprintln(cmd.OutOrStdout(), conf.Outcome.Sample.Value.String())
	return err
}
