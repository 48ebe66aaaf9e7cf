package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cboone/settle"
)

type PollCmd struct {
	status      string
	retryErrors bool
	conditions  conditionFlags
}

func NewPollCmd() *PollCmd {
	return &PollCmd{}
}

func (c *PollCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Run a status command until its output converges",
		Example: `  settle poll --status 'pm list packages' --until 'package:com.example'
  settle poll --status 'systemctl is-active db' --until-exit 0 --terminal failed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.status == "" {
				return errors.New("--status is required")
			}
			converged, err := c.conditions.converged()
			if err != nil {
				return err
			}

			env, err := newRunEnv(cmd, "poll")
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return env.finish(c.run(ctx, cmd, env, converged))
		},
	}

	cmd.Flags().StringVarP(&c.status, "status", "s", "", "status `COMMAND`, run with the shell for every sample")
	cmd.Flags().BoolVar(&c.retryErrors, "retry-errors", false, "keep polling when the status command cannot be started")
	c.conditions.register(cmd.Flags(), false)

	return cmd
}

func (c *PollCmd) run(ctx context.Context, cmd *cobra.Command, env *runEnv, converged settle.Condition[settle.Output]) error {
	sh := settle.Shell(settle.WithShellPath(env.shell))

	poller := settle.ForValue(sh.Script(c.status)).
		ToMeet(converged).
		TerminalValue(c.conditions.terminalCondition()).
		ErrorOnFail().
		With(env.opts...)
	if c.retryErrors {
		poller = poller.RetryOnError()
	}

	out, err := poller.Await(ctx)
	if env.summary {
		writeSummary(cmd.ErrOrStderr(), summaryRow{
			operation: "poll",
			kind:      out.Kind,
			attempts:  out.Attempts,
			elapsed:   out.Elapsed,
			signal:    "-",
		})
	}
	if err != nil {
		env.log.Error("Poll failed", "outcome", out.Kind, "attempts", out.Attempts, "duration", out.Elapsed, "error", err)
		return err
	}

	env.log.Info("Converged", "attempts", out.Attempts, "duration", out.Elapsed)
	_, err = fmt.Fprintln(cmd.OutOrStdout(), out.Sample.Value.String())
	return err
}
