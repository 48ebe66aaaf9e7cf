// Package cli implements the settle command: poll a status command until
// it converges, or run an action and confirm it took effect.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/cboone/settle"
	"github.com/cboone/settle/internal/config"
	"github.com/cboone/settle/internal/metrics"
)

type ExitCode int

const (
	exitCodeSuccess  ExitCode = 0
	exitCodeError    ExitCode = 1
	exitCodeTerminal ExitCode = 3
	exitCodeTimeout  ExitCode = 4
)

func Run() ExitCode {
	return exitCode(newRootCmd().Execute())
}

func exitCode(err error) ExitCode {
	switch {
	case err == nil:
		return exitCodeSuccess
	case errors.Is(err, settle.ErrTerminal):
		return exitCodeTerminal
	case errors.Is(err, settle.ErrTimeout):
		return exitCodeTimeout
	default:
		return exitCodeError
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "settle",
		Short:         "Wait for an external system to converge.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := cmd.Help()
			if err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.BoolP("verbose", "v", false, "set debug logging level")
	flags.StringP("config", "c", "", "YAML file of named budget profiles")
	flags.StringP("profile", "p", "", "budget profile to use (default: the file's default)")
	flags.Duration("timeout", 0, "total time budget (overrides the profile)")
	flags.Duration("interval", 0, "delay between status samples (overrides the profile)")
	flags.Duration("max-interval", 0, "grow the interval exponentially up to this value")
	flags.String("metrics-file", "", "write Prometheus metrics to this file on exit")
	flags.String("shell", "", "shell used to run commands (default: $SETTLE_SHELL, then sh)")
	flags.String("env-file", "", "load SETTLE_* variables from a dotenv file (the environment wins)")
	flags.Bool("summary", false, "print an outcome table to stderr")

	rootCmd.AddCommand(
		NewPollCmd().Command(),
		NewConfirmCmd().Command(),
	)

	return rootCmd
}

// runEnv is what every subcommand needs from the persistent flags.
type runEnv struct {
	log         *slog.Logger
	opts        []settle.Option
	profile     config.Profile
	shell       string
	metricsFile string
	summary     bool
}

func newRunEnv(cmd *cobra.Command, name string) (*runEnv, error) {
	flags := cmd.Root().PersistentFlags()
	verbose, err := flags.GetBool("verbose")
	if err != nil {
		return nil, fmt.Errorf("failed to get verbose flag: %w", err)
	}
	configPath, err := flags.GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	profileName, err := flags.GetString("profile")
	if err != nil {
		return nil, fmt.Errorf("failed to get profile flag: %w", err)
	}
	shell, err := flags.GetString("shell")
	if err != nil {
		return nil, fmt.Errorf("failed to get shell flag: %w", err)
	}
	metricsFile, err := flags.GetString("metrics-file")
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics-file flag: %w", err)
	}
	envFile, err := flags.GetString("env-file")
	if err != nil {
		return nil, fmt.Errorf("failed to get env-file flag: %w", err)
	}
	summary, err := flags.GetBool("summary")
	if err != nil {
		return nil, fmt.Errorf("failed to get summary flag: %w", err)
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	file := &config.File{}
	if configPath != "" {
		file, err = config.Load(configPath)
		if err != nil {
			return nil, err
		}
	}
	profile, err := file.Profile(profileName)
	if err != nil {
		return nil, err
	}
	profile, err = profile.ApplyEnv(os.Getenv)
	if err != nil {
		return nil, err
	}
	for flag, dst := range map[string]*time.Duration{
		"timeout":      &profile.Timeout,
		"interval":     &profile.Interval,
		"max-interval": &profile.MaxInterval,
	} {
		if !flags.Changed(flag) {
			continue
		}
		if *dst, err = flags.GetDuration(flag); err != nil {
			return nil, fmt.Errorf("failed to get %s flag: %w", flag, err)
		}
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	log := newLogger(cmd.ErrOrStderr(), verbose)
	env := &runEnv{
		log:         log,
		profile:     profile,
		shell:       shell,
		metricsFile: metricsFile,
		summary:     summary,
		opts: []settle.Option{
			settle.WithName(name),
			settle.WithTimeout(profile.Timeout),
			settle.WithInterval(profile.Interval),
			settle.WithBackoff(profile.MaxInterval),
			settle.WithFallbackDelay(profile.Fallback),
			settle.WithLogger(log),
		},
	}
	if metricsFile != "" {
		env.opts = append(env.opts, settle.WithObserver(metrics.Recorder{}))
	}
	return env, nil
}

// finish writes metrics, if requested, and passes err through.
func (e *runEnv) finish(err error) error {
	if e.metricsFile == "" {
		return err
	}
	if werr := metrics.WriteTextfile(e.metricsFile); werr != nil {
		e.log.Error("Failed to write metrics", "error", werr, "path", e.metricsFile)
		if err == nil {
			return werr
		}
	}
	return err
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	_, isFile := w.(*os.File)
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		NoColor:    !isFile,
	}))
}
