package cli

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/spf13/pflag"

	"github.com/cboone/settle"
)

// conditionFlags builds Output conditions from repeatable flags.
type conditionFlags struct {
	until       []string
	untilRegexp []string
	untilExit   int
	terminal    []string
	already     []string
}

func (f *conditionFlags) register(flags *pflag.FlagSet, withAlready bool) {
	flags.StringArrayVar(&f.until, "until", nil, "converged once the status output contains `TEXT` (repeatable, all must match)")
	flags.StringArrayVar(&f.untilRegexp, "until-regexp", nil, "converged once the status output matches `RE` (repeatable, all must match)")
	flags.IntVar(&f.untilExit, "until-exit", -1, "converged once the status command exits with `CODE`")
	flags.StringArrayVar(&f.terminal, "terminal", nil, "stop immediately once the status output contains `TEXT` (repeatable, any matches)")
	if withAlready {
		flags.StringArrayVar(&f.already, "already", nil, "the desired state held before the action if the status output contains `TEXT` (repeatable, any matches)")
	}
}

func (f *conditionFlags) converged() (settle.Condition[settle.Output], error) {
	var conds []settle.Condition[settle.Output]
	for _, s := range f.until {
		conds = append(conds, settle.Text(s))
	}
	for _, pattern := range f.untilRegexp {
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("invalid --until-regexp: %w", err)
		}
		conds = append(conds, settle.Regexp(pattern))
	}
	if f.untilExit >= 0 {
		conds = append(conds, settle.ExitCode(f.untilExit))
	}
	switch len(conds) {
	case 0:
		return nil, errors.New("one of --until, --until-regexp or --until-exit is required")
	case 1:
		return conds[0], nil
	default:
		return settle.All(conds...), nil
	}
}

func (f *conditionFlags) terminalCondition() settle.Condition[settle.Output] {
	return anyText(f.terminal)
}

func (f *conditionFlags) alreadyDone() settle.Condition[settle.Output] {
	return anyText(f.already)
}

func anyText(texts []string) settle.Condition[settle.Output] {
	switch len(texts) {
	case 0:
		return nil
	case 1:
		return settle.Text(texts[0])
	}
	conds := make([]settle.Condition[settle.Output], 0, len(texts))
	for _, s := range texts {
		conds = append(conds, settle.Text(s))
	}
	return settle.Any(conds...)
}
