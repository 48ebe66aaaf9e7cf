package settle

import (
	"strings"
)

// Output is an immutable capture of a command's text and exit status, the
// value type sampled from a status channel.
type Output struct {
	lines    []string
	raw      string
	exitCode int
}

// NewOutput creates an Output from raw command text. Line endings are
// normalized and a single trailing newline is dropped.
func NewOutput(raw string, exitCode int) Output {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.TrimSuffix(raw, "\n")

	return Output{
		lines:    strings.Split(raw, "\n"),
		raw:      raw,
		exitCode: exitCode,
	}
}

// String returns the full output text.
func (o Output) String() string {
	return o.raw
}

// Lines returns a copy of the output, one entry per line.
func (o Output) Lines() []string {
	cp := make([]string, len(o.lines))
	copy(cp, o.lines)
	return cp
}

// Line returns a single line (0-indexed), or "" when n is out of range.
func (o Output) Line(n int) string {
	if n < 0 || n >= len(o.lines) {
		return ""
	}
	return o.lines[n]
}

// Contains reports whether the output contains the substring.
func (o Output) Contains(substr string) bool {
	return strings.Contains(o.raw, substr)
}

// ExitCode returns the exit status of the command that produced the output.
func (o Output) ExitCode() int {
	return o.exitCode
}
