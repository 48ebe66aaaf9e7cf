package settle

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

// A Condition reports whether a Sample satisfies it. The string return is a
// human-readable description for error messages.
type Condition[T any] func(s Sample[T]) (ok bool, description string)

// Satisfies wraps a plain predicate over the sampled value.
func Satisfies[T any](description string, f func(v T) bool) Condition[T] {
	return func(s Sample[T]) (bool, string) {
		return f(s.Value), description
	}
}

// Not inverts a condition.
func Not[T any](c Condition[T]) Condition[T] {
	return func(s Sample[T]) (bool, string) {
		ok, desc := c(s)
		return !ok, "NOT(" + desc + ")"
	}
}

// All matches when every provided condition matches.
func All[T any](conditions ...Condition[T]) Condition[T] {
	return func(s Sample[T]) (bool, string) {
		descs := make([]string, 0, len(conditions))
		for _, c := range conditions {
			ok, desc := c(s)
			descs = append(descs, desc)
			if !ok {
				return false, "all of: " + strings.Join(descs, ", ")
			}
		}
		return true, "all of: " + strings.Join(descs, ", ")
	}
}

// Any matches when at least one provided condition matches. Nil conditions
// are skipped.
func Any[T any](conditions ...Condition[T]) Condition[T] {
	return func(s Sample[T]) (bool, string) {
		descs := make([]string, 0, len(conditions))
		for _, c := range conditions {
			if c == nil {
				continue
			}
			ok, desc := c(s)
			descs = append(descs, desc)
			if ok {
				return true, "any of: " + strings.Join(descs, ", ")
			}
		}
		return false, "any of: " + strings.Join(descs, ", ")
	}
}

// nonZero is the convergence condition used when none is configured.
func nonZero[T any]() Condition[T] {
	return func(s Sample[T]) (bool, string) {
		v := reflect.ValueOf(any(s.Value))
		return v.IsValid() && !v.IsZero(), "value to be non-zero"
	}
}

// Text matches if the output contains the given substring anywhere.
func Text(s string) Condition[Output] {
	return func(smp Sample[Output]) (bool, string) {
		return smp.Value.Contains(s), fmt.Sprintf("output to contain %q", s)
	}
}

// Regexp matches if the output matches the regular expression.
// The pattern is compiled once; an invalid pattern causes a panic.
func Regexp(pattern string) Condition[Output] {
	re := regexp.MustCompile(pattern)
	return func(smp Sample[Output]) (bool, string) {
		return re.MatchString(smp.Value.String()), fmt.Sprintf("output to match regexp %q", pattern)
	}
}

// Line matches if the given line (0-indexed) equals s after trimming
// trailing spaces.
func Line(n int, s string) Condition[Output] {
	return func(smp Sample[Output]) (bool, string) {
		desc := fmt.Sprintf("line %d to equal %q", n, s)
		lines := smp.Value.lines
		if n < 0 || n >= len(lines) {
			return false, desc
		}
		return strings.TrimRight(lines[n], " ") == s, desc
	}
}

// LineContains matches if the given line (0-indexed) contains the substring.
func LineContains(n int, substr string) Condition[Output] {
	return func(smp Sample[Output]) (bool, string) {
		desc := fmt.Sprintf("line %d to contain %q", n, substr)
		lines := smp.Value.lines
		if n < 0 || n >= len(lines) {
			return false, desc
		}
		return strings.Contains(lines[n], substr), desc
	}
}

// ExitCode matches if the command exited with the given status.
func ExitCode(code int) Condition[Output] {
	return func(smp Sample[Output]) (bool, string) {
		desc := fmt.Sprintf("exit code %d", code)
		if smp.Value.exitCode == code {
			return true, desc
		}
		return false, desc + fmt.Sprintf(" (actual: %d)", smp.Value.exitCode)
	}
}

// Empty matches when the output has no visible content.
func Empty() Condition[Output] {
	return func(smp Sample[Output]) (bool, string) {
		return strings.TrimSpace(smp.Value.String()) == "", "output to be empty"
	}
}
