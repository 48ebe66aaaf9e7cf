package settle

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

func formatRecent[T any](samples []Sample[T]) string {
	if len(samples) == 0 {
		return "    (no sample taken)"
	}

	var b strings.Builder
	for i, s := range samples {
		fmt.Fprintf(&b, "    sample %d/%d (attempt %d):\n%s", i+1, len(samples), s.Attempt, formatSample(s))
		if i < len(samples)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func formatSample[T any](s Sample[T]) string {
	if s.Err != nil {
		return fmt.Sprintf("    error: %v", s.Err)
	}
	if out, ok := any(s.Value).(Output); ok {
		return formatOutputBox(out)
	}
	return fmt.Sprintf("    %v", s.Value)
}

// formatOutputBox draws command output inside a box border for error messages.
func formatOutputBox(out Output) string {
	width := 0
	for _, line := range out.lines {
		width = max(width, utf8.RuneCountInString(line))
	}
	if width == 0 {
		width = 20
	}

	var b strings.Builder
	border := strings.Repeat("─", width)

	fmt.Fprintf(&b, "    ┌%s┐\n", border)
	for _, line := range out.lines {
		padded := line
		if n := utf8.RuneCountInString(line); n < width {
			padded += strings.Repeat(" ", width-n)
		}
		fmt.Fprintf(&b, "    │%s│\n", padded)
	}
	fmt.Fprintf(&b, "    └%s┘ exit %d", border, out.exitCode)

	return b.String()
}
