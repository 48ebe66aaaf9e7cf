package settle

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestFormatOutputBoxAlignsMultiByteLines(t *testing.T) {
	out := NewOutput("paquet: installé\nok\nстатус: готово", 0)

	box := formatOutputBox(out)
	lines := strings.Split(box, "\n")
	require.Len(t, lines, 5)

	want := utf8.RuneCountInString(lines[0])
	for _, line := range lines[1:4] {
		require.Equal(t, want, utf8.RuneCountInString(line), "line %q", line)
		require.True(t, strings.HasSuffix(line, "│"), "line %q", line)
	}
	require.Contains(t, lines[1], "│paquet: installé│")
	require.Contains(t, lines[2], "│ok              │")
	require.True(t, strings.HasPrefix(lines[4], "    └"+strings.Repeat("─", 16)+"┘"))
}
