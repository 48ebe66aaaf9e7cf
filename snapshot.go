package settle

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"
)

// UpdateSnapshotsEnv names the environment variable that makes
// MatchSnapshot write golden files instead of comparing against them.
const UpdateSnapshotsEnv = "SETTLE_UPDATE"

// MatchSnapshot compares the output and its exit status against the golden
// file testdata/<test-name>-<hash>/<name>.golden, failing t on mismatch.
// Set SETTLE_UPDATE=1 to create or update golden files.
func (o Output) MatchSnapshot(t testing.TB, name string) {
	t.Helper()

	path := snapshotPath(t.Name(), name)
	content := o.snapshot()

	if updateSnapshots() {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("settle: snapshot: failed to create directory: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("settle: snapshot: failed to write golden file: %v", err)
		}
		return
	}

	golden, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		t.Fatalf("settle: snapshot: golden file not found: %s\nRun with %s=1 to create it.\n\nActual output:\n%s",
			path, UpdateSnapshotsEnv, content)
	case err != nil:
		t.Fatalf("settle: snapshot: failed to read golden file: %v", err)
	case string(golden) != content:
		t.Fatalf("settle: snapshot: mismatch for %q\nGolden file: %s\nRun with %s=1 to update.\n\n%s",
			name, path, UpdateSnapshotsEnv, snapshotDiff(path, string(golden), content))
	}
}

// snapshotDiff renders a unified diff from the golden content to the actual.
func snapshotDiff(path, golden, actual string) string {
	edits := myers.ComputeEdits(span.URIFromPath(path), golden, actual)
	return fmt.Sprint(gotextdiff.ToUnified("golden/"+filepath.Base(path), "actual", golden, edits))
}

// snapshot renders the output for stable diffs: trailing spaces and blank
// lines are dropped and the exit status is recorded on the first line.
func (o Output) snapshot() string {
	lines := make([]string, 0, len(o.lines))
	for _, l := range o.lines {
		lines = append(lines, strings.TrimRight(l, " \t"))
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# exit %d\n", o.exitCode)
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return b.String()
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func snapshotPath(testName, name string) string {
	h := sha256.Sum256([]byte(testName))
	dir := unsafeName.ReplaceAllString(testName, "_") + "-" + hex.EncodeToString(h[:4])
	return filepath.Join("testdata", dir, unsafeName.ReplaceAllString(name, "_")+".golden")
}

func updateSnapshots() bool {
	switch os.Getenv(UpdateSnapshotsEnv) {
	case "1", "true", "yes":
		return true
	}
	return false
}
