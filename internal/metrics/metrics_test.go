package metrics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/cboone/settle"
)

func TestRecorderObserve(t *testing.T) {
	var rec Recorder

	before := testutil.ToFloat64(Outcomes.WithLabelValues("install demo", "success"))
	rec.Observe(settle.Report{Operation: "install demo", Kind: settle.Success, Attempts: 3, Elapsed: time.Second, FellBack: true})
	require.Equal(t, before+1, testutil.ToFloat64(Outcomes.WithLabelValues("install demo", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(Fallbacks.WithLabelValues("install demo")))

	rec.Observe(settle.Report{
		Operation: "install demo",
		Kind:      settle.TimedOut,
		Err:       &settle.PollError{Kind: settle.TimedOut},
	})
	require.Equal(t, 1.0, testutil.ToFloat64(Outcomes.WithLabelValues("install demo", "timeout")))

	rec.Observe(settle.Report{Operation: "install demo", Err: errors.New("device offline")})
	require.Equal(t, 1.0, testutil.ToFloat64(Outcomes.WithLabelValues("install demo", KindError)))
	require.Equal(t, 1.0, testutil.ToFloat64(Errors.WithLabelValues("install demo")))

	require.GreaterOrEqual(t, testutil.CollectAndCount(Attempts, "settle_attempts"), 1)
}

func TestRecorderWithConfirmer(t *testing.T) {
	c := settle.NewConfirmer(settle.WithFallbackDelay(0), settle.WithObserver(Recorder{}))
	_, err := c.Confirm(t.Context(), settle.Operation{
		Name:      "noop",
		Dispatch:  func(context.Context) (settle.Output, error) { return settle.Output{}, nil },
		Status:    func(context.Context) (settle.Output, error) { return settle.NewOutput("ok", 0), nil },
		Converged: settle.Text("ok"),
	})
	require.NoError(t, err)
	require.Equal(t, 1.0, testutil.ToFloat64(Outcomes.WithLabelValues("noop", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(Fallbacks.WithLabelValues("noop")))
}

func TestWriteTextfile(t *testing.T) {
	Outcomes.WithLabelValues("textfile", "success").Inc()

	path := filepath.Join(t.TempDir(), "settle.prom")
	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `settle_outcomes_total{kind="success",operation="textfile"} 1`)
}
