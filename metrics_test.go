package saga

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestMetricsRecorderTracksActiveRuns(t *testing.T) {
	recorder := NewMetricsRecorder(otel.Meter("saga-test"))

	recorder.RecordSagaStart("a")
	recorder.RecordSagaStart("b")
	assert.Equal(t, int64(2), recorder.ActiveRuns())

	recorder.RecordSagaEnd(context.Background(), "a", "completed", 0)
	assert.Equal(t, int64(1), recorder.ActiveRuns())
}

func TestNilMetricsRecorderIsSafe(t *testing.T) {
	var recorder *MetricsRecorder
	recorder.RecordSagaStart("a")
	recorder.RecordSagaEnd(context.Background(), "a", "completed", 0)
	recorder.RecordStepExecution(context.Background(), "a", "s", nil, 0)
	recorder.RecordCompensation(context.Background(), "a", "s", errors.New("x"))
	assert.Zero(t, recorder.ActiveRuns())
}

func TestExecutorBalancesActiveRuns(t *testing.T) {
	recorder := NewMetricsRecorder(otel.Meter("saga-test"))

	b := NewBuilder("metered")
	require.NoError(t, b.Append(noopStep("a")))
	require.NoError(t, b.Append(NewStep("b",
		func(context.Context, *RunContext) (any, error) { return nil, errors.New("down") }, nil)))

	exec := NewExecutor(buildDef(t, b), NewMemoryCheckpointStore(), WithMetrics(recorder))
	_, err := exec.Run(context.Background(), NewRunContext())
	require.Error(t, err)
	assert.Zero(t, recorder.ActiveRuns(), "every started run must be ended")
}

func TestResultLabel(t *testing.T) {
	assert.Equal(t, "success", resultLabel(nil))
	assert.Equal(t, "failure", resultLabel(errors.New("x")))
}
