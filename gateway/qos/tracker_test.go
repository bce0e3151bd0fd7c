package qos

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aegisframework/aegis/gateway/registry"
	"github.com/aegisframework/aegis/types"
)

const refLatency = 250 * time.Millisecond

func newTracker(t *testing.T) (*Tracker, *registry.Store) {
	store := registry.NewStore(zaptest.NewLogger(t))
	_, err := store.Register(&types.ResourceRecord{
		ID:           "res-1",
		Capabilities: []string{"weather"},
		Endpoint:     "http://localhost:9000",
		Active:       true,
	})
	require.NoError(t, err)
	return NewTracker(store, 0.2, refLatency, zaptest.NewLogger(t)), store
}

func TestTracker_FirstSampleSetsLatency(t *testing.T) {
	tr, store := newTracker(t)

	tr.RecordOutcome("res-1", true, 100*time.Millisecond)

	rec, err := store.Get("res-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.QoS.SuccessCount)
	assert.Equal(t, 100*time.Millisecond, rec.QoS.AvgLatency)
	assert.Equal(t, int64(1), rec.UsageCount)
}

func TestTracker_EWMABlending(t *testing.T) {
	tr, store := newTracker(t)

	tr.RecordOutcome("res-1", true, 100*time.Millisecond)
	tr.RecordOutcome("res-1", false, 200*time.Millisecond)

	rec, err := store.Get("res-1")
	require.NoError(t, err)
	// 0.2*200ms + 0.8*100ms = 120ms
	assert.Equal(t, 120*time.Millisecond, rec.QoS.AvgLatency)
	assert.Equal(t, int64(1), rec.QoS.SuccessCount)
	assert.Equal(t, int64(1), rec.QoS.FailureCount)
	assert.InDelta(t, 0.5, rec.QoS.SuccessRate(), 1e-9)
}

func TestTracker_UnknownResourceIsSoft(t *testing.T) {
	tr, _ := newTracker(t)

	// Must not panic or error; the report is simply dropped.
	tr.RecordOutcome("vanished", true, 10*time.Millisecond)
}

func TestScore_FreshProfile(t *testing.T) {
	assert.Equal(t, 1.0, Score(types.QoSProfile{}, refLatency))
}

func TestScore_PinnedValues(t *testing.T) {
	// A: perfect success, 50ms average.
	a := types.QoSProfile{SuccessCount: 10, AvgLatency: 50 * time.Millisecond}
	// 1.0 / (1 + 50/250) = 0.8333...
	assert.InDelta(t, 0.833333, Score(a, refLatency), 1e-6)

	// B: 50% success, 10ms average.
	b := types.QoSProfile{SuccessCount: 5, FailureCount: 5, AvgLatency: 10 * time.Millisecond}
	// 0.5 / (1 + 10/250) = 0.480769...
	assert.InDelta(t, 0.480769, Score(b, refLatency), 1e-6)

	// Reliability dominates moderate latency differences.
	assert.Greater(t, Score(a, refLatency), Score(b, refLatency))
}

func TestScore_MonotoneInFailuresAndLatency(t *testing.T) {
	base := types.QoSProfile{SuccessCount: 8, FailureCount: 2, AvgLatency: 100 * time.Millisecond}

	moreFailures := base
	moreFailures.FailureCount++
	assert.Less(t, Score(moreFailures, refLatency), Score(base, refLatency))

	slower := base
	slower.AvgLatency = 200 * time.Millisecond
	assert.Less(t, Score(slower, refLatency), Score(base, refLatency))
}

func TestTracker_ScoreUsesConfiguredReference(t *testing.T) {
	tr, _ := newTracker(t)
	q := types.QoSProfile{SuccessCount: 1, AvgLatency: 250 * time.Millisecond}
	// avgLatency == refLatency halves the score.
	assert.InDelta(t, 0.5, tr.Score(q), 1e-9)
}

func TestTracker_RankingScenario(t *testing.T) {
	// Ten successes at modest latency must outrank ten failures at low
	// latency, regardless of the latency edge.
	good := types.QoSProfile{SuccessCount: 10, AvgLatency: 120 * time.Millisecond}
	bad := types.QoSProfile{FailureCount: 10, AvgLatency: 5 * time.Millisecond}

	assert.Greater(t, Score(good, refLatency), Score(bad, refLatency))
	assert.Equal(t, 0.0, Score(bad, refLatency))
}
