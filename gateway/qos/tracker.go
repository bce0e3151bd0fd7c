// Package qos turns delegation outcome reports into the rolling per-resource
// metrics that rank discovery candidates.
package qos

import (
	"time"

	"go.uber.org/zap"

	"github.com/aegisframework/aegis/types"
)

// Recorder is the slice of the registry store the tracker needs: apply a
// mutation to one live record.
type Recorder interface {
	Mutate(id string, fn func(*types.ResourceRecord)) error
}

// Tracker records delegation outcomes against resource QoS profiles and
// computes the composite score used for ranking.
type Tracker struct {
	store Recorder

	// alpha is the EWMA weight given to a new latency sample.
	alpha float64

	// refLatency normalizes latency in the composite score.
	refLatency time.Duration

	logger *zap.Logger
}

// NewTracker creates a tracker. alpha must be in (0, 1]; refLatency positive.
func NewTracker(store Recorder, alpha float64, refLatency time.Duration, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		store:      store,
		alpha:      alpha,
		refLatency: refLatency,
		logger:     logger.With(zap.String("component", "qos_tracker")),
	}
}

// RecordOutcome folds one delegation outcome into the resource's profile.
// Outcomes for ids no longer registered are dropped with a warning rather
// than an error: the delegation already happened, the report is best-effort.
func (t *Tracker) RecordOutcome(id string, success bool, latency time.Duration) {
	err := t.store.Mutate(id, func(rec *types.ResourceRecord) {
		prior := rec.QoS.Samples()
		if success {
			rec.QoS.SuccessCount++
		} else {
			rec.QoS.FailureCount++
		}
		rec.QoS.AvgLatency = ewma(rec.QoS.AvgLatency, latency, t.alpha, prior)
		rec.UsageCount++
	})
	if err != nil {
		t.logger.Warn("outcome for unknown resource dropped",
			zap.String("resource_id", id),
			zap.Bool("success", success),
		)
	}
}

// Score computes the composite ranking score for a profile:
//
//	successRate * 1 / (1 + avgLatency/referenceLatency)
//
// A fresh profile scores 1.0 (optimistic success prior, zero latency). The
// score is in (0, 1] and decreases monotonically in failures and latency.
func (t *Tracker) Score(q types.QoSProfile) float64 {
	return Score(q, t.refLatency)
}

// Score is the pure form, usable without a tracker.
func Score(q types.QoSProfile, refLatency time.Duration) float64 {
	penalty := 1.0 + float64(q.AvgLatency)/float64(refLatency)
	return q.SuccessRate() / penalty
}

// ewma updates the rolling latency average. The first sample sets the
// average directly; later samples are blended with weight alpha.
func ewma(avg, sample time.Duration, alpha float64, priorSamples int64) time.Duration {
	if priorSamples == 0 {
		return sample
	}
	return time.Duration(alpha*float64(sample) + (1-alpha)*float64(avg))
}
