package types

import (
	"time"
)

// Document is an opaque structured value carried through the registry
// unmodified. The core never introspects it; only the resource itself and
// outer UI layers interpret the contents (api_schema, manifest).
type Document map[string]any

// Clone returns a shallow copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// QoSProfile aggregates per-resource performance samples into the rolling
// metrics used for ranking and health state. It is mutated only by the QoS
// tracker in response to delegation outcomes; registration never touches it.
type QoSProfile struct {
	// SuccessCount and FailureCount are monotonically non-decreasing.
	SuccessCount int64 `json:"success_count"`
	FailureCount int64 `json:"failure_count"`

	// AvgLatency is an exponentially weighted moving average of observed
	// delegation latencies. The first sample sets it directly.
	AvgLatency time.Duration `json:"avg_latency"`
}

// Samples returns the total number of recorded outcomes.
func (q QoSProfile) Samples() int64 {
	return q.SuccessCount + q.FailureCount
}

// SuccessRate returns successCount / (successCount + failureCount).
// With zero samples it returns 1.0, the optimistic prior, so that a fresh
// resource is not ranked below resources with history.
func (q QoSProfile) SuccessRate() float64 {
	total := q.Samples()
	if total == 0 {
		return 1.0
	}
	return float64(q.SuccessCount) / float64(total)
}

// ResourceRecord is the registry's unit of state: one capability-providing
// resource (tool, agent, or model) and its observed quality of service.
type ResourceRecord struct {
	// ID is globally unique, assigned at registration, immutable.
	ID string `json:"id"`

	// Name is the resource's human-readable display name.
	Name string `json:"name,omitempty"`

	// Owner identifies who registered the resource.
	Owner string `json:"owner,omitempty"`

	// Capabilities is the ordered, non-empty set of capability tokens the
	// resource advertises. Tokens are opaque strings; qualifier tokens such
	// as "location:São Paulo" are not interpreted by the registry.
	Capabilities []string `json:"capabilities"`

	// Endpoint is the opaque address used by the delegation step.
	Endpoint string `json:"endpoint"`

	// APISchema and Manifest are passed through unmodified.
	APISchema Document `json:"api_schema,omitempty"`
	Manifest  Document `json:"manifest,omitempty"`

	// QoS holds the rolling performance metrics.
	QoS QoSProfile `json:"qos"`

	// Active controls discovery visibility. Inactive records remain in the
	// primary index and queryable by id but are excluded from
	// capability-based discovery.
	Active bool `json:"active"`

	// UsageCount is the number of delegations dispatched to this resource.
	UsageCount int64 `json:"usage_count"`

	RegisteredAt time.Time `json:"registered_at"`
	LastTestedAt time.Time `json:"last_tested_at,omitempty"`
}

// HasCapability reports whether the record advertises the given token.
func (r *ResourceRecord) HasCapability(token string) bool {
	for _, c := range r.Capabilities {
		if c == token {
			return true
		}
	}
	return false
}

// Clone returns a deep-enough copy of the record: slices and documents are
// copied so the caller can mutate the result without racing the registry.
func (r *ResourceRecord) Clone() *ResourceRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Capabilities = append([]string(nil), r.Capabilities...)
	out.APISchema = r.APISchema.Clone()
	out.Manifest = r.Manifest.Clone()
	return &out
}

// RegistrationStatus distinguishes resources that passed the registration
// health check from those admitted in a degraded, discoverable-by-id-only
// state.
type RegistrationStatus string

const (
	// RegistrationActive means the resource passed validation and is
	// eligible for capability discovery.
	RegistrationActive RegistrationStatus = "active"
	// RegistrationPending means the health check failed; the record is
	// registered but excluded from matching until a later check succeeds.
	RegistrationPending RegistrationStatus = "pending"
)

// RegistrationResult is returned by the register operation.
type RegistrationResult struct {
	ID      string             `json:"id"`
	Status  RegistrationStatus `json:"status"`
	Updated bool               `json:"updated"` // re-registration of an existing id
}

// Candidate is a discovery result: the record plus its composite score at
// query time. Scores are snapshots; they are not updated after the query.
type Candidate struct {
	Record *ResourceRecord `json:"record"`
	Score  float64         `json:"score"`
}

// CandidateSummary is the wire-level projection of a candidate exposed by
// the gateway's query operation.
type CandidateSummary struct {
	ID          string        `json:"id"`
	Name        string        `json:"name,omitempty"`
	Endpoint    string        `json:"endpoint"`
	Score       float64       `json:"score"`
	SuccessRate float64       `json:"success_rate"`
	AvgLatency  time.Duration `json:"avg_latency"`
	Samples     int64         `json:"samples"`
}

// Summary projects a candidate into its wire form.
func (c Candidate) Summary() CandidateSummary {
	return CandidateSummary{
		ID:          c.Record.ID,
		Name:        c.Record.Name,
		Endpoint:    c.Record.Endpoint,
		Score:       c.Score,
		SuccessRate: c.Record.QoS.SuccessRate(),
		AvgLatency:  c.Record.QoS.AvgLatency,
		Samples:     c.Record.QoS.Samples(),
	}
}
