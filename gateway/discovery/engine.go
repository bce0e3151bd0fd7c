// Package discovery matches capability requirements against the registry and
// ranks the survivors by observed quality of service.
package discovery

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/aegisframework/aegis/gateway/qos"
	"github.com/aegisframework/aegis/gateway/registry"
	"github.com/aegisframework/aegis/types"
)

// QualifierMode pins the semantics of key:value requirement tokens.
type QualifierMode string

const (
	// QualifierExact treats qualifier tokens as ordinary capability tokens:
	// they participate in the index intersection verbatim, so a resource
	// matches only if it advertises the exact token.
	QualifierExact QualifierMode = "exact"

	// QualifierAdvisory strips qualifier tokens before the intersection and
	// reports them back so the caller can forward them on the task payload.
	QualifierAdvisory QualifierMode = "advisory"
)

// Engine answers capability queries.
type Engine struct {
	store   *registry.Store
	tracker *qos.Tracker
	mode    QualifierMode
	logger  *zap.Logger
}

// NewEngine creates a discovery engine over the given store and tracker.
func NewEngine(store *registry.Store, tracker *qos.Tracker, mode QualifierMode, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mode == "" {
		mode = QualifierExact
	}
	return &Engine{
		store:   store,
		tracker: tracker,
		mode:    mode,
		logger:  logger.With(zap.String("component", "discovery_engine")),
	}
}

// Result is the outcome of one query.
type Result struct {
	// Candidates is ordered by score descending, ties broken by id ascending
	// so equal-scored results are deterministic.
	Candidates []types.Candidate

	// Advisory holds the qualifier tokens excluded from matching when the
	// engine runs in advisory mode. Empty in exact mode.
	Advisory []string
}

// Query returns the active resources satisfying every requirement token,
// ranked by composite score. limit <= 0 returns all matches. An empty match
// is a valid result, not an error; callers decide the no-candidate policy.
func (e *Engine) Query(requirements []string, limit int) (*Result, error) {
	if len(requirements) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "requirements must be non-empty")
	}
	for _, tok := range requirements {
		if tok == "" {
			return nil, types.NewError(types.ErrInvalidRequest, "requirement token must be non-empty")
		}
	}

	tokens := requirements
	var advisory []string
	if e.mode == QualifierAdvisory {
		tokens, advisory = splitQualifiers(requirements)
		if len(tokens) == 0 {
			// Requirements were qualifiers only; nothing to intersect on.
			return nil, types.NewError(types.ErrInvalidRequest, "requirements contain no capability tokens")
		}
	}

	records := e.store.CandidatesFor(tokens)

	candidates := make([]types.Candidate, 0, len(records))
	for _, rec := range records {
		candidates = append(candidates, types.Candidate{
			Record: rec,
			Score:  e.tracker.Score(rec.QoS),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Record.ID < candidates[j].Record.ID
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	e.logger.Debug("query resolved",
		zap.Strings("requirements", requirements),
		zap.Int("matches", len(candidates)),
	)

	return &Result{Candidates: candidates, Advisory: advisory}, nil
}

// splitQualifiers separates plain capability tokens from key:value
// qualifiers. A token qualifies if it contains a colon with text on both
// sides; the value may itself contain colons.
func splitQualifiers(requirements []string) (tokens, qualifiers []string) {
	for _, tok := range requirements {
		if i := strings.Index(tok, ":"); i > 0 && i < len(tok)-1 {
			qualifiers = append(qualifiers, tok)
		} else {
			tokens = append(tokens, tok)
		}
	}
	return tokens, qualifiers
}
