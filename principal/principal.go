package principal

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aegisframework/aegis/config"
	"github.com/aegisframework/aegis/gateway/discovery"
	"github.com/aegisframework/aegis/internal/metrics"
	"github.com/aegisframework/aegis/persistence"
	"github.com/aegisframework/aegis/types"
)

// Gateway is the slice of the gateway role the principal consumes. The
// in-process *gateway.Service satisfies it; a remote client would too.
type Gateway interface {
	Discover(ctx context.Context, requirements []string, limit int) (*discovery.Result, error)
	ReportOutcome(ctx context.Context, id string, success bool, latency time.Duration)
}

// rankedCandidate pairs a discovered record with the gateway that produced
// it, so outcome reports land on the right registry.
type rankedCandidate struct {
	record *types.ResourceRecord
	score  float64
	origin Gateway
}

// discoveryOutcome is what one requirement set resolves to.
type discoveryOutcome struct {
	candidates []rankedCandidate
	advisory   []string
}

// Principal runs the orchestration loop.
type Principal struct {
	name       string
	mode       types.OperationMode
	timeout    time.Duration
	maxRetries int
	failFast   bool

	gateways   []Gateway
	invoker    Invoker
	decomposer Decomposer
	cache      *discoveryCache

	sessMu   sync.Mutex
	sessions map[string]*types.Session

	sessionStore persistence.SessionStore
	collector    *metrics.Collector
	logger       *zap.Logger
}

// PrincipalOption configures optional collaborators.
type PrincipalOption func(*Principal)

// WithPlanner supplies the autonomous planner used by agent and hybrid modes.
func WithPlanner(p Planner) PrincipalOption {
	return func(pr *Principal) {
		pr.decomposer.(*modalDecomposer).planner = p
	}
}

// WithConfirmer supplies the human confirmation hook for assisted mode.
func WithConfirmer(c Confirmer) PrincipalOption {
	return func(pr *Principal) {
		pr.decomposer.(*modalDecomposer).confirmer = c
	}
}

// WithSessionStore persists session snapshots after each request.
func WithSessionStore(s persistence.SessionStore) PrincipalOption {
	return func(pr *Principal) { pr.sessionStore = s }
}

// WithCollector wires the Prometheus collector.
func WithCollector(c *metrics.Collector) PrincipalOption {
	return func(pr *Principal) { pr.collector = c }
}

// NewPrincipal builds a principal over one or more gateways.
func NewPrincipal(cfg config.PrincipalConfig, gateways []Gateway, invoker Invoker, logger *zap.Logger, opts ...PrincipalOption) *Principal {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("principal", cfg.Name))

	p := &Principal{
		name:       cfg.Name,
		mode:       types.OperationMode(cfg.Mode),
		timeout:    delegationTimeout(cfg.DelegationTimeout),
		maxRetries: cfg.MaxRetries,
		failFast:   cfg.OnNoResource != "skip",
		gateways:   gateways,
		invoker:    invoker,
		decomposer: &modalDecomposer{
			mode:   types.OperationMode(cfg.Mode),
			rules:  NewRuleBasedDecomposer(logger),
			logger: logger,
		},
		cache:    newDiscoveryCache(cfg.Cache.TTL, cfg.Cache.Capacity),
		sessions: make(map[string]*types.Session),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Session returns the live session for id, creating it if needed. When a
// session store is configured, a miss is first looked up there.
func (p *Principal) Session(ctx context.Context, id string) *types.Session {
	p.sessMu.Lock()
	defer p.sessMu.Unlock()

	if sess, ok := p.sessions[id]; ok {
		return sess
	}
	if p.sessionStore != nil {
		if sess, err := p.sessionStore.LoadSession(ctx, id); err == nil {
			p.sessions[id] = sess
			return sess
		}
	}
	sess := types.NewSession(id)
	p.sessions[id] = sess
	return sess
}

// EndSession drops the session from memory and, if configured, from the
// session store.
func (p *Principal) EndSession(ctx context.Context, id string) {
	p.sessMu.Lock()
	delete(p.sessions, id)
	p.sessMu.Unlock()

	if p.sessionStore != nil {
		if err := p.sessionStore.DeleteSession(ctx, id); err != nil {
			p.logger.Warn("session delete failed", zap.String("session_id", id), zap.Error(err))
		}
	}
}

// Process runs one request through the orchestration loop: decompose,
// discover, delegate with retries, aggregate. Structural failures (invalid
// request, decomposition) return an error; task-level failures are carried
// in the response.
func (p *Principal) Process(ctx context.Context, req *Request) (*types.Response, error) {
	if req == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "request is nil")
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	started := time.Now()

	sess := p.Session(ctx, req.SessionID)
	if req.Description != "" {
		sess.AppendConversation("user", req.Description)
	}

	specs, err := p.decomposer.Decompose(ctx, req, sess)
	if err != nil {
		p.logger.Warn("decomposition failed",
			zap.String("request_id", req.ID),
			zap.Error(err),
		)
		return nil, err
	}
	tasks := buildTasks(specs)

	p.logger.Info("request decomposed",
		zap.String("request_id", req.ID),
		zap.String("session_id", req.SessionID),
		zap.Int("tasks", len(tasks)),
	)

	state := types.StateCompleted
	for _, task := range tasks {
		if err := p.runTask(ctx, task); err != nil {
			// runTask returns an error only for the fail-fast policy.
			state = types.StateFailed
			break
		}
	}

	completed := 0
	for _, task := range tasks {
		if task.Status == types.TaskCompleted {
			completed++
		}
		if task.Status == types.TaskFailed {
			state = types.StateFailed
		}
	}

	resp := &types.Response{
		RequestID: req.ID,
		SessionID: req.SessionID,
		State:     state,
		Tasks:     tasks,
		Partial:   completed > 0 && completed < len(tasks),
		Mode:      p.mode,
		StartedAt: started,
		Duration:  time.Since(started),
	}

	sess.AppendExecution(types.ExecutionRecord{
		RequestID: req.ID,
		Request:   req.Description,
		State:     resp.State,
		Tasks:     tasks,
		Timestamp: time.Now(),
	})
	p.saveSession(ctx, sess)

	p.logger.Info("request finished",
		zap.String("request_id", req.ID),
		zap.String("state", string(resp.State)),
		zap.Int("completed", completed),
		zap.Int("tasks", len(tasks)),
		zap.Duration("duration", resp.Duration),
	)
	return resp, nil
}

// runTask discovers, delegates, and retries one task. A non-nil error means
// the whole request must stop (fail-fast on no candidates).
func (p *Principal) runTask(ctx context.Context, task *types.Task) error {
	key := cacheKey(task.Requirements)
	outcome, hit, err := p.cache.getOrFetch(key, func() (*discoveryOutcome, error) {
		// The fetch is shared by every caller collapsed onto this key, so
		// it must not die with the first caller's context. Request-scoped
		// values survive; cancellation does not, and the deadline is the
		// fetch's own.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()
		return p.discover(fetchCtx, task.Requirements)
	})
	if p.collector != nil {
		if hit {
			p.collector.RecordCacheHit("discovery")
		} else {
			p.collector.RecordCacheMiss("discovery")
		}
	}
	if err != nil {
		task.Status = types.TaskFailed
		task.CompletedAt = time.Now()
		if e, ok := err.(*types.Error); ok {
			task.Err = e
		} else {
			task.Err = types.NewError(types.ErrInternal, "discovery failed").WithCause(err)
		}
		if p.failFast {
			return task.Err
		}
		return nil
	}

	if len(outcome.candidates) == 0 {
		task.Status = types.TaskFailed
		task.CompletedAt = time.Now()
		task.Err = types.NewError(types.ErrNoResourceAvailable, "no resource satisfies requirements")
		// A cached empty result would pin the failure for the TTL.
		p.cache.invalidate(key)
		if p.failFast {
			return task.Err
		}
		return nil
	}

	payload := task.Payload
	if len(outcome.advisory) > 0 {
		payload = payload.Clone()
		if payload == nil {
			payload = types.Document{}
		}
		payload["qualifiers"] = outcome.advisory
		task.Payload = payload
	}

	// Walk the ranking: first candidate, then retries down the list.
	attempts := p.maxRetries + 1
	if attempts > len(outcome.candidates) {
		attempts = len(outcome.candidates)
	}
	for i := 0; i < attempts; i++ {
		cand := outcome.candidates[i]
		task.Status = types.TaskDispatched
		task.AssignedResourceID = cand.record.ID
		task.Attempts++

		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		start := time.Now()
		result, err := p.invoker.Invoke(callCtx, cand.record.Endpoint, task)
		latency := time.Since(start)
		cancel()

		// Exactly one outcome report per attempt.
		cand.origin.ReportOutcome(ctx, cand.record.ID, err == nil, latency)

		if err == nil {
			task.Status = types.TaskCompleted
			task.Result = result
			task.Err = nil
			task.CompletedAt = time.Now()
			return nil
		}

		if e, ok := err.(*types.Error); ok {
			task.Err = e.WithResourceID(cand.record.ID)
		} else {
			task.Err = types.NewError(types.ErrRemote, "delegation failed").
				WithCause(err).WithResourceID(cand.record.ID)
		}
		p.logger.Warn("delegation attempt failed",
			zap.String("task_id", task.ID),
			zap.String("resource_id", cand.record.ID),
			zap.Int("attempt", task.Attempts),
			zap.Error(err),
		)
	}

	task.Status = types.TaskFailed
	task.CompletedAt = time.Now()
	return nil
}

// discover fans the query out to every gateway and merges the rankings.
// Per-gateway failures are tolerated as long as one gateway answers.
func (p *Principal) discover(ctx context.Context, requirements []string) (*discoveryOutcome, error) {
	if len(p.gateways) == 0 {
		return nil, types.NewError(types.ErrNoResourceAvailable, "no gateways configured")
	}

	var (
		mu       sync.Mutex
		merged   = make(map[string]rankedCandidate)
		advisory []string
		answered bool
		firstErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, gw := range p.gateways {
		gw := gw
		g.Go(func() error {
			res, err := gw.Discover(gctx, requirements, 0)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return nil
			}
			answered = true
			for _, c := range res.Candidates {
				// The same resource registered at several gateways keeps
				// its best score.
				if prev, ok := merged[c.Record.ID]; !ok || c.Score > prev.score {
					merged[c.Record.ID] = rankedCandidate{record: c.Record, score: c.Score, origin: gw}
				}
			}
			if advisory == nil && len(res.Advisory) > 0 {
				advisory = res.Advisory
			}
			return nil
		})
	}
	_ = g.Wait()

	if !answered {
		if firstErr != nil {
			return nil, firstErr
		}
		return nil, types.NewError(types.ErrNoResourceAvailable, "all gateways unavailable")
	}

	candidates := make([]rankedCandidate, 0, len(merged))
	for _, c := range merged {
		candidates = append(candidates, c)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].record.ID < candidates[j].record.ID
	})

	return &discoveryOutcome{candidates: candidates, advisory: advisory}, nil
}

func (p *Principal) saveSession(ctx context.Context, sess *types.Session) {
	if p.sessionStore == nil {
		return
	}
	if err := p.sessionStore.SaveSession(ctx, sess.Snapshot()); err != nil {
		p.logger.Warn("session save failed",
			zap.String("session_id", sess.ID),
			zap.Error(err),
		)
	}
}
