package gateway

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aegisframework/aegis/config"
	"github.com/aegisframework/aegis/gateway/discovery"
	"github.com/aegisframework/aegis/gateway/qos"
	"github.com/aegisframework/aegis/gateway/registry"
	"github.com/aegisframework/aegis/internal/metrics"
	"github.com/aegisframework/aegis/persistence"
	"github.com/aegisframework/aegis/types"
)

// Service is the Gateway role. All mutations flow through it so that
// persistence write-through, events, and metrics stay consistent with the
// in-memory registry.
type Service struct {
	name    string
	store   *registry.Store
	tracker *qos.Tracker
	engine  *discovery.Engine
	checker *discovery.HealthChecker
	sweep   *discovery.Revalidator

	// persist is the optional durable mirror. Write-through failures are
	// logged, never surfaced: the in-memory registry is authoritative.
	persist persistence.RegistryStore

	collector *metrics.Collector
	events    *eventBus
	logger    *zap.Logger

	statsMu         sync.Mutex
	totalQueries    int64
	totalMatches    int64
	totalSearchTime time.Duration
}

// Option configures optional service collaborators.
type Option func(*Service)

// WithPersistence mirrors registry mutations to a durable store.
func WithPersistence(store persistence.RegistryStore) Option {
	return func(s *Service) { s.persist = store }
}

// WithMetrics wires the Prometheus collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Service) { s.collector = c }
}

// NewService builds a gateway from configuration.
func NewService(cfg config.GatewayConfig, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("gateway", cfg.Name))

	store := registry.NewStore(logger)
	tracker := qos.NewTracker(store, cfg.QoSAlpha, cfg.ReferenceLatency, logger)
	engine := discovery.NewEngine(store, tracker, discovery.QualifierMode(cfg.QualifierMode), logger)
	checker := discovery.NewHealthChecker(cfg.HealthCheckTimeout, logger)

	s := &Service{
		name:    cfg.Name,
		store:   store,
		tracker: tracker,
		engine:  engine,
		checker: checker,
		sweep:   discovery.NewRevalidator(store, checker, cfg.RevalidateInterval, logger),
		events:  newEventBus(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start restores persisted records and launches the revalidation sweep.
func (s *Service) Start(ctx context.Context) error {
	if s.persist != nil {
		records, err := s.persist.LoadRecords(ctx)
		if err != nil {
			return err
		}
		for _, rec := range records {
			if _, err := s.store.Register(rec); err != nil {
				s.logger.Warn("skipping unrestorable record",
					zap.String("resource_id", rec.ID),
					zap.Error(err),
				)
				continue
			}
			// Register resets history; put the persisted profile back.
			_ = s.store.Mutate(rec.ID, func(live *types.ResourceRecord) {
				live.QoS = rec.QoS
				live.UsageCount = rec.UsageCount
				live.Active = rec.Active
				live.RegisteredAt = rec.RegisteredAt
				live.LastTestedAt = rec.LastTestedAt
			})
		}
		s.logger.Info("registry restored", zap.Int("records", len(records)))
	}

	s.sweep.Start(ctx)
	s.refreshGauges()
	s.logger.Info("gateway started")
	return nil
}

// Stop halts background work and closes the store to new registrations.
func (s *Service) Stop() {
	s.sweep.Stop()
	s.store.Close()
	s.logger.Info("gateway stopped")
}

// RegisterResource validates and admits a resource. A failing health probe
// never rejects: the record, whether new or an update of an existing id, is
// stored inactive and the revalidation sweep will pick it up.
func (s *Service) RegisterResource(ctx context.Context, rec *types.ResourceRecord) (*types.RegistrationResult, error) {
	if rec == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "record is nil")
	}

	in := rec.Clone()
	in.Active = true
	if err := s.checker.Check(ctx, in.Endpoint); err != nil {
		s.logger.Warn("registration health probe failed, storing resource inactive",
			zap.String("resource_id", in.ID),
			zap.Error(err),
		)
		in.Active = false
	}
	in.LastTestedAt = time.Now()

	result, err := s.store.Register(in)
	if err != nil {
		s.recordRegistration("rejected")
		return nil, err
	}

	evType := EventResourceRegistered
	regStatus := string(result.Status)
	if result.Updated {
		evType = EventResourceUpdated
		regStatus = "updated"
	}
	s.recordRegistration(regStatus)
	s.events.emit(Event{Type: evType, ResourceID: result.ID, Timestamp: time.Now()})
	s.writeThrough(ctx, result.ID)
	s.refreshGauges()

	return result, nil
}

// DeactivateResource hides a resource from discovery without losing its
// history.
func (s *Service) DeactivateResource(ctx context.Context, id string) error {
	if err := s.store.SetActive(id, false); err != nil {
		return err
	}
	s.events.emit(Event{Type: EventResourceDeactivated, ResourceID: id, Timestamp: time.Now()})
	s.writeThrough(ctx, id)
	s.refreshGauges()
	return nil
}

// ActivateResource restores discovery visibility.
func (s *Service) ActivateResource(ctx context.Context, id string) error {
	if err := s.store.SetActive(id, true); err != nil {
		return err
	}
	s.events.emit(Event{Type: EventResourceActivated, ResourceID: id, Timestamp: time.Now()})
	s.writeThrough(ctx, id)
	s.refreshGauges()
	return nil
}

// RemoveResource deletes a resource entirely.
func (s *Service) RemoveResource(ctx context.Context, id string) error {
	if err := s.store.Remove(id); err != nil {
		return err
	}
	s.events.emit(Event{Type: EventResourceRemoved, ResourceID: id, Timestamp: time.Now()})
	if s.persist != nil {
		if err := s.persist.DeleteRecord(ctx, id); err != nil {
			s.logger.Error("persistence delete failed", zap.String("resource_id", id), zap.Error(err))
		}
	}
	s.refreshGauges()
	return nil
}

// QueryResources answers a capability query with ranked candidate summaries.
func (s *Service) QueryResources(ctx context.Context, requirements []string, limit int) ([]types.CandidateSummary, error) {
	start := time.Now()
	result, err := s.engine.Query(requirements, limit)
	elapsed := time.Since(start)

	if err != nil {
		if s.collector != nil {
			s.collector.RecordQuery("invalid", 0, elapsed)
		}
		return nil, err
	}

	s.statsMu.Lock()
	s.totalQueries++
	s.totalMatches += int64(len(result.Candidates))
	s.totalSearchTime += elapsed
	s.statsMu.Unlock()

	if s.collector != nil {
		outcome := "matched"
		if len(result.Candidates) == 0 {
			outcome = "empty"
		}
		s.collector.RecordQuery(outcome, len(result.Candidates), elapsed)
	}

	summaries := make([]types.CandidateSummary, 0, len(result.Candidates))
	for _, c := range result.Candidates {
		summaries = append(summaries, c.Summary())
	}
	return summaries, nil
}

// Discover is the full-record form of QueryResources used in-process by the
// principal, which needs endpoints and advisory qualifiers.
func (s *Service) Discover(ctx context.Context, requirements []string, limit int) (*discovery.Result, error) {
	start := time.Now()
	result, err := s.engine.Query(requirements, limit)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	s.statsMu.Lock()
	s.totalQueries++
	s.totalMatches += int64(len(result.Candidates))
	s.totalSearchTime += elapsed
	s.statsMu.Unlock()

	return result, nil
}

// ReportOutcome folds a delegation outcome into the resource's QoS profile.
// Reports for unknown resources are dropped silently.
func (s *Service) ReportOutcome(ctx context.Context, id string, success bool, latency time.Duration) {
	s.tracker.RecordOutcome(id, success, latency)
	if s.collector != nil {
		outcome := "failure"
		if success {
			outcome = "success"
		}
		s.collector.RecordDelegation(outcome, latency)
	}
	s.writeThrough(ctx, id)
}

// GetResource returns a record snapshot by id, active or not.
func (s *Service) GetResource(ctx context.Context, id string) (*types.ResourceRecord, error) {
	return s.store.Get(id)
}

// ListResources returns snapshots of every record.
func (s *Service) ListResources(ctx context.Context) []*types.ResourceRecord {
	return s.store.List()
}

// Subscribe registers an event handler, returning its subscription id.
func (s *Service) Subscribe(h EventHandler) string {
	return s.events.subscribe(h)
}

// Unsubscribe removes a handler.
func (s *Service) Unsubscribe(id string) {
	s.events.unsubscribe(id)
}

// Stats is the gateway's aggregate view.
type Stats struct {
	Name            string        `json:"name"`
	TotalResources  int           `json:"total_resources"`
	ActiveResources int           `json:"active_resources"`
	TotalQueries    int64         `json:"total_queries"`
	TotalMatches    int64         `json:"total_matches"`
	AvgSearchTime   time.Duration `json:"avg_search_time"`
}

// GetStats returns the aggregate metrics.
func (s *Service) GetStats() Stats {
	total, active := s.store.Count()

	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	var avg time.Duration
	if s.totalQueries > 0 {
		avg = s.totalSearchTime / time.Duration(s.totalQueries)
	}
	return Stats{
		Name:            s.name,
		TotalResources:  total,
		ActiveResources: active,
		TotalQueries:    s.totalQueries,
		TotalMatches:    s.totalMatches,
		AvgSearchTime:   avg,
	}
}

func (s *Service) writeThrough(ctx context.Context, id string) {
	if s.persist == nil {
		return
	}
	rec, err := s.store.Get(id)
	if err != nil {
		return
	}
	if err := s.persist.SaveRecord(ctx, rec); err != nil {
		s.logger.Error("persistence write-through failed",
			zap.String("resource_id", id),
			zap.Error(err),
		)
	}
}

func (s *Service) recordRegistration(status string) {
	if s.collector != nil {
		s.collector.RecordRegistration(status)
	}
}

func (s *Service) refreshGauges() {
	if s.collector == nil {
		return
	}
	total, active := s.store.Count()
	s.collector.SetResourceCounts(total, active)
}
