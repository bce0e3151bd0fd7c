package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aegisframework/aegis/types"
)

// entry wraps a record with its own mutex so that outcome recording for one
// resource never serializes behind outcome recording for another. The store
// lock protects map membership; the entry lock protects the record's fields.
type entry struct {
	mu  sync.Mutex
	rec *types.ResourceRecord
}

// clone snapshots the record under the entry lock.
func (e *entry) clone() *types.ResourceRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.Clone()
}

// Store is the in-memory resource record store with a capability index.
type Store struct {
	mu sync.RWMutex

	// records is the primary index: resource id -> entry.
	records map[string]*entry

	// capIndex maps capability token -> set of resource ids advertising it.
	// Inactive records stay indexed; discovery filters on Active so that
	// reactivation needs no index rebuild.
	capIndex map[string]map[string]struct{}

	closed bool

	logger *zap.Logger
}

// NewStore creates an empty store.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		records:  make(map[string]*entry),
		capIndex: make(map[string]map[string]struct{}),
		logger:   logger.With(zap.String("component", "registry_store")),
	}
}

// Register admits a record into the store. The input is cloned; the caller's
// copy is never retained. An empty id is assigned a fresh UUID.
//
// Re-registration of an existing id with the same endpoint is treated as an
// update: capabilities, name, owner, schema, and manifest are replaced while
// QoS history, usage count, and the original registration time survive.
// Active and LastTestedAt follow the incoming record, so a failed admission
// probe deactivates an updated resource the same way it does a new one.
// Re-registration with a different endpoint is rejected with DUPLICATE_ID.
func (s *Store) Register(rec *types.ResourceRecord) (*types.RegistrationResult, error) {
	if rec == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "record is nil")
	}
	if err := validateCapabilities(rec.Capabilities); err != nil {
		return nil, err
	}
	if rec.Endpoint == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "endpoint is required")
	}

	in := rec.Clone()
	if in.ID == "" {
		in.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, types.NewError(types.ErrStoreClosed, "store is closed")
	}

	now := time.Now()

	if existing, ok := s.records[in.ID]; ok {
		existing.mu.Lock()
		old := existing.rec
		if old.Endpoint != in.Endpoint {
			existing.mu.Unlock()
			return nil, types.NewError(types.ErrDuplicateID, "id already registered with a different endpoint").
				WithResourceID(in.ID)
		}

		// Update in place, preserving observed history. Visibility is the
		// caller's: it just probed the endpoint.
		in.QoS = old.QoS
		in.UsageCount = old.UsageCount
		in.RegisteredAt = old.RegisteredAt

		s.unindexLocked(in.ID, old.Capabilities)
		existing.rec = in
		existing.mu.Unlock()
		s.indexLocked(in.ID, in.Capabilities)

		s.logger.Info("resource updated",
			zap.String("resource_id", in.ID),
			zap.Int("capabilities", len(in.Capabilities)),
		)

		status := types.RegistrationPending
		if in.Active {
			status = types.RegistrationActive
		}
		return &types.RegistrationResult{ID: in.ID, Status: status, Updated: true}, nil
	}

	in.RegisteredAt = now
	in.QoS = types.QoSProfile{}
	in.UsageCount = 0

	s.records[in.ID] = &entry{rec: in}
	s.indexLocked(in.ID, in.Capabilities)

	s.logger.Info("resource registered",
		zap.String("resource_id", in.ID),
		zap.String("owner", in.Owner),
		zap.Int("capabilities", len(in.Capabilities)),
	)

	status := types.RegistrationPending
	if in.Active {
		status = types.RegistrationActive
	}
	return &types.RegistrationResult{ID: in.ID, Status: status}, nil
}

// Get returns a snapshot of the record, active or not.
func (s *Store) Get(id string) (*types.ResourceRecord, error) {
	s.mu.RLock()
	e, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return nil, types.NewError(types.ErrNotFound, "resource not found").WithResourceID(id)
	}
	return e.clone(), nil
}

// List returns snapshots of every record, including inactive ones.
func (s *Store) List() []*types.ResourceRecord {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.records))
	for _, e := range s.records {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]*types.ResourceRecord, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.clone())
	}
	return out
}

// Remove deletes the record and its index entries.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.records[id]
	if !ok {
		return types.NewError(types.ErrNotFound, "resource not found").WithResourceID(id)
	}
	e.mu.Lock()
	caps := e.rec.Capabilities
	e.mu.Unlock()

	s.unindexLocked(id, caps)
	delete(s.records, id)

	s.logger.Info("resource removed", zap.String("resource_id", id))
	return nil
}

// SetActive flips the discovery visibility of a record. The capability index
// is untouched; discovery filters on the flag.
func (s *Store) SetActive(id string, active bool) error {
	s.mu.RLock()
	e, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return types.NewError(types.ErrNotFound, "resource not found").WithResourceID(id)
	}

	e.mu.Lock()
	e.rec.Active = active
	e.mu.Unlock()

	s.logger.Info("resource visibility changed",
		zap.String("resource_id", id),
		zap.Bool("active", active),
	)
	return nil
}

// Mutate applies fn to the live record under its entry lock. Used by the QoS
// tracker and the health checker; fn must not block.
func (s *Store) Mutate(id string, fn func(*types.ResourceRecord)) error {
	s.mu.RLock()
	e, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return types.NewError(types.ErrNotFound, "resource not found").WithResourceID(id)
	}

	e.mu.Lock()
	fn(e.rec)
	e.mu.Unlock()
	return nil
}

// CandidatesFor returns snapshots of the active records advertising every
// token in tokens. The intersection starts from the smallest capability
// bucket so a rare token prunes the candidate set early.
func (s *Store) CandidatesFor(tokens []string) []*types.ResourceRecord {
	if len(tokens) == 0 {
		return nil
	}

	s.mu.RLock()
	smallest := -1
	for i, tok := range tokens {
		bucket, ok := s.capIndex[tok]
		if !ok {
			s.mu.RUnlock()
			return nil
		}
		if smallest == -1 || len(bucket) < len(s.capIndex[tokens[smallest]]) {
			smallest = i
		}
	}

	var entries []*entry
	for id := range s.capIndex[tokens[smallest]] {
		member := true
		for i, tok := range tokens {
			if i == smallest {
				continue
			}
			if _, ok := s.capIndex[tok][id]; !ok {
				member = false
				break
			}
		}
		if member {
			entries = append(entries, s.records[id])
		}
	}
	s.mu.RUnlock()

	out := make([]*types.ResourceRecord, 0, len(entries))
	for _, e := range entries {
		rec := e.clone()
		if rec.Active {
			out = append(out, rec)
		}
	}
	return out
}

// Count returns the total and active record counts.
func (s *Store) Count() (total, active int) {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.records))
	for _, e := range s.records {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	total = len(entries)
	for _, e := range entries {
		e.mu.Lock()
		if e.rec.Active {
			active++
		}
		e.mu.Unlock()
	}
	return total, active
}

// Close marks the store closed. Reads keep working for draining; new
// registrations are rejected with STORE_CLOSED.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// indexLocked and unindexLocked require s.mu held for writing.
func (s *Store) indexLocked(id string, capabilities []string) {
	for _, tok := range capabilities {
		bucket, ok := s.capIndex[tok]
		if !ok {
			bucket = make(map[string]struct{})
			s.capIndex[tok] = bucket
		}
		bucket[id] = struct{}{}
	}
}

func (s *Store) unindexLocked(id string, capabilities []string) {
	for _, tok := range capabilities {
		bucket, ok := s.capIndex[tok]
		if !ok {
			continue
		}
		delete(bucket, id)
		if len(bucket) == 0 {
			delete(s.capIndex, tok)
		}
	}
}

func validateCapabilities(capabilities []string) error {
	if len(capabilities) == 0 {
		return types.NewError(types.ErrInvalidCapabilities, "capabilities must be non-empty")
	}
	seen := make(map[string]struct{}, len(capabilities))
	for _, tok := range capabilities {
		if tok == "" {
			return types.NewError(types.ErrInvalidCapabilities, "capability token must be non-empty")
		}
		if _, dup := seen[tok]; dup {
			return types.NewError(types.ErrInvalidCapabilities, "duplicate capability token: "+tok)
		}
		seen[tok] = struct{}{}
	}
	return nil
}
