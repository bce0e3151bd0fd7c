package types

import (
	"sync"
	"time"
)

// HistoryEntry is one turn of the conversation history.
type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
}

// ExecutionRecord summarizes one completed request for the task history.
type ExecutionRecord struct {
	RequestID string       `json:"request_id"`
	Request   string       `json:"request"`
	State     RequestState `json:"state"`
	Tasks     []*Task      `json:"tasks"`
	Timestamp time.Time    `json:"timestamp"`
}

// Session is the per-session orchestration context owned exclusively by the
// Principal. It is created per user session and reused across that session's
// requests; the embedded mutex serializes mutation so concurrent requests on
// the same session cannot corrupt it.
type Session struct {
	mu sync.Mutex

	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// ConversationHistory is append-only.
	ConversationHistory []HistoryEntry `json:"conversation_history"`

	// UserPreferences is last-write-wins.
	UserPreferences map[string]string `json:"user_preferences"`

	// TaskHistory is append-only.
	TaskHistory []ExecutionRecord `json:"task_history"`

	// MemoryBank is opaque to the core; the reasoning collaborator reads
	// and writes it.
	MemoryBank Document `json:"memory_bank"`
}

// NewSession creates an empty session context.
func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:              id,
		CreatedAt:       now,
		UpdatedAt:       now,
		UserPreferences: make(map[string]string),
		MemoryBank:      make(Document),
	}
}

// AppendConversation records a conversation turn.
func (s *Session) AppendConversation(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ConversationHistory = append(s.ConversationHistory, HistoryEntry{
		Timestamp: time.Now(),
		Role:      role,
		Content:   content,
	})
	s.UpdatedAt = time.Now()
}

// AppendExecution records a completed request.
func (s *Session) AppendExecution(rec ExecutionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TaskHistory = append(s.TaskHistory, rec)
	s.UpdatedAt = time.Now()
}

// SetPreference stores a user preference, overwriting any previous value.
func (s *Session) SetPreference(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UserPreferences[key] = value
	s.UpdatedAt = time.Now()
}

// Preference returns a user preference.
func (s *Session) Preference(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.UserPreferences[key]
	return v, ok
}

// Snapshot returns a copy of the session safe to serialize while the
// session keeps receiving writes.
func (s *Session) Snapshot() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := &Session{
		ID:                  s.ID,
		CreatedAt:           s.CreatedAt,
		UpdatedAt:           s.UpdatedAt,
		ConversationHistory: append([]HistoryEntry(nil), s.ConversationHistory...),
		TaskHistory:         append([]ExecutionRecord(nil), s.TaskHistory...),
		UserPreferences:     make(map[string]string, len(s.UserPreferences)),
		MemoryBank:          s.MemoryBank.Clone(),
	}
	for k, v := range s.UserPreferences {
		out.UserPreferences[k] = v
	}
	return out
}
