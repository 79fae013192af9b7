// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu        sync.RWMutex
	sessions  map[string]*Session // keyed by session ID
	feedback  []*Feedback
	resources []*Resource

	// UpsertCalls counts UpsertThreadID invocations so tests can assert write counts
	UpsertCalls int

	// PingErr, when set, is returned by Ping
	PingErr error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		sessions: make(map[string]*Session),
	}
}

// CreateSession stores a new session.
func (m *MockStore) CreateSession(ctx context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[session.ID]; exists {
		return ErrDuplicateSession
	}

	// Make a copy to avoid external modification
	s := *session
	m.sessions[s.ID] = &s
	return nil
}

// GetSession retrieves a session by ID.
func (m *MockStore) GetSession(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}

	// Return a copy
	result := *s
	return &result, nil
}

// UpsertThreadID mirrors the SQLite COALESCE semantics: the first binding wins.
func (m *MockStore) UpsertThreadID(ctx context.Context, sessionID, threadID, displayName string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.UpsertCalls++
	now := time.Now().UTC()

	s, ok := m.sessions[sessionID]
	if !ok {
		s = &Session{
			ID:          sessionID,
			DisplayName: displayName,
			CreatedAt:   now,
		}
		m.sessions[sessionID] = s
	}
	if s.ThreadID == "" {
		s.ThreadID = threadID
	}
	s.UpdatedAt = now

	result := *s
	return &result, nil
}

// ListSessions returns sessions ordered by UpdatedAt descending.
func (m *MockStore) ListSessions(ctx context.Context, limit int) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		c := *s
		sessions = append(sessions, &c)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	if len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

// RenameSession updates a session's display name.
func (m *MockStore) RenameSession(ctx context.Context, id, displayName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.DisplayName = displayName
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// DeleteSession removes a session.
func (m *MockStore) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}

// SaveFeedback appends a feedback row.
func (m *MockStore) SaveFeedback(ctx context.Context, fb *Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *fb
	m.feedback = append(m.feedback, &c)
	return nil
}

// ListFeedback returns feedback newest first.
func (m *MockStore) ListFeedback(ctx context.Context, sessionID string, limit int) ([]*Feedback, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	var out []*Feedback
	for i := len(m.feedback) - 1; i >= 0 && len(out) < limit; i-- {
		fb := m.feedback[i]
		if sessionID != "" && fb.SessionID != sessionID {
			continue
		}
		c := *fb
		out = append(out, &c)
	}
	return out, nil
}

// CreateResource appends a resource.
func (m *MockStore) CreateResource(ctx context.Context, res *Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *res
	m.resources = append(m.resources, &c)
	return nil
}

// ListResources filters resources by category and location, newest first.
func (m *MockStore) ListResources(ctx context.Context, filter ResourceFilter) ([]*Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var out []*Resource
	for _, res := range m.resources {
		if filter.Category != "" && res.Category != filter.Category {
			continue
		}
		if filter.Location != "" && res.LocationTag != filter.Location {
			continue
		}
		c := *res
		out = append(out, &c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Ping returns PingErr.
func (m *MockStore) Ping(ctx context.Context) error {
	return m.PingErr
}

// Close is a no-op for MockStore.
func (m *MockStore) Close() error {
	return nil
}

// Ensure MockStore implements Store
var _ Store = (*MockStore)(nil)
