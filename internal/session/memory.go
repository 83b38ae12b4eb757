package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps sessions in-process. Useful for local development and
// tests; sessions are lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) Create(ctx context.Context) (*Session, error) {
	now := time.Now().UTC()
	sess := &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []Message{},
	}
	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()
	return copySession(sess), nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, &ErrSessionNotFound{ID: id}
	}
	return copySession(sess), nil
}

func (m *MemoryStore) List(ctx context.Context, limit int) ([]Summary, error) {
	m.mu.RLock()
	summaries := make([]Summary, 0, len(m.sessions))
	for _, sess := range m.sessions {
		summaries = append(summaries, sess.Summarize())
	}
	m.mu.RUnlock()

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) AddMessage(ctx context.Context, id string, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return &ErrSessionNotFound{ID: id}
	}
	sess.Messages = append(sess.Messages, msg)
	sess.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) UpdateTitle(ctx context.Context, id string, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return &ErrSessionNotFound{ID: id}
	}
	sess.Title = title
	sess.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) AddTokens(ctx context.Context, id string, tokens int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return &ErrSessionNotFound{ID: id}
	}
	sess.TotalTokens += tokens
	sess.UpdatedAt = time.Now().UTC()
	return nil
}

// copySession returns a deep-enough copy so callers can't mutate stored state.
func copySession(s *Session) *Session {
	cp := *s
	cp.Messages = make([]Message, len(s.Messages))
	copy(cp.Messages, s.Messages)
	return &cp
}
