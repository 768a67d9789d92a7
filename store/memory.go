package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"content_draft_generator/generator"
)

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// Memory keeps sessions in process. Entries are stored serialized so callers
// never share a *Session with the store.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]memoryEntry
	ttl      time.Duration
	now      func() time.Time
}

// NewMemory creates an in-memory store; ttl <= 0 disables expiry.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		sessions: make(map[string]memoryEntry),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (m *Memory) Save(_ context.Context, sess *generator.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := memoryEntry{data: data}
	if m.ttl > 0 {
		entry.expires = m.now().Add(m.ttl)
	}
	m.sessions[sess.ID] = entry
	m.sweepLocked()
	return nil
}

func (m *Memory) Load(_ context.Context, id string) (*generator.Session, error) {
	m.mu.Lock()
	entry, ok := m.sessions[id]
	if ok && m.expired(entry) {
		delete(m.sessions, id)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	var sess generator.Session
	if err := json.Unmarshal(entry.data, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Len reports how many live sessions are held.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	return len(m.sessions)
}

func (m *Memory) expired(e memoryEntry) bool {
	return !e.expires.IsZero() && m.now().After(e.expires)
}

func (m *Memory) sweepLocked() {
	for id, e := range m.sessions {
		if m.expired(e) {
			delete(m.sessions, id)
		}
	}
}
