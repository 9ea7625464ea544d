package memory

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/dexter/core"
)

// ErrNotFound is returned by Delete for unknown memory ids.
var ErrNotFound = errors.New("memory not found")

// StoredMemory is the internal representation persisted by InMemoryStore.
// It mirrors the core.SearchResult shape (ID, content, metadata) without a
// score field since scoring is trivial here.
type StoredMemory struct {
	ID       string
	Content  string
	Metadata map[string]any
	Created  time.Time
}

// InMemoryStore is a naive process‑local long-term memory. Memories are kept
// in insertion order so the rendered system prompt is stable between calls.
//
// Concurrency: protected by RWMutex.
// Search: linear scan with case-insensitive substring matching assigning a
// constant score of 1.0 to every hit. Swap for a vector index for real
// retrieval.
type InMemoryStore struct {
	mu       sync.RWMutex
	memories []StoredMemory
}

// NewInMemoryStore creates a new in-memory memory store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Store appends a new memory and returns its generated id.
func (m *InMemoryStore) Store(content string, metadata map[string]any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	md := make(map[string]any, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	id := uuid.NewString()
	m.memories = append(m.memories, StoredMemory{ID: id, Content: content, Metadata: md, Created: time.Now()})
	return id, nil
}

// Search returns up to limit memories containing query (all memories for an
// empty query), oldest first. A non-positive limit means no limit.
func (m *InMemoryStore) Search(query string, limit int) ([]core.SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q := strings.ToLower(query)
	results := make([]core.SearchResult, 0, len(m.memories))
	for _, stored := range m.memories {
		if limit > 0 && len(results) >= limit {
			break
		}
		if q != "" && !strings.Contains(strings.ToLower(stored.Content), q) {
			continue
		}
		md := make(map[string]any, len(stored.Metadata))
		for k, v := range stored.Metadata {
			md[k] = v
		}
		results = append(results, core.SearchResult{ID: stored.ID, Content: stored.Content, Score: 1.0, Metadata: md})
	}
	return results, nil
}

// Delete removes a stored memory entry by id.
func (m *InMemoryStore) Delete(memoryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, stored := range m.memories {
		if stored.ID == memoryID {
			m.memories = append(m.memories[:i], m.memories[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// Len returns the number of stored memories.
func (m *InMemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.memories)
}
