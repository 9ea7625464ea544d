package core

// MemoryStore persists long-term memory snippets and retrieves them for the
// system prompt. Implementations can back search with embeddings, keywords
// or any heuristic. Short method names align with other *Store interfaces.
type MemoryStore interface {
	Store(content string, metadata map[string]any) (string, error)
	Search(query string, limit int) ([]SearchResult, error)
	Delete(memoryID string) error
}
