package history

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/dexter/core"
	"github.com/hupe1980/dexter/logging"
)

// conversationIDLayout names conversation files after their creation time.
const conversationIDLayout = "20060102_150405"

// Options configures a Store.
type Options struct {
	// MemoryDir holds one <id>.json file per conversation.
	MemoryDir string
	// SessionsDir holds one <tag>.json file per session.
	SessionsDir string
	// Now supplies the clock used for conversation ids.
	Now func() time.Time
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// Store is the file-backed HistoryStore. It persists the active conversation
// and named sessions as JSON documents. Reads never fail: missing or
// malformed files are reported as empty data.
//
// A Store tracks one active conversation id. Methods are safe for concurrent
// use, although the engine drives it from a single writer.
type Store struct {
	memoryDir   string
	sessionsDir string
	now         func() time.Time
	logger      logging.Logger

	mu       sync.Mutex
	activeID string
}

// New creates a Store, creating both directories if needed.
func New(optFns ...func(o *Options)) (*Store, error) {
	opts := Options{
		MemoryDir:   "memory",
		SessionsDir: filepath.Join("memory", "sessions"),
		Now:         time.Now,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	for _, dir := range []string{opts.MemoryDir, opts.SessionsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history: create %s: %w", dir, err)
		}
	}
	return &Store{
		memoryDir:   opts.MemoryDir,
		sessionsDir: opts.SessionsDir,
		now:         opts.Now,
		logger:      opts.Logger,
	}, nil
}

// NewConversation allocates a timestamp-named conversation, persists the
// empty placeholder [{}] and makes it the active conversation.
func (s *Store) NewConversation() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newConversationLocked()
}

func (s *Store) newConversationLocked() (string, error) {
	base := s.now().Format(conversationIDLayout)
	id := base
	for n := 1; fileExists(s.conversationPath(id)); n++ {
		id = fmt.Sprintf("%s_%d", base, n)
	}
	if err := writeJSONAtomic(s.conversationPath(id), core.NewConversation()); err != nil {
		return "", err
	}
	s.activeID = id
	s.logger.Info("history.conversation.created", "conversation_id", id)
	return id, nil
}

// CurrentConversationID returns the active conversation id. Without one it
// selects the most recently modified persisted conversation, and if none
// exist it behaves like NewConversation.
func (s *Store) CurrentConversationID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeID != "" {
		return s.activeID, nil
	}
	ids := s.conversationIDsByRecency()
	if len(ids) == 0 {
		return s.newConversationLocked()
	}
	s.activeID = ids[0]
	s.logger.Info("history.conversation.resumed", "conversation_id", s.activeID)
	return s.activeID, nil
}

// ActiveID returns the active conversation id without selecting one.
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// ListConversations returns persisted conversation ids, newest first.
func (s *Store) ListConversations() []string {
	return s.conversationIDsByRecency()
}

// Load returns the conversation stored under id. A missing file, malformed
// JSON or an empty document yields the placeholder conversation [{}].
func (s *Store) Load(id string) core.Conversation {
	var conv core.Conversation
	if err := readJSON(s.conversationPath(id), &conv); err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("history.conversation.unreadable", "conversation_id", id, "error", err)
		}
		return core.NewConversation()
	}
	if len(conv) == 0 {
		return core.NewConversation()
	}
	return conv
}

// Save overwrites the conversation stored under id. The write goes through a
// temporary file and a rename, so Load never observes a partial document.
func (s *Store) Save(id string, conv core.Conversation) error {
	if conv == nil {
		conv = core.Conversation{}
	}
	return writeJSONAtomic(s.conversationPath(id), conv)
}

func (s *Store) conversationPath(id string) string {
	return filepath.Join(s.memoryDir, id+".json")
}

func (s *Store) conversationIDsByRecency() []string {
	entries, err := os.ReadDir(s.memoryDir)
	if err != nil {
		return nil
	}
	type candidate struct {
		id  string
		mod time.Time
	}
	var cands []candidate
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		cands = append(cands, candidate{id: strings.TrimSuffix(e.Name(), ".json"), mod: info.ModTime()})
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].mod.Equal(cands[j].mod) {
			return cands[i].id > cands[j].id
		}
		return cands[i].mod.After(cands[j].mod)
	})
	ids := make([]string, len(cands))
	for i, c := range cands {
		ids[i] = c.id
	}
	return ids
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// writeJSONAtomic encodes v (indented, no HTML escaping) to a temporary file
// in the target directory and renames it over path.
func writeJSONAtomic(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("history: encode %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("history: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("history: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("history: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("history: rename temp file: %w", err)
	}
	return nil
}
