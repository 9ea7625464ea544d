package history

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hupe1980/dexter/core"
)

// ErrInvalidTag is returned when a session tag is empty or would escape the
// sessions directory.
var ErrInvalidTag = errors.New("history: invalid session tag")

// SessionRecord is one entry of a session file. A record is either the
// leading system record (Role and Content set) or an interaction pair (User
// and Assistant set).
type SessionRecord struct {
	Role      core.Role
	Content   *core.Content
	User      *core.Turn
	Assistant *core.Turn
}

// IsSystem reports whether the record carries the session's system prompt.
func (r SessionRecord) IsSystem() bool { return r.Role == core.RoleSystem }

// MarshalJSON implements json.Marshaler.
func (r SessionRecord) MarshalJSON() ([]byte, error) {
	if r.IsSystem() {
		return json.Marshal(struct {
			Role    core.Role     `json:"role"`
			Content *core.Content `json:"content"`
		}{r.Role, r.Content})
	}
	return json.Marshal(struct {
		User      *core.Turn `json:"user"`
		Assistant *core.Turn `json:"assistant"`
	}{r.User, r.Assistant})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *SessionRecord) UnmarshalJSON(data []byte) error {
	var w struct {
		Role      core.Role       `json:"role"`
		Content   json.RawMessage `json:"content"`
		User      *core.Turn      `json:"user"`
		Assistant *core.Turn      `json:"assistant"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = SessionRecord{Role: w.Role, User: w.User, Assistant: w.Assistant}
	if len(w.Content) > 0 && strings.TrimSpace(string(w.Content)) != "null" {
		var c core.Content
		if err := json.Unmarshal(w.Content, &c); err != nil {
			return err
		}
		r.Content = &c
	}
	return nil
}

// ValidTag reports whether tag can name a session file.
func ValidTag(tag string) bool {
	if tag == "" || tag == "." || strings.Contains(tag, "..") {
		return false
	}
	return !strings.ContainsAny(tag, `/\`) && !strings.ContainsRune(tag, filepath.Separator)
}

func (s *Store) sessionPath(tag string) string {
	return filepath.Join(s.sessionsDir, tag+".json")
}

func (s *Store) readSession(tag string) []SessionRecord {
	if !ValidTag(tag) {
		return []SessionRecord{}
	}
	var records []SessionRecord
	if err := readJSON(s.sessionPath(tag), &records); err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("history.session.unreadable", "session_tag", tag, "error", err)
		}
		return []SessionRecord{}
	}
	if records == nil {
		return []SessionRecord{}
	}
	return records
}

// SaveToSession appends one interaction pair to the session named tag. The
// session's leading system record is replaced by systemPrompt, or dropped when
// systemPrompt is nil or empty.
func (s *Store) SaveToSession(tag string, user, assistant core.Turn, systemPrompt *string) error {
	if !ValidTag(tag) {
		return ErrInvalidTag
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.readSession(tag)
	if len(records) > 0 && records[0].IsSystem() {
		records = records[1:]
	}
	out := make([]SessionRecord, 0, len(records)+2)
	if systemPrompt != nil && *systemPrompt != "" {
		out = append(out, SessionRecord{Role: core.RoleSystem, Content: core.NewTextContent(*systemPrompt)})
	}
	out = append(out, records...)
	out = append(out, SessionRecord{User: &user, Assistant: &assistant})

	if err := writeJSONAtomic(s.sessionPath(tag), out); err != nil {
		return err
	}
	s.logger.Debug("history.session.saved", "session_tag", tag, "records", len(out))
	return nil
}

// SessionHistory returns the raw records of a session, or an empty slice when
// the session is absent or unreadable.
func (s *Store) SessionHistory(tag string) []SessionRecord {
	return s.readSession(tag)
}

// ListSessions returns the tags of all stored sessions in lexical order.
func (s *Store) ListSessions() []string {
	entries, err := os.ReadDir(s.sessionsDir)
	if err != nil {
		return []string{}
	}
	tags := []string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		tags = append(tags, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(tags)
	return tags
}

// DeleteSession removes a session file. It reports false if the session did
// not exist or could not be removed.
func (s *Store) DeleteSession(tag string) bool {
	if !ValidTag(tag) {
		return false
	}
	if err := os.Remove(s.sessionPath(tag)); err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("history.session.delete_failed", "session_tag", tag, "error", err)
		}
		return false
	}
	s.logger.Info("history.session.deleted", "session_tag", tag)
	return true
}

// LoadSessionIntoConversation turns a session into a conversation. Slot 0 is
// always a system turn holding the session's prompt (null content if it has
// none), followed by the flattened user/assistant turns.
func (s *Store) LoadSessionIntoConversation(tag string) (*string, core.Conversation) {
	records := s.readSession(tag)
	if len(records) == 0 {
		return nil, core.NewConversation()
	}
	var prompt *string
	if records[0].IsSystem() {
		if records[0].Content != nil {
			text := records[0].Content.String()
			prompt = &text
		}
		records = records[1:]
	}
	conv := core.Conversation{core.SystemTurn(prompt)}
	for _, r := range records {
		if r.User != nil {
			conv = append(conv, *r.User)
		}
		if r.Assistant != nil {
			conv = append(conv, *r.Assistant)
		}
	}
	return prompt, conv
}
