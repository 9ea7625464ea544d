package engine

import (
	"context"
	"fmt"

	"github.com/hupe1980/dexter/history"
)

// StartNewConversation makes the next submission start a fresh conversation.
func (e *Engine) StartNewConversation() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.newConv = true
}

// SessionTag returns the active session tag, or "" when none is set.
func (e *Engine) SessionTag() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sessionTag
}

// SetSessionTag mirrors every following pair into the named session. An
// empty tag stops mirroring.
func (e *Engine) SetSessionTag(tag string) error {
	if tag != "" && !history.ValidTag(tag) {
		return fmt.Errorf("engine: session tag %q: %w", tag, history.ErrInvalidTag)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessionTag = tag
	return nil
}

// ListSessions returns the stored session tags.
func (e *Engine) ListSessions() []string { return e.store.ListSessions() }

// SessionHistory returns the records of a session.
func (e *Engine) SessionHistory(tag string) []history.SessionRecord {
	return e.store.SessionHistory(tag)
}

// DeleteSession removes a session and reports whether it existed.
func (e *Engine) DeleteSession(tag string) bool { return e.store.DeleteSession(tag) }

// LoadSession replaces the conversation with the pairs of a stored session
// and adopts its system prompt, which may be empty. The result is kept in a
// new conversation file so the previous conversation stays intact.
func (e *Engine) LoadSession(tag string) error {
	if !history.ValidTag(tag) {
		return fmt.Errorf("engine: session tag %q: %w", tag, history.ErrInvalidTag)
	}

	e.runMu.Lock()
	defer e.runMu.Unlock()

	systemPrompt, conv := e.store.LoadSessionIntoConversation(tag)
	id, err := e.store.NewConversation()
	if err != nil {
		return fmt.Errorf("engine: load session %q: %w", tag, err)
	}
	if err := e.store.Save(id, conv); err != nil {
		return fmt.Errorf("engine: load session %q: %w", tag, err)
	}
	if e.opts.IsolateConversations {
		if err := e.opts.Executor.Reset(); err != nil {
			return fmt.Errorf("engine: reset executor: %w", err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.conv, e.convID, e.loaded, e.newConv = conv, id, true, false
	e.promptFixed, e.fixedPrompt = true, systemPrompt
	e.logger.Info("engine.session.loaded", "session", tag, "conversation_id", id, "turns", len(conv))
	return nil
}

// SystemPrompt returns the prompt the next submission will use.
func (e *Engine) SystemPrompt(ctx context.Context) (string, error) {
	p, err := e.resolveSystemPrompt(ctx)
	if err != nil || p == nil {
		return "", err
	}
	return *p, nil
}

// SetSystemPrompt fixes the system prompt, replacing the built one.
func (e *Engine) SetSystemPrompt(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.promptFixed, e.fixedPrompt = true, &text
}

// ResetSystemPrompt returns to building the system prompt from the
// registered capabilities and memories.
func (e *Engine) ResetSystemPrompt() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.promptFixed, e.fixedPrompt = false, nil
}

// TimestampMode reports whether user messages get a timestamp prefix.
func (e *Engine) TimestampMode() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.timestampMode
}

// SetTimestampMode toggles the timestamp prefix.
func (e *Engine) SetTimestampMode(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.timestampMode = enabled
}
