package testutil

import (
	"github.com/hupe1980/dexter/core"
)

// ConversationBuilder provides a fluent helper for constructing conversations
// in tests. Example:
//
//	conv := NewConversationBuilder().System("be nice").Pair("hi", "hello").Build()
//
// Without a System call the system slot stays the empty placeholder.
type ConversationBuilder struct {
	system *core.Turn
	turns  []core.Turn
}

// NewConversationBuilder creates an empty builder.
func NewConversationBuilder() *ConversationBuilder { return &ConversationBuilder{} }

// System sets the system prompt held in slot 0 (chainable).
func (b *ConversationBuilder) System(prompt string) *ConversationBuilder {
	t := core.SystemTurn(&prompt)
	b.system = &t
	return b
}

// NullSystem sets a system turn with null content (chainable).
func (b *ConversationBuilder) NullSystem() *ConversationBuilder {
	t := core.SystemTurn(nil)
	b.system = &t
	return b
}

// User appends a plain text user turn (chainable).
func (b *ConversationBuilder) User(text string) *ConversationBuilder {
	b.turns = append(b.turns, core.UserTurn(text))
	return b
}

// Assistant appends a plain text assistant turn (chainable).
func (b *ConversationBuilder) Assistant(text string) *ConversationBuilder {
	b.turns = append(b.turns, core.AssistantTurn(text))
	return b
}

// Pair appends a user turn followed by an assistant turn (chainable).
func (b *ConversationBuilder) Pair(user, assistant string) *ConversationBuilder {
	return b.User(user).Assistant(assistant)
}

// Build returns the conversation.
func (b *ConversationBuilder) Build() core.Conversation {
	conv := core.NewConversation()
	if b.system != nil {
		conv[0] = *b.system
	}
	return append(conv, b.turns...)
}

// Texts flattens the turns after the system slot into their text.
func Texts(conv core.Conversation) []string {
	if len(conv) <= 1 {
		return []string{}
	}
	out := make([]string, 0, len(conv)-1)
	for _, t := range conv[1:] {
		out = append(out, t.Text())
	}
	return out
}
