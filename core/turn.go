package core

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Role tags the author of a Turn.
type Role string

const (
	// RoleSystem marks the system prompt turn (always slot 0).
	RoleSystem Role = "system"
	// RoleUser marks user (or synthetic user) input.
	RoleUser Role = "user"
	// RoleAssistant marks model output.
	RoleAssistant Role = "assistant"
)

// Content is the payload of a Turn: either plain text or an ordered list of
// multimodal parts. A nil *Content encodes as JSON null.
type Content struct {
	Text  string
	Parts []Part // non-nil selects the multimodal encoding
}

// NewTextContent returns plain text content.
func NewTextContent(text string) *Content { return &Content{Text: text} }

// NewPartsContent returns multimodal content.
func NewPartsContent(parts ...Part) *Content {
	if parts == nil {
		parts = []Part{}
	}
	return &Content{Parts: parts}
}

// IsMultimodal reports whether the content uses the parts encoding.
func (c *Content) IsMultimodal() bool { return c != nil && c.Parts != nil }

// String flattens the content into text (text parts only).
func (c *Content) String() string {
	if c == nil {
		return ""
	}
	if c.Parts == nil {
		return c.Text
	}
	var buf bytes.Buffer
	for _, p := range c.Parts {
		if tp, ok := p.(TextPart); ok {
			buf.WriteString(tp.Text)
		}
	}
	return buf.String()
}

type wireText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type wireFile struct {
	Type string       `json:"type"`
	File FilePartFile `json:"file"`
}

// MarshalJSON encodes text content as a JSON string and multimodal content as
// an array of typed parts.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.Parts == nil {
		return json.Marshal(c.Text)
	}
	out := make([]any, 0, len(c.Parts))
	for _, p := range c.Parts {
		switch part := p.(type) {
		case TextPart:
			out = append(out, wireText{Type: "text", Text: part.Text})
		case FilePart:
			out = append(out, wireFile{Type: "file", File: part.File})
		default:
			return nil, fmt.Errorf("core: unsupported part type %T", p)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts either a JSON string or an array of typed parts.
// Parts of unknown type are skipped.
func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		c.Parts = nil
		return json.Unmarshal(data, &c.Text)
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("core: content must be a string or an array of parts: %w", err)
	}
	c.Text = ""
	c.Parts = make([]Part, 0, len(raw))
	for _, r := range raw {
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(r, &head); err != nil {
			return err
		}
		switch head.Type {
		case "text":
			var wt wireText
			if err := json.Unmarshal(r, &wt); err != nil {
				return err
			}
			c.Parts = append(c.Parts, TextPart{Text: wt.Text})
		case "file":
			var wf wireFile
			if err := json.Unmarshal(r, &wf); err != nil {
				return err
			}
			c.Parts = append(c.Parts, FilePart{File: wf.File})
		}
	}
	return nil
}

// Turn is one message of a conversation. The zero Turn is the empty
// placeholder and encodes as {}.
type Turn struct {
	Role    Role
	Content *Content
}

// SystemTurn builds a system turn; a nil prompt yields null content.
func SystemTurn(prompt *string) Turn {
	if prompt == nil {
		return Turn{Role: RoleSystem}
	}
	return Turn{Role: RoleSystem, Content: NewTextContent(*prompt)}
}

// UserTurn builds a plain text user turn.
func UserTurn(text string) Turn { return Turn{Role: RoleUser, Content: NewTextContent(text)} }

// AssistantTurn builds a plain text assistant turn.
func AssistantTurn(text string) Turn {
	return Turn{Role: RoleAssistant, Content: NewTextContent(text)}
}

// IsPlaceholder reports whether the turn is the empty {} placeholder.
func (t Turn) IsPlaceholder() bool { return t.Role == "" && t.Content == nil }

// Text returns the flattened text of the turn.
func (t Turn) Text() string { return t.Content.String() }

type wireTurn struct {
	Role    Role            `json:"role"`
	Content json.RawMessage `json:"content"`
}

// MarshalJSON implements json.Marshaler.
func (t Turn) MarshalJSON() ([]byte, error) {
	if t.IsPlaceholder() {
		return []byte("{}"), nil
	}
	content := json.RawMessage("null")
	if t.Content != nil {
		b, err := json.Marshal(*t.Content)
		if err != nil {
			return nil, err
		}
		content = b
	}
	return json.Marshal(wireTurn{Role: t.Role, Content: content})
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Turn) UnmarshalJSON(data []byte) error {
	var w struct {
		Role    Role            `json:"role"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	t.Role = w.Role
	t.Content = nil
	if len(w.Content) == 0 || string(bytes.TrimSpace(w.Content)) == "null" {
		return nil
	}
	var c Content
	if err := json.Unmarshal(w.Content, &c); err != nil {
		return err
	}
	t.Content = &c
	return nil
}

// Conversation is the ordered turn sequence of one chat. Index 0 is reserved
// for the system prompt.
type Conversation []Turn

// NewConversation returns the single-placeholder conversation [{}].
func NewConversation() Conversation { return Conversation{{}} }

// Clone returns a copy whose slice can be appended to independently.
func (c Conversation) Clone() Conversation {
	out := make(Conversation, len(c))
	copy(out, c)
	return out
}

// SetSystem overwrites slot 0 with the given system prompt, allocating the
// slot if the conversation is empty.
func (c Conversation) SetSystem(prompt *string) Conversation {
	if len(c) == 0 {
		return Conversation{SystemTurn(prompt)}
	}
	c[0] = SystemTurn(prompt)
	return c
}

// Interactions returns the number of complete user/assistant pairs after the
// system slot.
func (c Conversation) Interactions() int {
	if len(c) <= 1 {
		return 0
	}
	return (len(c) - 1) / 2
}
