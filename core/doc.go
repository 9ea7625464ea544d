// Package core provides the foundational domain types shared by every dexter
// package:
//
//   - Turn / Role / Content (one conversation message, text or multimodal)
//   - Conversation (ordered turns, slot 0 reserved for the system prompt)
//   - Part / Attachment (multimodal segments and data URI encoding)
//   - MemoryStore / SearchResult (long-term memory retrieval contract)
//
// The JSON encoding of Turn and Content is the on-disk format of persisted
// conversations and sessions: the empty placeholder turn encodes as {}, text
// content as a string and multimodal content as an array of typed parts.
package core
