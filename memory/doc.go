// Package memory contains concrete long-term MemoryStore implementations. The
// store interface and SearchResult type reside in the core package; depend on
// core.MemoryStore and select an implementation at wiring time.
//
// Stored memories surface in the LONG TERM MEMORY section of the system
// prompt built by the prompt package.
package memory
