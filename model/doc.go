// Package model defines the provider-agnostic completion interface used by
// the engine and by model-backed agents.
//
// Core goals:
//   - One blocking Complete call per request; retries live in the caller
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight scripting for tests (MockModel)
//
// Providers (OpenAI, Anthropic, Gemini) implement Model in their own
// subpackages so higher layers remain decoupled from vendor SDKs.
package model
