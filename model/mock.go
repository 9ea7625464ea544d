package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/dexter/core"
)

// MockModel is a lightweight in-memory Model useful for tests & examples.
//
// Answers are chosen in this order: a queued failure, the next scripted
// response, a canned response keyed by the last message text, and finally
// "Mock response to: <last message>". Every request is recorded.
type MockModel struct {
	info Info

	mu        sync.Mutex
	script    []string
	failures  []error
	responses map[string]string
	requests  []Request
}

// NewMockModel constructs a MockModel.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: provider},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// Script queues responses returned in order, one per call.
func (m *MockModel) Script(responses ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, responses...)
}

// Fail queues errors returned before any further response, one per call.
func (m *MockModel) Fail(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, errs...)
}

// Requests returns the requests received so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Calls returns the number of Complete calls so far.
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Complete implements Model.
func (m *MockModel) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	req.Messages = append([]core.Turn(nil), req.Messages...)
	m.requests = append(m.requests, req)

	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		return nil, err
	}
	if len(m.script) > 0 {
		text := m.script[0]
		m.script = m.script[1:]
		return &Response{Text: text, FinishReason: "stop"}, nil
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("no messages provided")
	}
	input := req.Messages[len(req.Messages)-1].Text()
	if full, ok := m.responses[input]; ok {
		return &Response{Text: full, FinishReason: "stop"}, nil
	}
	return &Response{Text: fmt.Sprintf("Mock response to: %s", input), FinishReason: "stop"}, nil
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
