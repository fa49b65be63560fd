package mock

import (
	"context"
	"sync"
)

// DefaultResponse is returned when no scripted response or function is set.
const DefaultResponse = "mock response"

// MockGenerator is a test double for ai.Generator.
// Responses are served in order; once exhausted, the last one repeats.
type MockGenerator struct {
	// GenerateFunc is called by Generate if set.
	GenerateFunc func(ctx context.Context, prompt string) (string, error)

	// Err, if set, is returned by every call.
	Err error

	mu        sync.Mutex
	responses []string
	prompts   []string
}

// NewMockGenerator creates a mock generator that answers with responses in order.
func NewMockGenerator(responses ...string) *MockGenerator {
	return &MockGenerator{responses: responses}
}

// Generate records the prompt and returns the next scripted response.
func (m *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	fn, err := m.GenerateFunc, m.Err
	var resp string
	switch len(m.responses) {
	case 0:
		resp = DefaultResponse
	case 1:
		resp = m.responses[0]
	default:
		resp = m.responses[0]
		m.responses = m.responses[1:]
	}
	m.mu.Unlock()

	if err != nil {
		return "", err
	}
	if fn != nil {
		return fn(ctx, prompt)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return resp, nil
}

// Prompts returns every prompt received so far.
func (m *MockGenerator) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// CallCount returns the number of times Generate was called.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// Reset clears recorded prompts, scripted responses and injected behavior.
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = nil
	m.responses = nil
	m.GenerateFunc = nil
	m.Err = nil
}
