package research

import (
	"strings"
	"sync"
)

// Turn is one question and the answer generated for it.
type Turn struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Memory is an ordered conversation buffer shared by successive queries.
// A nil *Memory is valid and remembers nothing.
type Memory struct {
	mu       sync.Mutex
	turns    []Turn
	maxTurns int
}

// NewMemory creates a buffer that keeps the latest maxTurns turns.
// Zero or less keeps every turn.
func NewMemory(maxTurns int) *Memory {
	return &Memory{maxTurns: maxTurns}
}

// Append adds a turn, evicting the oldest when the buffer is full.
func (m *Memory) Append(input, output string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.turns = append(m.turns, Turn{Input: input, Output: output})
	if m.maxTurns > 0 && len(m.turns) > m.maxTurns {
		m.turns = append([]Turn(nil), m.turns[len(m.turns)-m.maxTurns:]...)
	}
}

// Turns returns a copy of the buffered turns, oldest first.
func (m *Memory) Turns() []Turn {
	if m == nil {
		return []Turn{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Turn{}, m.turns...)
}

// Len returns the number of buffered turns.
func (m *Memory) Len() int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.turns)
}

// Reset forgets every turn.
func (m *Memory) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = nil
}

// String renders the buffer as chat history for a prompt.
func (m *Memory) String() string {
	var b strings.Builder
	for _, t := range m.Turns() {
		b.WriteString("Human: ")
		b.WriteString(t.Input)
		b.WriteString("\nAI: ")
		b.WriteString(t.Output)
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}
