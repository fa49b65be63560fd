package research

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemory_AppendAndString(t *testing.T) {
	m := NewMemory(0)
	assert.Empty(t, m.String())

	m.Append("what is attention?", "a weighting mechanism")
	m.Append("who proposed it?", "Vaswani et al.")

	assert.Equal(t, []Turn{
		{Input: "what is attention?", Output: "a weighting mechanism"},
		{Input: "who proposed it?", Output: "Vaswani et al."},
	}, m.Turns())
	assert.Equal(t, "Human: what is attention?\nAI: a weighting mechanism\nHuman: who proposed it?\nAI: Vaswani et al.", m.String())
}

func TestMemory_Evicts(t *testing.T) {
	m := NewMemory(2)
	m.Append("1", "a")
	m.Append("2", "b")
	m.Append("3", "c")

	turns := m.Turns()
	assert.Len(t, turns, 2)
	assert.Equal(t, "2", turns[0].Input)
	assert.Equal(t, "3", turns[1].Input)
}

func TestMemory_TurnsIsCopy(t *testing.T) {
	m := NewMemory(0)
	m.Append("q", "a")
	turns := m.Turns()
	turns[0].Input = "changed"
	assert.Equal(t, "q", m.Turns()[0].Input)
}

func TestMemory_Reset(t *testing.T) {
	m := NewMemory(0)
	m.Append("q", "a")
	m.Reset()
	assert.Zero(t, m.Len())
}

func TestMemory_Nil(t *testing.T) {
	var m *Memory
	m.Append("q", "a")
	m.Reset()
	assert.Zero(t, m.Len())
	assert.Empty(t, m.Turns())
	assert.Empty(t, m.String())
}

func TestMemory_Concurrent(t *testing.T) {
	m := NewMemory(0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Append("q", "a")
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, m.Len())
}
