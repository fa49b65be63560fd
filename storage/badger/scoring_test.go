package badger

import (
	"testing"

	"github.com/poiesic/scholar/core"
	"github.com/poiesic/scholar/storage"
	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"self", "attention", "is", "all", "2017"}, tokenize("Self-Attention: is ALL (2017)"))
	assert.Empty(t, tokenize("  -- "))
}

func TestAutoFuzziness(t *testing.T) {
	assert.Equal(t, 0, autoFuzziness("ai"))
	assert.Equal(t, 1, autoFuzziness("graph"))
	assert.Equal(t, 2, autoFuzziness("transformer"))
}

func TestTermFrequency(t *testing.T) {
	tokens := []string{"transformer", "models", "transformer"}

	assert.Equal(t, 2.0, termFrequency("transformer", tokens, false))
	assert.Equal(t, 0.0, termFrequency("transfromer", tokens, false))
	assert.Equal(t, 1.0, termFrequency("transfromer", tokens, true), "two fuzzy hits at half weight")
	assert.Equal(t, 0.0, termFrequency("ai", []string{"at"}, true), "short terms must match exactly")
}

func TestLexicalScores_TitleBoostWins(t *testing.T) {
	fields := []storage.FieldWeight{{Field: "title", Boost: 3}, {Field: "content", Boost: 1}}
	inTitle := analyze(core.NewPaper("Graph networks", nil, "", "unrelated text here"), fields)
	inBody := analyze(core.NewPaper("Something else", nil, "", "graph networks appear in the body"), fields)
	neither := analyze(core.NewPaper("Cooking", nil, "", "pasta"), fields)

	scores := lexicalScores([]*analyzedDoc{inTitle, inBody, neither}, "graph networks", fields, false)

	assert.Greater(t, scores[0], scores[1])
	assert.Greater(t, scores[1], 0.0)
	assert.Equal(t, 0.0, scores[2])
}

func TestLexicalScores_EmptyQuery(t *testing.T) {
	fields := []storage.FieldWeight{{Field: "title", Boost: 1}}
	docs := []*analyzedDoc{analyze(core.NewPaper("x", nil, "", ""), fields)}
	assert.Equal(t, []float64{0}, lexicalScores(docs, "  ", fields, true))
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{1, 2}))
}
