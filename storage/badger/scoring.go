package badger

import (
	"math"
	"strings"
	"unicode"

	"github.com/poiesic/scholar/core"
	"github.com/poiesic/scholar/storage"
	"github.com/xrash/smetrics"
)

// BM25 parameters, matching the defaults of Lucene-based engines.
const (
	bm25K1 = 1.2
	bm25B  = 0.75

	// fuzzyWeight discounts a term occurrence matched within edit distance.
	fuzzyWeight = 0.5
)

// fieldText returns the searchable text of a document field by index name.
func fieldText(doc *core.Document, field string) string {
	switch field {
	case "title":
		return doc.Title
	case "abstract":
		return doc.Abstract
	case "content":
		return doc.Content
	case "transcript":
		return doc.Transcript
	case "diagram_descriptions":
		return doc.DiagramDescriptions
	case "key_concepts":
		return strings.Join(doc.KeyConcepts, " ")
	case "authors":
		return strings.Join(doc.Authors, " ")
	}
	return ""
}

// tokenize lowercases s and splits it on anything that is not a letter or digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// autoFuzziness mirrors the AUTO edit distance: exact for short terms,
// one edit for medium terms, two for long ones.
func autoFuzziness(term string) int {
	n := len([]rune(term))
	switch {
	case n <= 2:
		return 0
	case n <= 5:
		return 1
	default:
		return 2
	}
}

// termFrequency counts occurrences of term in tokens. With fuzzy enabled,
// tokens within the AUTO edit distance count at a discount.
func termFrequency(term string, tokens []string, fuzzy bool) float64 {
	maxEdits := 0
	if fuzzy {
		maxEdits = autoFuzziness(term)
	}
	var tf float64
	for _, tok := range tokens {
		if tok == term {
			tf++
			continue
		}
		if maxEdits == 0 || abs(len(tok)-len(term)) > maxEdits {
			continue
		}
		if smetrics.WagnerFischer(term, tok, 1, 1, 1) <= maxEdits {
			tf += fuzzyWeight
		}
	}
	return tf
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// analyzedDoc caches the token streams of a document's searchable fields.
type analyzedDoc struct {
	doc    *core.Document
	tokens map[string][]string
}

func analyze(doc *core.Document, fields []storage.FieldWeight) *analyzedDoc {
	a := &analyzedDoc{doc: doc, tokens: make(map[string][]string, len(fields))}
	for _, f := range fields {
		a.tokens[f.Field] = tokenize(fieldText(doc, f.Field))
	}
	return a
}

// lexicalScores computes best_fields BM25 scores: each field is scored
// independently, multiplied by its boost, and the best field wins.
func lexicalScores(docs []*analyzedDoc, query string, fields []storage.FieldWeight, fuzzy bool) []float64 {
	scores := make([]float64, len(docs))
	terms := uniqueTerms(tokenize(query))
	if len(terms) == 0 || len(docs) == 0 {
		return scores
	}

	n := float64(len(docs))
	for _, fw := range fields {
		total := 0
		for _, d := range docs {
			total += len(d.tokens[fw.Field])
		}
		if total == 0 {
			continue
		}
		avgLen := float64(total) / n

		fieldScores := make([]float64, len(docs))
		tfs := make([]float64, len(docs))
		for _, term := range terms {
			df := 0
			for i, d := range docs {
				tfs[i] = termFrequency(term, d.tokens[fw.Field], fuzzy)
				if tfs[i] > 0 {
					df++
				}
			}
			if df == 0 {
				continue
			}
			idf := math.Log(1 + (n-float64(df)+0.5)/(float64(df)+0.5))
			for i, tf := range tfs {
				if tf == 0 {
					continue
				}
				dl := float64(len(docs[i].tokens[fw.Field]))
				fieldScores[i] += idf * tf * (bm25K1 + 1) / (tf + bm25K1*(1-bm25B+bm25B*dl/avgLen))
			}
		}

		for i, fs := range fieldScores {
			if weighted := fs * fw.Boost; weighted > scores[i] {
				scores[i] = weighted
			}
		}
	}
	return scores
}

func uniqueTerms(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// cosineSimilarity returns the cosine of the angle between a and b, or 0
// when either vector has zero magnitude or the lengths differ.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
