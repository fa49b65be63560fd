package search

import (
	"strings"
	"unicode"
)

// questionWords are ignored when deciding whether a title answers a query
// verbatim.
var questionWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "do": {}, "does": {}, "for": {}, "from": {}, "how": {}, "in": {},
	"is": {}, "it": {}, "of": {}, "on": {}, "or": {}, "the": {}, "to": {},
	"was": {}, "what": {}, "which": {}, "who": {}, "why": {}, "with": {},
}

// terms lowercases text and splits it on anything that is not a letter or
// digit, dropping question words.
func terms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if _, skip := questionWords[f]; !skip {
			out = append(out, f)
		}
	}
	return out
}

// titleCoversQuery reports whether every meaningful query term occurs in
// title. A query made only of question words never matches.
func titleCoversQuery(title, query string) bool {
	want := terms(query)
	if len(want) == 0 {
		return false
	}
	have := make(map[string]struct{})
	for _, t := range terms(title) {
		have[t] = struct{}{}
	}
	for _, t := range want {
		if _, ok := have[t]; !ok {
			return false
		}
	}
	return true
}
