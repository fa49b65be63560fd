package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/scholar/metrics"
)

// relatedEnvelope accepts the object shapes models produce when asked for a
// bare list.
type relatedEnvelope struct {
	Questions      []string `json:"questions"`
	RelatedQueries []string `json:"related_queries"`
}

// parseRelated extracts up to limit questions from a model response. It
// accepts a JSON list, optionally fenced, with surrounding prose, or wrapped
// in an object.
func parseRelated(text string, limit int) ([]string, error) {
	s := repairJSON(stripFences(text))

	var list []string
	err := json.Unmarshal([]byte(s), &list)
	if err != nil {
		var env relatedEnvelope
		if envErr := json.Unmarshal([]byte(s), &env); envErr == nil {
			list = append(env.Questions, env.RelatedQueries...)
		} else if arrErr := json.Unmarshal([]byte(extractArray(s)), &list); arrErr != nil {
			return nil, fmt.Errorf("parsing related queries: %w", err)
		}
	}

	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, q := range list {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if _, dup := seen[q]; dup {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	if len(out) == 0 {
		return nil, ErrNoRelatedQueries
	}
	return out, nil
}

// relatedQueries asks the generator for follow-up questions. Any failure is
// logged and answered with the templated fallback.
func (o *Orchestrator) relatedQueries(ctx context.Context, logger *slog.Logger, query, answer string) []string {
	text, err := o.generate(ctx, metrics.GenerationRelated, buildRelatedPrompt(query, answer, o.relatedCount))
	if err != nil {
		logger.Warn("related query generation failed, using fallback", "err", err)
		return fallbackRelated(query)
	}

	related, err := parseRelated(text, o.relatedCount)
	if err != nil {
		logger.Warn("unusable related query response, using fallback", "response", text, "err", err)
		return fallbackRelated(query)
	}
	return related
}
