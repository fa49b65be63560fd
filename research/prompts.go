package research

import "fmt"

const answerPromptTemplate = `You are a research assistant analyzing multi-modal academic content.

Context from various sources:
%s

Previous conversation:
%s

Question: %s

Instructions:
1. Provide a comprehensive answer based on the context.
2. Cite sources with the marker shown next to each source: [Author, Year] for papers, [Video: Title] for videos, [Podcast: Title] for podcasts.
3. Mention if information comes from videos or podcasts.
4. Highlight any diagrams or visual content that supports the answer.
5. Suggest related topics for further exploration.

Answer:`

const relatedPromptTemplate = `Based on this research query: "%s"
And this response: "%s"

Generate %d related research questions that would deepen understanding of this topic.

Output ONLY a JSON list of strings, for example ["first question?", "second question?"].
Do not include any preamble, explanation, or numbering.`

// answerWindow bounds how much of the answer is quoted back in the
// related-question prompt.
const answerWindow = 500

func buildAnswerPrompt(contextBlock, history, query string) string {
	if contextBlock == "" {
		contextBlock = "(no sources found)"
	}
	if history == "" {
		history = "(none)"
	}
	return fmt.Sprintf(answerPromptTemplate, contextBlock, history, query)
}

func buildRelatedPrompt(query, answer string, n int) string {
	return fmt.Sprintf(relatedPromptTemplate, query, clip(answer, answerWindow), n)
}

// fallbackRelated derives related questions from the query alone.
func fallbackRelated(query string) []string {
	return []string{
		fmt.Sprintf("What are the key concepts in %s?", query),
		fmt.Sprintf("How does %s relate to current research?", query),
		fmt.Sprintf("What are recent developments in %s?", query),
	}
}
