package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/codesearch/internal/core/domain"
)

const (
	SearchSystemPrompt = "You are a senior software engineer. Find the content in this part of the codebase that is relevant to the question."
	ReduceSystemPrompt = "Merge the partial findings into a single helpful answer."

	findingsSeparator = "\n---\n"
)

func buildSearchPrompt(question, chunkText string) string {
	return fmt.Sprintf(`Question: %q

Below is one portion of the repository. Every file starts with a line "%s<path>".
If this portion contains information that answers the question, respond with:

%s
Files: <comma-separated paths of the relevant files>
Lines: <comma-separated line numbers or ranges>
Snippets: |
  `+"```"+`<language>
  ...relevant lines...
  `+"```"+`
Explanation: <at most 120 words explaining relevance>

If nothing here is relevant, respond exactly:
%s

Repository portion:
%s
`, question, domain.FileDelimiterPrefix, domain.FoundMarker, domain.NotFoundMarker, chunkText)
}

func buildReducePrompt(question string, findings []string) string {
	return fmt.Sprintf(`Question: %q

Partial findings:
---
%s
`, question, strings.Join(findings, findingsSeparator))
}
