package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/codesearch/internal/core/domain"
	"github.com/kirillkom/codesearch/internal/core/ports"
)

// Reducer merges relevant per-chunk findings with one more completion call.
type Reducer struct {
	completer ports.Completer
}

func NewReducer(completer ports.Completer) *Reducer {
	return &Reducer{completer: completer}
}

// Reduce keeps successful relevant results in chunk order. With none left it returns
// the nothing-found answer without calling the backend.
func (r *Reducer) Reduce(ctx context.Context, question, model string, results []domain.QueryResult) (domain.FinalAnswer, error) {
	findings := relevantFindings(results)
	if len(findings) == 0 {
		return domain.FinalAnswer{Text: domain.NothingFoundText, NothingFound: true}, nil
	}

	text, err := r.completer.Complete(ctx, domain.CompletionRequest{
		System: ReduceSystemPrompt,
		Prompt: buildReducePrompt(question, findings),
		Model:  model,
	})
	if err != nil {
		return domain.FinalAnswer{}, fmt.Errorf("reduce %d findings: %w", len(findings), err)
	}
	return domain.FinalAnswer{Text: text}, nil
}

func relevantFindings(results []domain.QueryResult) []string {
	var findings []string
	for _, res := range results {
		if res.Err != nil || !res.Relevant {
			continue
		}
		findings = append(findings, res.Response)
	}
	return findings
}
