package resilience

import (
	"context"

	"github.com/kirillkom/codesearch/internal/core/domain"
	"github.com/kirillkom/codesearch/internal/core/ports"
)

// Guard decorates a completion backend with an Executor.
type Guard struct {
	name     string
	inner    ports.Completer
	exec     *Executor
	classify Classifier
}

func NewGuard(name string, inner ports.Completer, exec *Executor, classify Classifier) *Guard {
	if classify == nil {
		classify = ClassifyTemporary
	}
	return &Guard{name: name, inner: inner, exec: exec, classify: classify}
}

func (g *Guard) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	var out string
	err := g.exec.Do(ctx, g.name+".complete", func(ctx context.Context) error {
		text, err := g.inner.Complete(ctx, req)
		if err != nil {
			return err
		}
		out = text
		return nil
	}, g.classify)
	if err != nil {
		if IsCircuitOpen(err) {
			return "", domain.WrapError(domain.ErrTemporary, g.name+" complete", err)
		}
		return "", err
	}
	return out, nil
}
