package ai

import (
	"context"

	"persona-ai-chat/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.CompletionProvider = (*limitedProvider)(nil)

type limitedProvider struct {
	inner adapter.CompletionProvider
	sem   chan struct{}
}

// NewLimitedProvider caps concurrent completion calls across the process.
func NewLimitedProvider(inner adapter.CompletionProvider, maxConcurrent int) adapter.CompletionProvider {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedProvider{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedProvider) Complete(ctx context.Context, req adapter.CompletionRequest) (adapter.CompletionResponse, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return adapter.CompletionResponse{}, ctx.Err()
	}
	defer func() { <-l.sem }()
	return l.inner.Complete(ctx, req)
}

func (l *limitedProvider) ListModels(ctx context.Context, credential string) ([]string, error) {
	return l.inner.ListModels(ctx, credential)
}
