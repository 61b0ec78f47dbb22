package ai

import (
	"context"
	"time"

	"persona-ai-chat/internal/domain/ports/adapter"
)

var _ adapter.CompletionProvider = (*NoopProvider)(nil)

// NoopProvider is the null-object completion provider for environments
// without provider keys (local dev, tests). It echoes a canned reply
// instead of calling out.
type NoopProvider struct{}

func NewNoopProvider() *NoopProvider { return &NoopProvider{} }

func (a *NoopProvider) Complete(ctx context.Context, req adapter.CompletionRequest) (adapter.CompletionResponse, error) {
	select {
	case <-time.After(100 * time.Millisecond):
	case <-ctx.Done():
		return adapter.CompletionResponse{}, ctx.Err()
	}
	return adapter.CompletionResponse{
		Text: "This is a noop completion response.",
	}, nil
}

func (a *NoopProvider) ListModels(ctx context.Context, credential string) ([]string, error) {
	return []string{"noop-model"}, nil
}
