package ai

import (
	"context"
	"time"

	"persona-ai-chat/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.CompletionProvider = (*retryingProvider)(nil)

// retryingProvider retries transient-overload failures with bounded
// exponential backoff before the caller ever considers switching
// credentials. Quota and auth failures pass straight through: those are
// the rotation policy's business, not a backoff case.
type retryingProvider struct {
	inner     adapter.CompletionProvider
	attempts  int
	baseDelay time.Duration
}

func NewRetryingProvider(inner adapter.CompletionProvider, attempts int, baseDelay time.Duration) adapter.CompletionProvider {
	if attempts <= 1 {
		return inner
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	return &retryingProvider{inner: inner, attempts: attempts, baseDelay: baseDelay}
}

func (r *retryingProvider) Complete(ctx context.Context, req adapter.CompletionRequest) (adapter.CompletionResponse, error) {
	var lastErr error
	delay := r.baseDelay
	for attempt := 0; attempt < r.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return adapter.CompletionResponse{}, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		resp, err := r.inner.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !adapter.IsOverloaded(err) {
			return adapter.CompletionResponse{}, err
		}
	}
	return adapter.CompletionResponse{}, lastErr
}

func (r *retryingProvider) ListModels(ctx context.Context, credential string) ([]string, error) {
	return r.inner.ListModels(ctx, credential)
}
