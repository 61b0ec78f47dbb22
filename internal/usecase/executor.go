package usecase

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"persona-ai-chat/internal/domain"
	"persona-ai-chat/internal/domain/model"
	"persona-ai-chat/internal/domain/ports/adapter"
	"persona-ai-chat/internal/infra/metrics"
)

// completionExecutor runs a completion request against the user's key
// pool, rotating to the next eligible credential on quota failures.
// Non-quota failures stop the loop immediately: retrying an auth error
// with a different key of the same account rarely helps, and transient
// overloads are already retried one level below.
type completionExecutor struct {
	creds    CredentialUseCase
	provider adapter.CompletionProvider
	log      *zerolog.Logger
}

func newCompletionExecutor(creds CredentialUseCase, provider adapter.CompletionProvider, logger *zerolog.Logger) *completionExecutor {
	exLog := logger.With().Str("component", "CompletionExecutor").Logger()
	return &completionExecutor{creds: creds, provider: provider, log: &exLog}
}

// run executes req for userID, filling in the credential per rotation
// policy. On success it returns the response and the credential that
// served it. On pool exhaustion it returns the last quota error so the
// caller sees why the pool drained, or domain.ErrNoCredential when the
// pool was empty to begin with.
func (e *completionExecutor) run(ctx context.Context, userID string, req adapter.CompletionRequest) (adapter.CompletionResponse, *model.APICredential, error) {
	tried := make(map[string]bool)
	var lastErr error
	attempts := 0

	for {
		if err := ctx.Err(); err != nil {
			return adapter.CompletionResponse{}, nil, err
		}

		cred, err := e.creds.Select(ctx, userID, tried)
		if err != nil {
			if errors.Is(err, domain.ErrNoCredential) {
				metrics.ObserveRotation(attempts, "exhausted")
				metrics.IncPoolExhausted()
				if lastErr != nil {
					return adapter.CompletionResponse{}, nil, lastErr
				}
			}
			return adapter.CompletionResponse{}, nil, err
		}
		attempts++

		req.Credential = cred.Secret
		resp, err := e.provider.Complete(ctx, req)
		if err == nil {
			metrics.ObserveRotation(attempts, "ok")
			if terr := e.creds.MarkUsed(ctx, cred.ID); terr != nil {
				e.log.Warn().Err(terr).Str("credential_id", cred.ID).Msg("touch last used failed")
			}
			return resp, cred, nil
		}

		if adapter.IsQuota(err) {
			e.log.Info().Str("credential_id", cred.ID).Str("user_id", userID).Msg("credential quota exhausted, rotating")
			if merr := e.creds.MarkExhausted(ctx, cred.ID); merr != nil {
				e.log.Warn().Err(merr).Str("credential_id", cred.ID).Msg("mark quota exceeded failed")
			}
			tried[cred.ID] = true
			lastErr = err
			continue
		}

		metrics.ObserveRotation(attempts, "failed")
		return adapter.CompletionResponse{}, cred, err
	}
}
