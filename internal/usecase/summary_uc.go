package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"persona-ai-chat/internal/domain"
	"persona-ai-chat/internal/domain/model"
	"persona-ai-chat/internal/domain/ports/adapter"
	"persona-ai-chat/internal/domain/ports/repository"
	"persona-ai-chat/internal/infra/logging"
	"persona-ai-chat/internal/infra/metrics"
)

var _ SummaryUseCase = (*summaryUC)(nil)

// summarizeSystem is the instruction for the condensation call. The model
// merges the prior summary with the new transcript into one replacement
// summary; proper nouns and state changes must survive the fold.
const summarizeSystem = `You are a conversation summarizer. Merge the prior summary (if any) with the new transcript into a single concise summary of everything that has happened so far. Preserve named characters, places, relationships, promises, and unresolved threads. Write plain prose, no headings, at most 300 words.`

// summaryLockTTL bounds how long a crashed run can block the next one.
const summaryLockTTL = 2 * time.Minute

// DistLocker is the distributed mutual-exclusion dependency; the redis
// locker satisfies it. TryLock returns domain.ErrSummaryInFlight when the
// key is already held.
type DistLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// SummaryUseCase folds aged conversation history into the rolling context
// summary and advances the checkpoint.
type SummaryUseCase interface {
	// SummarizeIfDue re-checks the threshold against fresh state and runs a
	// fold over the messages past the checkpoint. Returns false when it
	// skipped (below threshold, or another run holds the lock).
	SummarizeIfDue(ctx context.Context, conversationID string) (bool, error)
	// SummarizeNow is the manual trigger: it folds the full history
	// regardless of the threshold.
	SummarizeNow(ctx context.Context, conversationID string) error
}

type summaryUC struct {
	convos    repository.ConversationRepository
	exec      *completionExecutor
	locker    DistLocker
	lockKey   func(conversationID string) string
	threshold int
	maxOut    int
	log       *zerolog.Logger
}

func NewSummaryUseCase(
	convos repository.ConversationRepository,
	creds CredentialUseCase,
	provider adapter.CompletionProvider,
	locker DistLocker,
	lockKey func(conversationID string) string,
	threshold, maxOutputTokens int,
	logger *zerolog.Logger,
) *summaryUC {
	ucLog := logger.With().Str("component", "SummaryUC").Logger()
	if maxOutputTokens <= 0 {
		maxOutputTokens = 1024
	}
	return &summaryUC{
		convos:    convos,
		exec:      newCompletionExecutor(creds, provider, logger),
		locker:    locker,
		lockKey:   lockKey,
		threshold: threshold,
		maxOut:    maxOutputTokens,
		log:       &ucLog,
	}
}

func (u *summaryUC) SummarizeIfDue(ctx context.Context, conversationID string) (bool, error) {
	return u.summarize(ctx, conversationID, false)
}

func (u *summaryUC) SummarizeNow(ctx context.Context, conversationID string) error {
	_, err := u.summarize(ctx, conversationID, true)
	return err
}

func (u *summaryUC) summarize(ctx context.Context, conversationID string, force bool) (bool, error) {
	defer logging.TraceDuration(u.log, "SummaryUC.summarize")()

	token, err := u.locker.TryLock(ctx, u.lockKey(conversationID), summaryLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrSummaryInFlight) {
			metrics.IncSummary("skipped")
			if force {
				return false, err
			}
			return false, nil
		}
		return false, err
	}
	defer func() {
		if uerr := u.locker.Unlock(context.WithoutCancel(ctx), u.lockKey(conversationID), token); uerr != nil {
			u.log.Warn().Err(uerr).Str("conversation_id", conversationID).Msg("summary unlock failed")
		}
	}()

	// Fresh read under the lock: messages appended while the task sat in
	// the queue are included, and ones appended after this point are not
	// claimed by the checkpoint below.
	c, err := u.convos.FindByID(ctx, nil, conversationID)
	if err != nil {
		return false, err
	}

	start := c.SummaryCheckpoint
	if force {
		start = 0
	}
	end := len(c.Messages)
	if end <= start {
		metrics.IncSummary("skipped")
		return false, nil
	}
	if !force && c.UnsummarizedCount() < u.threshold {
		metrics.IncSummary("skipped")
		return false, nil
	}

	req := adapter.CompletionRequest{
		Model:           c.Model,
		System:          summarizeSystem,
		History:         []adapter.Message{{Role: model.RoleUser, Content: u.foldInput(c, start, end)}},
		MaxOutputTokens: u.maxOut,
	}
	resp, _, err := u.exec.run(ctx, c.UserID, req)
	if err != nil {
		metrics.IncSummary("failed")
		u.log.Error().Err(err).Str("conversation_id", conversationID).Msg("summarization failed")
		return false, err
	}

	summary := strings.TrimSpace(resp.Text)
	if summary == "" {
		metrics.IncSummary("failed")
		return false, fmt.Errorf("summarizer returned empty text for conversation %s", conversationID)
	}

	// Checkpoint is the slice end captured at the fresh read, even if the
	// user kept chatting during the provider call.
	if err := u.convos.UpdateSummary(ctx, nil, conversationID, summary, end); err != nil {
		metrics.IncSummary("failed")
		return false, err
	}

	metrics.IncSummary("ok")
	metrics.AddSummarizedMessages(end - start)
	u.log.Info().
		Str("conversation_id", conversationID).
		Int("from", start).
		Int("to", end).
		Msg("context summary advanced")
	return true, nil
}

// foldInput renders the fold request: the user note (authoritative world
// state the summary must not contradict), the prior summary (when the run
// is incremental), and the transcript slice being folded in.
func (u *summaryUC) foldInput(c *model.Conversation, start, end int) string {
	var sb strings.Builder
	if note := strings.TrimSpace(c.UserNote); note != "" {
		sb.WriteString("[World state]\n")
		sb.WriteString(note)
		sb.WriteString("\n\n")
	}
	if prior := strings.TrimSpace(c.ContextSummary); prior != "" && start > 0 {
		sb.WriteString("[Prior summary]\n")
		sb.WriteString(prior)
		sb.WriteString("\n\n")
	}
	sb.WriteString("[New transcript]\n")
	for _, m := range c.Messages[start:end] {
		sb.WriteString("[")
		sb.WriteString(m.Role)
		sb.WriteString("] ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
