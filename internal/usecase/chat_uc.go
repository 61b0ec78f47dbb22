package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"persona-ai-chat/internal/domain"
	"persona-ai-chat/internal/domain/model"
	"persona-ai-chat/internal/domain/ports/adapter"
	"persona-ai-chat/internal/domain/ports/repository"
	"persona-ai-chat/internal/domain/prompt"
	"persona-ai-chat/internal/infra/i18n"
	"persona-ai-chat/internal/infra/logging"
	"persona-ai-chat/internal/infra/metrics"
)

var _ ChatUseCase = (*chatUC)(nil)

// TokenEstimator counts (or approximates) tokens for stored messages.
type TokenEstimator interface {
	Count(text string) int
}

// BackgroundRunner schedules fire-and-forget work off the request path.
type BackgroundRunner interface {
	Submit(task func(ctx context.Context) error) error
}

// SendResult is what the send/reroll paths hand back to the transport.
type SendResult struct {
	Message model.ChatMessage
	// Degraded is set when the reply is the canned apology because every
	// provider attempt failed.
	Degraded bool
}

// ChatUseCase drives the conversation lifecycle: create, send, reroll,
// edit, metadata updates, deletion.
type ChatUseCase interface {
	StartConversation(ctx context.Context, userID, modelName, personaName, personaInstructions string) (*model.Conversation, error)
	SendMessage(ctx context.Context, conversationID, text string) (SendResult, error)
	RerollLast(ctx context.Context, conversationID string) (SendResult, error)
	EditMessage(ctx context.Context, conversationID string, index int, content string) error

	SetUserNote(ctx context.Context, conversationID, note string) error
	SetPersona(ctx context.Context, conversationID, name, instructions string) error
	SetTitle(ctx context.Context, conversationID, title string) error

	Get(ctx context.Context, conversationID string) (*model.Conversation, error)
	List(ctx context.Context, userID string) ([]*model.Conversation, error)
	Window(ctx context.Context, conversationID string, start, count int) ([]model.ChatMessage, error)
	Delete(ctx context.Context, conversationID string) error
}

type chatUC struct {
	convos    repository.ConversationRepository
	lorebook  repository.LorebookRepository
	settings  repository.SettingsRepository
	tm        repository.TransactionManager
	exec      *completionExecutor
	builder   *prompt.Builder
	estimator TokenEstimator
	runner    BackgroundRunner
	summaries SummaryUseCase
	locales   *i18n.Bundle

	providerName     string
	summaryThreshold int
	maxOutputTokens  int
	log              *zerolog.Logger
}

type ChatDeps struct {
	Convos    repository.ConversationRepository
	Lorebook  repository.LorebookRepository
	Settings  repository.SettingsRepository
	TxManager repository.TransactionManager
	Creds     CredentialUseCase
	Provider  adapter.CompletionProvider
	Builder   *prompt.Builder
	Estimator TokenEstimator
	Runner    BackgroundRunner
	Summaries SummaryUseCase
	Locales   *i18n.Bundle

	ProviderName     string
	SummaryThreshold int
	MaxOutputTokens  int
}

func NewChatUseCase(d ChatDeps, logger *zerolog.Logger) *chatUC {
	ucLog := logger.With().Str("component", "ChatUC").Logger()
	threshold := d.SummaryThreshold
	if threshold <= 0 {
		threshold = d.Builder.MaxTurns() * 2
	}
	return &chatUC{
		convos:           d.Convos,
		lorebook:         d.Lorebook,
		settings:         d.Settings,
		tm:               d.TxManager,
		exec:             newCompletionExecutor(d.Creds, d.Provider, logger),
		builder:          d.Builder,
		estimator:        d.Estimator,
		runner:           d.Runner,
		summaries:        d.Summaries,
		locales:          d.Locales,
		providerName:     d.ProviderName,
		summaryThreshold: threshold,
		maxOutputTokens:  d.MaxOutputTokens,
		log:              &ucLog,
	}
}

func (u *chatUC) StartConversation(ctx context.Context, userID, modelName, personaName, personaInstructions string) (*model.Conversation, error) {
	s, err := u.settings.Find(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	tr := u.locales.For(s.Language)

	c := model.NewConversation(ulid.Make().String(), userID, modelName, tr.T("default_title"))
	c.PersonaName = personaName
	c.PersonaInstructions = personaInstructions
	if err := u.convos.Save(ctx, nil, c); err != nil {
		return nil, err
	}
	return c, nil
}

// SendMessage appends the user turn, generates the assistant reply and
// appends it. The user turn is durable before the provider is called, so
// a provider failure never loses user input. When every attempt fails the
// reply is a localized apology and Degraded is set; the caller still gets
// a well-formed turn.
func (u *chatUC) SendMessage(ctx context.Context, conversationID, text string) (SendResult, error) {
	start := time.Now()
	defer logging.TraceDuration(u.log, "ChatUC.SendMessage")()

	text = strings.TrimSpace(text)
	if text == "" {
		return SendResult{}, domain.ErrEmptyMessage
	}

	c, err := u.convos.FindByID(ctx, nil, conversationID)
	if err != nil {
		return SendResult{}, err
	}
	ctx = logging.WithConversationID(logging.WithUserID(ctx, c.UserID), c.ID)

	s, err := u.settings.Find(ctx, nil, c.UserID)
	if err != nil {
		return SendResult{}, err
	}
	tr := u.locales.For(s.Language)

	userMsg := c.Append(model.RoleUser, text, u.estimator.Count(text))
	if err := u.convos.AppendMessage(ctx, nil, userMsg); err != nil {
		return SendResult{}, err
	}
	if !c.TitleEdited {
		c.Title = model.DeriveTitle(c.Messages, tr.T("default_title"))
	}

	payload, err := u.buildPayload(ctx, c, s)
	if err != nil {
		return SendResult{}, err
	}

	req := adapter.CompletionRequest{
		Model:           c.Model,
		System:          payload.System,
		History:         payload.History,
		MaxOutputTokens: u.maxOutputTokens,
		ThinkingBudget:  s.ThinkingEffort.Budget(),
	}

	resp, _, callErr := u.exec.run(ctx, c.UserID, req)
	latency := int(time.Since(start).Milliseconds())

	if callErr != nil {
		u.log.Error().Err(callErr).Str("conversation_id", c.ID).Msg("completion failed, sending apology")
		metrics.ObserveChatUsage(u.providerName, c.Model, 0, 0, 0, latency, false)
		apology := tr.T("assistant_apology")
		msg := c.Append(model.RoleAssistant, apology, u.estimator.Count(apology))
		if err := u.convos.AppendMessage(ctx, nil, msg); err != nil {
			return SendResult{}, err
		}
		if err := u.convos.Save(ctx, nil, c); err != nil {
			return SendResult{}, err
		}
		return SendResult{Message: *msg, Degraded: true}, nil
	}

	tokens := resp.Usage.CompletionTokens
	if tokens == 0 {
		tokens = u.estimator.Count(resp.Text)
	}
	metrics.ObserveChatUsage(u.providerName, c.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens, latency, true)

	msg := c.Append(model.RoleAssistant, resp.Text, tokens)
	if err := u.convos.AppendMessage(ctx, nil, msg); err != nil {
		return SendResult{}, err
	}
	if err := u.convos.Save(ctx, nil, c); err != nil {
		return SendResult{}, err
	}

	u.maybeScheduleSummary(c)
	return SendResult{Message: *msg}, nil
}

// RerollLast regenerates the most recent assistant turn. The prompt is
// rebuilt from the history up to (excluding) that turn, and everything
// after it is discarded together with the replacement in one transaction.
func (u *chatUC) RerollLast(ctx context.Context, conversationID string) (SendResult, error) {
	defer logging.TraceDuration(u.log, "ChatUC.RerollLast")()

	c, err := u.convos.FindByID(ctx, nil, conversationID)
	if err != nil {
		return SendResult{}, err
	}
	idx := c.LastAssistantIndex()
	if idx < 0 {
		return SendResult{}, domain.ErrNotAssistantMessage
	}

	s, err := u.settings.Find(ctx, nil, c.UserID)
	if err != nil {
		return SendResult{}, err
	}

	// Prompt context is the conversation as it stood before the rerolled turn.
	trimmed := *c
	trimmed.Messages = c.Messages[:idx]
	payload, err := u.buildPayload(ctx, &trimmed, s)
	if err != nil {
		return SendResult{}, err
	}

	req := adapter.CompletionRequest{
		Model:           c.Model,
		System:          payload.System,
		History:         payload.History,
		MaxOutputTokens: u.maxOutputTokens,
		ThinkingBudget:  s.ThinkingEffort.Budget(),
	}
	resp, _, err := u.exec.run(ctx, c.UserID, req)
	if err != nil {
		return SendResult{}, err
	}

	tokens := resp.Usage.CompletionTokens
	if tokens == 0 {
		tokens = u.estimator.Count(resp.Text)
	}
	if err := c.Reroll(idx, resp.Text, tokens); err != nil {
		return SendResult{}, err
	}

	err = u.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := u.convos.TruncateAfter(ctx, tx, c.ID, idx); err != nil {
			return err
		}
		if err := u.convos.ReplaceMessage(ctx, tx, c.ID, idx, resp.Text, tokens); err != nil {
			return err
		}
		return u.convos.Save(ctx, tx, c)
	})
	if err != nil {
		return SendResult{}, err
	}
	return SendResult{Message: c.Messages[idx]}, nil
}

func (u *chatUC) EditMessage(ctx context.Context, conversationID string, index int, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.ErrEmptyMessage
	}
	c, err := u.convos.FindByID(ctx, nil, conversationID)
	if err != nil {
		return err
	}
	if err := c.Edit(index, content); err != nil {
		return err
	}
	tokens := u.estimator.Count(content)
	if err := u.convos.ReplaceMessage(ctx, nil, c.ID, index, content, tokens); err != nil {
		return err
	}
	return u.convos.Save(ctx, nil, c)
}

func (u *chatUC) SetUserNote(ctx context.Context, conversationID, note string) error {
	return u.mutate(ctx, conversationID, func(c *model.Conversation) {
		c.UserNote = note
	})
}

func (u *chatUC) SetPersona(ctx context.Context, conversationID, name, instructions string) error {
	return u.mutate(ctx, conversationID, func(c *model.Conversation) {
		c.PersonaName = name
		c.PersonaInstructions = instructions
	})
}

func (u *chatUC) SetTitle(ctx context.Context, conversationID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.ErrInvalidArgument
	}
	return u.mutate(ctx, conversationID, func(c *model.Conversation) {
		c.Title = title
		c.TitleEdited = true
	})
}

func (u *chatUC) Get(ctx context.Context, conversationID string) (*model.Conversation, error) {
	return u.convos.FindByID(ctx, nil, conversationID)
}

func (u *chatUC) List(ctx context.Context, userID string) ([]*model.Conversation, error) {
	return u.convos.FindAllByUser(ctx, nil, userID)
}

func (u *chatUC) Window(ctx context.Context, conversationID string, start, count int) ([]model.ChatMessage, error) {
	return u.convos.LoadWindow(ctx, nil, conversationID, start, count)
}

func (u *chatUC) Delete(ctx context.Context, conversationID string) error {
	return u.convos.Delete(ctx, nil, conversationID)
}

func (u *chatUC) mutate(ctx context.Context, conversationID string, fn func(*model.Conversation)) error {
	c, err := u.convos.FindByID(ctx, nil, conversationID)
	if err != nil {
		return err
	}
	fn(c)
	c.UpdatedAt = time.Now()
	return u.convos.Save(ctx, nil, c)
}

// buildPayload assembles the provider payload: active lorebook entries
// against the recent window, persona block, and the bounded turn history.
func (u *chatUC) buildPayload(ctx context.Context, c *model.Conversation, s *model.UserSettings) (prompt.Payload, error) {
	recent := c.RecentWindow(u.builder.MaxTurns())

	entries, err := u.lorebook.FindAllByUser(ctx, nil, c.UserID)
	if err != nil {
		return prompt.Payload{}, err
	}
	active := model.DetectActive(recent, entries, s.LorebookCap)
	metrics.ObserveLorebookActive(len(active))

	return u.builder.Build(prompt.Input{
		PersonaName:         c.PersonaName,
		PersonaInstructions: c.PersonaInstructions,
		UserNote:            c.UserNote,
		ContextSummary:      c.ContextSummary,
		Lorebook:            active,
		ReplyLength:         s.ReplyLength,
		Recent:              recent,
	}), nil
}

// maybeScheduleSummary hands the conversation to the background
// summarizer once enough unsummarized messages pile up. Scheduling
// failures are logged and dropped: summarization is best-effort and must
// never surface on the chat path.
func (u *chatUC) maybeScheduleSummary(c *model.Conversation) {
	if u.summaries == nil || u.runner == nil {
		return
	}
	if c.UnsummarizedCount() < u.summaryThreshold {
		return
	}
	id := c.ID
	if err := u.runner.Submit(func(ctx context.Context) error {
		_, err := u.summaries.SummarizeIfDue(ctx, id)
		return err
	}); err != nil {
		u.log.Warn().Err(err).Str("conversation_id", id).Msg("summary task dropped")
	}
}
