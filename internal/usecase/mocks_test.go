//go:build !integration

package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"persona-ai-chat/internal/domain"
	"persona-ai-chat/internal/domain/model"
	"persona-ai-chat/internal/domain/ports/adapter"
	"persona-ai-chat/internal/domain/ports/repository"
)

func newLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

//
// ---------------- in-memory repositories ----------------
//

type memConvoRepo struct {
	mu     sync.Mutex
	byID   map[string]*model.Conversation
	errGet error
}

func newMemConvoRepo() *memConvoRepo {
	return &memConvoRepo{byID: map[string]*model.Conversation{}}
}

func (m *memConvoRepo) put(c *model.Conversation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	cp.Messages = append([]model.ChatMessage(nil), c.Messages...)
	m.byID[c.ID] = &cp
}

func (m *memConvoRepo) Save(ctx context.Context, qx any, c *model.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.byID[c.ID]
	if !ok {
		cp := *c
		cp.Messages = append([]model.ChatMessage(nil), c.Messages...)
		m.byID[c.ID] = &cp
		return nil
	}
	// metadata upsert: message log is owned by AppendMessage and friends
	stored.Title = c.Title
	stored.TitleEdited = c.TitleEdited
	stored.PersonaName = c.PersonaName
	stored.PersonaInstructions = c.PersonaInstructions
	stored.UserNote = c.UserNote
	stored.Model = c.Model
	stored.ContextSummary = c.ContextSummary
	if c.SummaryCheckpoint > stored.SummaryCheckpoint {
		stored.SummaryCheckpoint = c.SummaryCheckpoint
	}
	stored.UpdatedAt = c.UpdatedAt
	return nil
}

func (m *memConvoRepo) AppendMessage(ctx context.Context, qx any, msg *model.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[msg.ConversationID]
	if !ok {
		return domain.ErrNotFound
	}
	c.Messages = append(c.Messages, *msg)
	return nil
}

func (m *memConvoRepo) ReplaceMessage(ctx context.Context, qx any, conversationID string, index int, content string, tokens int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[conversationID]
	if !ok || index < 0 || index >= len(c.Messages) {
		return domain.ErrNotFound
	}
	c.Messages[index].Content = content
	c.Messages[index].Tokens = tokens
	return nil
}

func (m *memConvoRepo) TruncateAfter(ctx context.Context, qx any, conversationID string, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[conversationID]
	if !ok {
		return domain.ErrNotFound
	}
	if index+1 < len(c.Messages) {
		c.Messages = c.Messages[:index+1]
	}
	if c.SummaryCheckpoint > len(c.Messages) {
		c.SummaryCheckpoint = len(c.Messages)
	}
	return nil
}

func (m *memConvoRepo) UpdateSummary(ctx context.Context, qx any, conversationID, summary string, checkpoint int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[conversationID]
	if !ok {
		return domain.ErrNotFound
	}
	c.ContextSummary = summary
	if checkpoint > c.SummaryCheckpoint {
		c.SummaryCheckpoint = checkpoint
	}
	return nil
}

func (m *memConvoRepo) FindByID(ctx context.Context, qx any, id string) (*model.Conversation, error) {
	if m.errGet != nil {
		return nil, m.errGet
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	cp.Messages = append([]model.ChatMessage(nil), c.Messages...)
	return &cp, nil
}

func (m *memConvoRepo) FindAllByUser(ctx context.Context, qx any, userID string) ([]*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Conversation
	for _, c := range m.byID {
		if c.UserID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memConvoRepo) LoadWindow(ctx context.Context, qx any, conversationID string, start, count int) ([]model.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[conversationID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if start >= len(c.Messages) {
		return nil, nil
	}
	end := start + count
	if end > len(c.Messages) {
		end = len(c.Messages)
	}
	return append([]model.ChatMessage(nil), c.Messages[start:end]...), nil
}

func (m *memConvoRepo) Delete(ctx context.Context, qx any, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

type memLorebookRepo struct {
	mu   sync.Mutex
	byID map[string]*model.LorebookEntry
}

func newMemLorebookRepo() *memLorebookRepo {
	return &memLorebookRepo{byID: map[string]*model.LorebookEntry{}}
}

func (m *memLorebookRepo) Save(ctx context.Context, qx any, e *model.LorebookEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.byID[e.ID] = &cp
	return nil
}

func (m *memLorebookRepo) FindByID(ctx context.Context, qx any, id string) (*model.LorebookEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memLorebookRepo) FindAllByUser(ctx context.Context, qx any, userID string) ([]*model.LorebookEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.LorebookEntry
	for _, e := range m.byID {
		if e.UserID == userID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memLorebookRepo) Delete(ctx context.Context, qx any, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

type memSettingsRepo struct {
	mu     sync.Mutex
	byUser map[string]*model.UserSettings
}

func newMemSettingsRepo() *memSettingsRepo {
	return &memSettingsRepo{byUser: map[string]*model.UserSettings{}}
}

func (m *memSettingsRepo) Find(ctx context.Context, qx any, userID string) (*model.UserSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.byUser[userID]; ok {
		cp := *s
		return &cp, nil
	}
	return model.DefaultSettings(userID), nil
}

func (m *memSettingsRepo) Save(ctx context.Context, qx any, s *model.UserSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.byUser[s.UserID] = &cp
	return nil
}

type memCredRepo struct {
	mu    sync.Mutex
	creds []*model.APICredential
}

func newMemCredRepo(creds ...*model.APICredential) *memCredRepo {
	r := &memCredRepo{}
	for _, c := range creds {
		cp := *c
		r.creds = append(r.creds, &cp)
	}
	return r
}

func (m *memCredRepo) find(id string) *model.APICredential {
	for _, c := range m.creds {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (m *memCredRepo) Save(ctx context.Context, qx any, c *model.APICredential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing := m.find(c.ID); existing != nil {
		*existing = *c
		return nil
	}
	cp := *c
	m.creds = append(m.creds, &cp)
	return nil
}

func (m *memCredRepo) FindByID(ctx context.Context, qx any, id string) (*model.APICredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.find(id); c != nil {
		cp := *c
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memCredRepo) FindAllByUser(ctx context.Context, qx any, userID string) ([]*model.APICredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.APICredential
	for _, c := range m.creds {
		if c.UserID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memCredRepo) MarkQuotaExceeded(ctx context.Context, qx any, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.find(id); c != nil {
		t := at
		c.QuotaExceededAt = &t
	}
	return nil
}

func (m *memCredRepo) ClearQuotaExceeded(ctx context.Context, qx any, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.find(id); c != nil {
		c.QuotaExceededAt = nil
	}
	return nil
}

func (m *memCredRepo) TouchLastUsed(ctx context.Context, qx any, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.find(id); c != nil {
		c.LastUsedAt = at
	}
	return nil
}

func (m *memCredRepo) Delete(ctx context.Context, qx any, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.creds {
		if c.ID == id {
			m.creds = append(m.creds[:i], m.creds[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

//
// ---------------- provider / infra fakes ----------------
//

// scriptedProvider replays a queue of canned outcomes and records the
// credentials it was called with.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []adapter.CompletionResponse
	errs      []error
	calls     []adapter.CompletionRequest
}

func (p *scriptedProvider) script(resp adapter.CompletionResponse, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, resp)
	p.errs = append(p.errs, err)
}

func (p *scriptedProvider) Complete(ctx context.Context, req adapter.CompletionRequest) (adapter.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)
	if len(p.responses) == 0 {
		return adapter.CompletionResponse{Text: "ok"}, nil
	}
	resp, err := p.responses[0], p.errs[0]
	p.responses, p.errs = p.responses[1:], p.errs[1:]
	return resp, err
}

func (p *scriptedProvider) ListModels(ctx context.Context, credential string) ([]string, error) {
	return []string{"test-model"}, nil
}

func quotaErr() error {
	return &adapter.ProviderError{Kind: adapter.KindQuota, Provider: "test", StatusCode: 429}
}

func authErr() error {
	return &adapter.ProviderError{Kind: adapter.KindAuth, Provider: "test", StatusCode: 401}
}

// inlineRunner executes submitted tasks synchronously so tests see their
// effects without sleeping.
type inlineRunner struct {
	submitted int
}

func (r *inlineRunner) Submit(task func(ctx context.Context) error) error {
	r.submitted++
	return task(context.Background())
}

// noopLocker always grants the lock.
type noopLocker struct{}

func (noopLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "tok", nil
}
func (noopLocker) Unlock(ctx context.Context, key, token string) error { return nil }

// heldLocker simulates a lock owned by another run.
type heldLocker struct{}

func (heldLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "", domain.ErrSummaryInFlight
}
func (heldLocker) Unlock(ctx context.Context, key, token string) error { return nil }

type mockTxManager struct{}

func (mockTxManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, struct{}{})
}

// wordEstimator is deterministic and cheap: one token per 4 bytes.
type wordEstimator struct{}

func (wordEstimator) Count(text string) int { return len(text)/4 + 1 }

func lockKeyFn(id string) string { return "summary_lock:" + id }
