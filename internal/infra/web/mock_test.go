//go:build !integration

package web

import (
	"context"

	"github.com/rs/zerolog"

	"persona-ai-chat/internal/domain"
	"persona-ai-chat/internal/domain/model"
	"persona-ai-chat/internal/domain/ports/adapter"
	"persona-ai-chat/internal/usecase"
)

func newLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

//
// ---------------- usecase stubs ----------------
//

type stubChat struct {
	convos map[string]*model.Conversation

	sendFn func(ctx context.Context, conversationID, text string) (usecase.SendResult, error)
}

func newStubChat(convos ...*model.Conversation) *stubChat {
	s := &stubChat{convos: map[string]*model.Conversation{}}
	for _, c := range convos {
		s.convos[c.ID] = c
	}
	return s
}

func (s *stubChat) StartConversation(ctx context.Context, userID, modelName, personaName, personaInstructions string) (*model.Conversation, error) {
	c := model.NewConversation("new-conv", userID, modelName, "New Chat")
	c.PersonaName = personaName
	c.PersonaInstructions = personaInstructions
	s.convos[c.ID] = c
	return c, nil
}

func (s *stubChat) SendMessage(ctx context.Context, conversationID, text string) (usecase.SendResult, error) {
	if s.sendFn != nil {
		return s.sendFn(ctx, conversationID, text)
	}
	return usecase.SendResult{Message: model.ChatMessage{
		ConversationID: conversationID, Index: 1, Role: model.RoleAssistant, Content: "echo: " + text,
	}}, nil
}

func (s *stubChat) RerollLast(ctx context.Context, conversationID string) (usecase.SendResult, error) {
	return usecase.SendResult{Message: model.ChatMessage{
		ConversationID: conversationID, Index: 1, Role: model.RoleAssistant, Content: "rerolled",
	}}, nil
}

func (s *stubChat) EditMessage(ctx context.Context, conversationID string, index int, content string) error {
	c, ok := s.convos[conversationID]
	if !ok {
		return domain.ErrNotFound
	}
	return c.Edit(index, content)
}

func (s *stubChat) SetUserNote(ctx context.Context, conversationID, note string) error {
	return nil
}
func (s *stubChat) SetPersona(ctx context.Context, conversationID, name, instructions string) error {
	return nil
}
func (s *stubChat) SetTitle(ctx context.Context, conversationID, title string) error {
	return nil
}

func (s *stubChat) Get(ctx context.Context, conversationID string) (*model.Conversation, error) {
	c, ok := s.convos[conversationID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

func (s *stubChat) List(ctx context.Context, userID string) ([]*model.Conversation, error) {
	var out []*model.Conversation
	for _, c := range s.convos {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *stubChat) Window(ctx context.Context, conversationID string, start, count int) ([]model.ChatMessage, error) {
	c, ok := s.convos[conversationID]
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
	return c.Messages[start:end], nil
}

func (s *stubChat) Delete(ctx context.Context, conversationID string) error {
	if _, ok := s.convos[conversationID]; !ok {
		return domain.ErrNotFound
	}
	delete(s.convos, conversationID)
	return nil
}

type stubSummary struct{ err error }

func (s *stubSummary) SummarizeIfDue(ctx context.Context, conversationID string) (bool, error) {
	return s.err == nil, s.err
}
func (s *stubSummary) SummarizeNow(ctx context.Context, conversationID string) error { return s.err }

type stubLorebook struct {
	entries map[string]*model.LorebookEntry
}

func newStubLorebook(entries ...*model.LorebookEntry) *stubLorebook {
	s := &stubLorebook{entries: map[string]*model.LorebookEntry{}}
	for _, e := range entries {
		s.entries[e.ID] = e
	}
	return s
}

func (s *stubLorebook) Create(ctx context.Context, userID string, keywords []string, content string) (*model.LorebookEntry, error) {
	e, err := model.NewLorebookEntry("new-entry", userID, keywords, content)
	if err != nil {
		return nil, err
	}
	s.entries[e.ID] = e
	return e, nil
}

func (s *stubLorebook) Update(ctx context.Context, id string, upd usecase.LorebookUpdate) (*model.LorebookEntry, error) {
	e, ok := s.entries[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if upd.Enabled != nil {
		e.Enabled = *upd.Enabled
	}
	return e, nil
}

func (s *stubLorebook) Get(ctx context.Context, id string) (*model.LorebookEntry, error) {
	e, ok := s.entries[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return e, nil
}

func (s *stubLorebook) List(ctx context.Context, userID string) ([]*model.LorebookEntry, error) {
	var out []*model.LorebookEntry
	for _, e := range s.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *stubLorebook) Delete(ctx context.Context, id string) error {
	delete(s.entries, id)
	return nil
}

type stubCreds struct {
	creds     []*model.APICredential
	selectErr error
}

func (s *stubCreds) Add(ctx context.Context, userID, secret, displayName string) (*model.APICredential, error) {
	c, err := model.NewAPICredential("new-cred", userID, secret, displayName)
	if err != nil {
		return nil, err
	}
	s.creds = append(s.creds, c)
	return c, nil
}

func (s *stubCreds) List(ctx context.Context, userID string) ([]*model.APICredential, error) {
	var out []*model.APICredential
	for _, c := range s.creds {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *stubCreds) Remove(ctx context.Context, id string) error { return nil }
func (s *stubCreds) Pin(ctx context.Context, userID, credentialID string) error {
	return nil
}

func (s *stubCreds) Select(ctx context.Context, userID string, tried map[string]bool) (*model.APICredential, error) {
	if s.selectErr != nil {
		return nil, s.selectErr
	}
	for _, c := range s.creds {
		if c.UserID == userID {
			return c, nil
		}
	}
	return nil, domain.ErrNoCredential
}

func (s *stubCreds) MarkExhausted(ctx context.Context, credentialID string) error { return nil }
func (s *stubCreds) MarkUsed(ctx context.Context, credentialID string) error      { return nil }

type stubSettings struct{}

func (stubSettings) Get(ctx context.Context, userID string) (*model.UserSettings, error) {
	return model.DefaultSettings(userID), nil
}

func (stubSettings) Update(ctx context.Context, userID string, upd usecase.SettingsUpdate) (*model.UserSettings, error) {
	s := model.DefaultSettings(userID)
	if upd.ReplyLength != nil {
		if !upd.ReplyLength.Valid() {
			return nil, domain.ErrInvalidArgument
		}
		s.ReplyLength = *upd.ReplyLength
	}
	return s, nil
}

type stubProvider struct{}

func (stubProvider) Complete(ctx context.Context, req adapter.CompletionRequest) (adapter.CompletionResponse, error) {
	return adapter.CompletionResponse{Text: "ok"}, nil
}

func (stubProvider) ListModels(ctx context.Context, credential string) ([]string, error) {
	return []string{"gemini-2.0-flash", "gemini-2.5-pro"}, nil
}
