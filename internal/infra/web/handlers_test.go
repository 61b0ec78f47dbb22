//go:build !integration

package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"persona-ai-chat/internal/domain"
	"persona-ai-chat/internal/domain/model"
	"persona-ai-chat/internal/domain/ports/adapter"
	"persona-ai-chat/internal/usecase"
)

type testEnv struct {
	srv   *Server
	chat  *stubChat
	creds *stubCreds
	mux   http.Handler
}

func newTestEnv(t *testing.T, convos ...*model.Conversation) *testEnv {
	t.Helper()
	chat := newStubChat(convos...)
	creds := &stubCreds{}
	srv := NewServer(ServerDeps{
		ChatUC:     chat,
		SummaryUC:  &stubSummary{},
		LorebookUC: newStubLorebook(),
		CredUC:     creds,
		SettingsUC: stubSettings{},
		Provider:   stubProvider{},
		Auth:       NewAuthManager("test-secret-test-secret", false, "", time.Hour),
		Limiter:    nil,
	}, newLogger())
	return &testEnv{srv: srv, chat: chat, creds: creds, mux: srv.Routes()}
}

// login mints a session token for uid via the session endpoint.
func (e *testEnv) login(t *testing.T, uid string) string {
	t.Helper()
	body := bytes.NewBufferString(`{"user_id":"` + uid + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/session", body)
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: want 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("login decode: %v", err)
	}
	return resp.Token
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func seedConvo(id, userID string) *model.Conversation {
	c := model.NewConversation(id, userID, "test-model", "New Chat")
	c.Append(model.RoleUser, "hello", 2)
	c.Append(model.RoleAssistant, "hi there", 2)
	return c
}

func TestAuth(t *testing.T) {
	t.Run("missing token is 401", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(t, http.MethodGet, "/api/v1/conversations", "", "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("want 401, got %d", rec.Code)
		}
	})

	t.Run("garbage token is 401", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(t, http.MethodGet, "/api/v1/conversations", "not-a-jwt", "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("want 401, got %d", rec.Code)
		}
	})

	t.Run("minted token passes", func(t *testing.T) {
		env := newTestEnv(t)
		token := env.login(t, "u1")
		rec := env.do(t, http.MethodGet, "/api/v1/conversations", token, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d body=%s", rec.Code, rec.Body.String())
		}
	})

	t.Run("health needs no auth", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(t, http.MethodGet, "/health", "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d", rec.Code)
		}
	})
}

func TestConversations(t *testing.T) {
	t.Run("create returns 201", func(t *testing.T) {
		env := newTestEnv(t)
		token := env.login(t, "u1")
		rec := env.do(t, http.MethodPost, "/api/v1/conversations", token,
			`{"model":"test-model","persona_name":"Mira"}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("want 201, got %d body=%s", rec.Code, rec.Body.String())
		}
		var c struct {
			UserID      string `json:"user_id"`
			PersonaName string `json:"persona_name"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&c); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if c.UserID != "u1" || c.PersonaName != "Mira" {
			t.Fatalf("unexpected conversation: %+v", c)
		}
	})

	t.Run("detail body uses snake_case keys", func(t *testing.T) {
		env := newTestEnv(t, seedConvo("c1", "u1"))
		token := env.login(t, "u1")
		rec := env.do(t, http.MethodGet, "/api/v1/conversations/c1", token, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d", rec.Code)
		}
		body := rec.Body.String()
		for _, key := range []string{`"summary_checkpoint"`, `"persona_name"`, `"user_note"`, `"messages"`} {
			if !strings.Contains(body, key) {
				t.Fatalf("missing key %s in %s", key, body)
			}
		}
		if strings.Contains(body, `"SummaryCheckpoint"`) || strings.Contains(body, `"UserID"`) {
			t.Fatalf("Go-cased key leaked into body: %s", body)
		}
	})

	t.Run("foreign conversation is 404", func(t *testing.T) {
		env := newTestEnv(t, seedConvo("c1", "someone-else"))
		token := env.login(t, "u1")
		rec := env.do(t, http.MethodGet, "/api/v1/conversations/c1", token, "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("want 404, got %d", rec.Code)
		}
	})

	t.Run("unknown conversation is 404", func(t *testing.T) {
		env := newTestEnv(t)
		token := env.login(t, "u1")
		rec := env.do(t, http.MethodGet, "/api/v1/conversations/nope", token, "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("want 404, got %d", rec.Code)
		}
	})

	t.Run("delete returns 204", func(t *testing.T) {
		env := newTestEnv(t, seedConvo("c1", "u1"))
		token := env.login(t, "u1")
		rec := env.do(t, http.MethodDelete, "/api/v1/conversations/c1", token, "")
		if rec.Code != http.StatusNoContent {
			t.Fatalf("want 204, got %d", rec.Code)
		}
	})
}

func TestMessages(t *testing.T) {
	t.Run("send returns reply", func(t *testing.T) {
		env := newTestEnv(t, seedConvo("c1", "u1"))
		token := env.login(t, "u1")
		rec := env.do(t, http.MethodPost, "/api/v1/conversations/c1/messages", token,
			`{"text":"how are you"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d body=%s", rec.Code, rec.Body.String())
		}
		var resp struct {
			Message struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"message"`
			Degraded bool `json:"degraded"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Message.Content != "echo: how are you" {
			t.Fatalf("unexpected reply: %+v", resp.Message)
		}
	})

	t.Run("degraded reply keeps 200 with flag", func(t *testing.T) {
		env := newTestEnv(t, seedConvo("c1", "u1"))
		env.chat.sendFn = func(ctx context.Context, conversationID, text string) (usecase.SendResult, error) {
			return usecase.SendResult{
				Message:  model.ChatMessage{ConversationID: conversationID, Role: model.RoleAssistant, Content: "sorry"},
				Degraded: true,
			}, nil
		}
		token := env.login(t, "u1")
		rec := env.do(t, http.MethodPost, "/api/v1/conversations/c1/messages", token, `{"text":"hi"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d", rec.Code)
		}
		var resp struct {
			Degraded bool `json:"degraded"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !resp.Degraded {
			t.Fatal("degraded flag missing")
		}
	})

	t.Run("empty text maps to 400", func(t *testing.T) {
		env := newTestEnv(t, seedConvo("c1", "u1"))
		env.chat.sendFn = func(ctx context.Context, conversationID, text string) (usecase.SendResult, error) {
			return usecase.SendResult{}, domain.ErrEmptyMessage
		}
		token := env.login(t, "u1")
		rec := env.do(t, http.MethodPost, "/api/v1/conversations/c1/messages", token, `{"text":""}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("want 400, got %d", rec.Code)
		}
	})

	t.Run("drained credential pool maps to 429", func(t *testing.T) {
		env := newTestEnv(t, seedConvo("c1", "u1"))
		env.chat.sendFn = func(ctx context.Context, conversationID, text string) (usecase.SendResult, error) {
			return usecase.SendResult{}, domain.ErrNoCredential
		}
		token := env.login(t, "u1")
		rec := env.do(t, http.MethodPost, "/api/v1/conversations/c1/messages", token, `{"text":"hi"}`)
		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("want 429, got %d", rec.Code)
		}
	})

	t.Run("quota error carries retry-after guidance", func(t *testing.T) {
		env := newTestEnv(t, seedConvo("c1", "u1"))
		env.chat.sendFn = func(ctx context.Context, conversationID, text string) (usecase.SendResult, error) {
			return usecase.SendResult{}, &adapter.ProviderError{
				Kind:       adapter.KindQuota,
				Provider:   "gemini",
				RetryAfter: 26 * time.Second,
			}
		}
		token := env.login(t, "u1")
		rec := env.do(t, http.MethodPost, "/api/v1/conversations/c1/messages", token, `{"text":"hi"}`)
		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("want 429, got %d", rec.Code)
		}
		if got := rec.Header().Get("Retry-After"); got != "26" {
			t.Fatalf("want Retry-After 26, got %q", got)
		}
	})

	t.Run("edit bad index maps to 400", func(t *testing.T) {
		env := newTestEnv(t, seedConvo("c1", "u1"))
		token := env.login(t, "u1")
		rec := env.do(t, http.MethodPatch, "/api/v1/conversations/c1/messages/99", token,
			`{"content":"edited"}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("want 400, got %d body=%s", rec.Code, rec.Body.String())
		}
	})

	t.Run("window pagination", func(t *testing.T) {
		env := newTestEnv(t, seedConvo("c1", "u1"))
		token := env.login(t, "u1")
		rec := env.do(t, http.MethodGet, "/api/v1/conversations/c1/messages?start=1&count=5", token, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d", rec.Code)
		}
		var resp struct {
			Data []struct {
				Content string `json:"content"`
			} `json:"data"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(resp.Data) != 1 || resp.Data[0].Content != "hi there" {
			t.Fatalf("unexpected window: %+v", resp.Data)
		}
	})
}

func TestLorebookAndSettings(t *testing.T) {
	t.Run("create lorebook entry", func(t *testing.T) {
		env := newTestEnv(t)
		token := env.login(t, "u1")
		rec := env.do(t, http.MethodPost, "/api/v1/lorebook", token,
			`{"keywords":["dragon"],"content":"Dragons fear silver."}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("want 201, got %d body=%s", rec.Code, rec.Body.String())
		}
	})

	t.Run("invalid entry maps to 400", func(t *testing.T) {
		env := newTestEnv(t)
		token := env.login(t, "u1")
		rec := env.do(t, http.MethodPost, "/api/v1/lorebook", token,
			`{"keywords":["  "],"content":"x"}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("want 400, got %d", rec.Code)
		}
	})

	t.Run("settings roundtrip", func(t *testing.T) {
		env := newTestEnv(t)
		token := env.login(t, "u1")
		rec := env.do(t, http.MethodPut, "/api/v1/settings", token, `{"reply_length":"brief"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d body=%s", rec.Code, rec.Body.String())
		}
		var s struct {
			ReplyLength string `json:"reply_length"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&s); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if s.ReplyLength != string(model.ReplyBrief) {
			t.Fatalf("want brief, got %s", s.ReplyLength)
		}
	})

	t.Run("unknown reply length maps to 400", func(t *testing.T) {
		env := newTestEnv(t)
		token := env.login(t, "u1")
		rec := env.do(t, http.MethodPut, "/api/v1/settings", token, `{"reply_length":"gigantic"}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("want 400, got %d", rec.Code)
		}
	})
}

func TestCredentials(t *testing.T) {
	t.Run("create never echoes the secret", func(t *testing.T) {
		env := newTestEnv(t)
		token := env.login(t, "u1")
		rec := env.do(t, http.MethodPost, "/api/v1/credentials", token,
			`{"secret":"sk-very-secret","display_name":"main"}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("want 201, got %d", rec.Code)
		}
		if bytes.Contains(rec.Body.Bytes(), []byte("sk-very-secret")) {
			t.Fatal("secret leaked into the response body")
		}
	})

	t.Run("models endpoint uses selected credential", func(t *testing.T) {
		env := newTestEnv(t)
		c, _ := model.NewAPICredential("cred-1", "u1", "sk-one", "main")
		env.creds.creds = append(env.creds.creds, c)
		token := env.login(t, "u1")
		rec := env.do(t, http.MethodGet, "/api/v1/models", token, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d body=%s", rec.Code, rec.Body.String())
		}
	})

	t.Run("models without credentials maps to 429", func(t *testing.T) {
		env := newTestEnv(t)
		token := env.login(t, "u1")
		rec := env.do(t, http.MethodGet, "/api/v1/models", token, "")
		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("want 429, got %d", rec.Code)
		}
	})
}
