package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"

	"google.golang.org/genai"

	"persona-ai-chat/internal/domain/model"
	"persona-ai-chat/internal/domain/ports/adapter"
)

var _ adapter.CompletionProvider = (*GeminiAdapter)(nil)

// GeminiAdapter talks to the Gemini API through the official SDK. Clients
// are cached per credential because the key pool rotates between requests.
type GeminiAdapter struct {
	baseURL      string
	defaultModel string

	mu      sync.Mutex
	clients map[string]*genai.Client // keyed by credential fingerprint
}

func NewGeminiAdapter(baseURL, defaultModel string) *GeminiAdapter {
	return &GeminiAdapter{
		baseURL:      baseURL,
		defaultModel: defaultModel,
		clients:      make(map[string]*genai.Client),
	}
}

func (g *GeminiAdapter) clientFor(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, &adapter.ProviderError{Kind: adapter.KindAuth, Provider: "gemini", Err: errors.New("empty api key")}
	}
	sum := sha256.Sum256([]byte(apiKey))
	fp := hex.EncodeToString(sum[:8])

	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.clients[fp]; ok {
		return c, nil
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: g.baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	g.clients[fp] = c
	return c, nil
}

func (g *GeminiAdapter) Complete(ctx context.Context, req adapter.CompletionRequest) (adapter.CompletionResponse, error) {
	if len(req.History) == 0 {
		return adapter.CompletionResponse{}, errors.New("gemini: no messages")
	}
	client, err := g.clientFor(ctx, req.Credential)
	if err != nil {
		return adapter.CompletionResponse{}, err
	}

	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(req.MaxOutputTokens),
	}
	if s := strings.TrimSpace(req.System); s != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: s}}}
	}
	if req.ThinkingBudget > 0 {
		budget := int32(req.ThinkingBudget)
		cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: &budget}
	}

	resp, err := client.Models.GenerateContent(ctx, modelOrDefault(req.Model, g.defaultModel), toGenAIHistory(req.History), cfg)
	if err != nil {
		return adapter.CompletionResponse{}, g.classify(err)
	}

	text := ""
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, p := range resp.Candidates[0].Content.Parts {
			if p != nil && p.Text != "" && !p.Thought {
				text += p.Text
			}
		}
	}
	if strings.TrimSpace(text) == "" {
		// An empty body is never surfaced as success.
		return adapter.CompletionResponse{}, emptyResponse("gemini")
	}

	out := adapter.CompletionResponse{Text: text}
	if resp.UsageMetadata != nil {
		out.Usage = adapter.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out, nil
}

func (g *GeminiAdapter) ListModels(ctx context.Context, credential string) ([]string, error) {
	client, err := g.clientFor(ctx, credential)
	if err != nil {
		return nil, err
	}
	var out []string
	for m := range client.Models.All(ctx) {
		if m.Name != "" {
			out = append(out, m.Name)
		}
	}
	if len(out) == 0 && g.defaultModel != "" {
		// Best-effort fallback to default
		out = []string{g.defaultModel}
	}
	return out, nil
}

func (g *GeminiAdapter) classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus("gemini", apiErr.Code, retryDelayFromDetails(apiErr.Details), err)
	}
	return &adapter.ProviderError{Kind: adapter.KindOther, Provider: "gemini", Err: err}
}

func toGenAIHistory(msgs []adapter.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := genai.RoleUser
		if strings.ToLower(m.Role) == model.RoleAssistant {
			role = genai.RoleModel
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return out
}

func modelOrDefault(modelName, def string) string {
	if strings.TrimSpace(modelName) != "" {
		return modelName
	}
	return def
}
