package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"persona-ai-chat/internal/domain/model"
	"persona-ai-chat/internal/domain/ports/adapter"
)

var _ adapter.CompletionProvider = (*OpenAIAdapter)(nil)

// OpenAIAdapter implements the completion port over the Chat Completions
// API, used for OpenAI-compatible model selectors. The client is stateless
// per call; the credential travels in the request like the Gemini adapter.
type OpenAIAdapter struct {
	baseURL      string
	defaultModel string
}

func NewOpenAIAdapter(baseURL, defaultModel string) *OpenAIAdapter {
	return &OpenAIAdapter{baseURL: baseURL, defaultModel: defaultModel}
}

func (o *OpenAIAdapter) clientFor(apiKey string) (openai.Client, error) {
	if apiKey == "" {
		return openai.Client{}, &adapter.ProviderError{Kind: adapter.KindAuth, Provider: "openai", Err: errors.New("empty api key")}
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if o.baseURL != "" {
		opts = append(opts, option.WithBaseURL(o.baseURL))
	}
	return openai.NewClient(opts...), nil
}

func (o *OpenAIAdapter) Complete(ctx context.Context, req adapter.CompletionRequest) (adapter.CompletionResponse, error) {
	if len(req.History) == 0 {
		return adapter.CompletionResponse{}, errors.New("openai: no messages")
	}
	client, err := o.clientFor(req.Credential)
	if err != nil {
		return adapter.CompletionResponse{}, err
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+1)
	if s := strings.TrimSpace(req.System); s != "" {
		msgs = append(msgs, openai.SystemMessage(s))
	}
	for _, m := range req.History {
		if strings.ToLower(m.Role) == model.RoleAssistant {
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		} else {
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(modelOrDefault(req.Model, o.defaultModel)),
		Messages: msgs,
	}
	if req.MaxOutputTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxOutputTokens))
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return adapter.CompletionResponse{}, o.classify(err)
	}
	if resp == nil || len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return adapter.CompletionResponse{}, emptyResponse("openai")
	}

	return adapter.CompletionResponse{
		Text: resp.Choices[0].Message.Content,
		Usage: adapter.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

func (o *OpenAIAdapter) ListModels(ctx context.Context, credential string) ([]string, error) {
	client, err := o.clientFor(credential)
	if err != nil {
		return nil, err
	}
	page, err := client.Models.List(ctx)
	if err != nil {
		return []string{o.defaultModel}, nil
	}
	var out []string
	for _, m := range page.Data {
		out = append(out, m.ID)
	}
	if len(out) == 0 {
		out = []string{o.defaultModel}
	}
	return out, nil
}

func (o *OpenAIAdapter) classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		var retryAfter time.Duration
		if apiErr.Response != nil {
			retryAfter = retryAfterHeader(apiErr.Response.Header)
		}
		return classifyStatus("openai", apiErr.StatusCode, retryAfter, err)
	}
	return &adapter.ProviderError{Kind: adapter.KindOther, Provider: "openai", Err: err}
}
