package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Message represents a chat turn in provider-neutral form.
type Message struct {
	Role    string `json:"role"` // "user" | "assistant"
	Content string `json:"content"`
}

// Usage for a single completion call, as reported by the provider.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything one provider call needs. Credential
// is the raw API key for this attempt; rotation happens above the port.
type CompletionRequest struct {
	Model           string
	Credential      string
	System          string // persona block, sent as system instruction
	History         []Message
	MaxOutputTokens int
	ThinkingBudget  int // 0 disables provider "thinking"
}

type CompletionResponse struct {
	Text  string
	Usage Usage
}

// CompletionProvider is the port for LLM completion. Implementations must
// classify failures via ProviderError so callers can distinguish quota,
// auth, and transient conditions.
type CompletionProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	ListModels(ctx context.Context, credential string) ([]string, error)
}

// ErrorKind partitions provider failures for the recovery policy.
type ErrorKind string

const (
	// KindQuota: rate/quota limit (HTTP 429 equivalent). Recovered by
	// credential rotation.
	KindQuota ErrorKind = "quota"
	// KindAuth: invalid credential (401/403). Never retried with the same
	// credential; surfaced as a configuration error.
	KindAuth ErrorKind = "auth"
	// KindOverloaded: transient unavailability (503). Retried with backoff
	// before any credential switch.
	KindOverloaded ErrorKind = "overloaded"
	// KindEmpty: malformed or empty response body. Hard failure; never
	// surfaced as an empty success.
	KindEmpty ErrorKind = "empty"
	KindOther ErrorKind = "other"
)

// ProviderError wraps a provider failure with its classification.
type ProviderError struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int
	RetryAfter time.Duration // 0 when the provider gave no guidance
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// KindOf classifies any error; non-provider errors report KindOther.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindOther
}

func IsQuota(err error) bool      { return KindOf(err) == KindQuota }
func IsAuth(err error) bool       { return KindOf(err) == KindAuth }
func IsOverloaded(err error) bool { return KindOf(err) == KindOverloaded }
