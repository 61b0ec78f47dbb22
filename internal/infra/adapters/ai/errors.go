package ai

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"persona-ai-chat/internal/domain/ports/adapter"
)

// classifyStatus maps an HTTP-ish status code from a provider SDK onto the
// recovery taxonomy. Unknown codes stay KindOther so they are surfaced
// instead of silently retried.
func classifyStatus(provider string, code int, retryAfter time.Duration, err error) *adapter.ProviderError {
	kind := adapter.KindOther
	switch {
	case code == http.StatusTooManyRequests:
		kind = adapter.KindQuota
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		kind = adapter.KindAuth
	case code == http.StatusServiceUnavailable || code == http.StatusInternalServerError || code == http.StatusGatewayTimeout:
		kind = adapter.KindOverloaded
	}
	return &adapter.ProviderError{
		Kind:       kind,
		Provider:   provider,
		StatusCode: code,
		RetryAfter: retryAfter,
		Err:        err,
	}
}

func emptyResponse(provider string) *adapter.ProviderError {
	return &adapter.ProviderError{Kind: adapter.KindEmpty, Provider: provider}
}

// retryAfterHeader parses a Retry-After response header, either
// delta-seconds or an HTTP-date. 0 means no guidance.
func retryAfterHeader(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// retryDelayFromDetails pulls google.rpc.RetryInfo's retryDelay (e.g.
// "26s") out of an API error detail list. 0 means no guidance.
func retryDelayFromDetails(details []map[string]any) time.Duration {
	for _, detail := range details {
		t, _ := detail["@type"].(string)
		if !strings.HasSuffix(t, "google.rpc.RetryInfo") {
			continue
		}
		if s, ok := detail["retryDelay"].(string); ok {
			if d, err := time.ParseDuration(s); err == nil && d > 0 {
				return d
			}
		}
	}
	return 0
}
