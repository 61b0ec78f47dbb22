package model

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"persona-ai-chat/internal/domain"
)

const (
	LorebookMaxKeywords     = 5
	LorebookMaxContentChars = 500
)

// LorebookEntry is a keyword-triggered snippet of conditional context.
// It activates when any keyword appears (case-insensitively) in the
// recent-window text of a conversation.
type LorebookEntry struct {
	ID        string
	UserID    string
	Keywords  []string
	Content   string
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewLorebookEntry(id, userID string, keywords []string, content string) (*LorebookEntry, error) {
	e := &LorebookEntry{
		ID:        id,
		UserID:    userID,
		Keywords:  keywords,
		Content:   content,
		Enabled:   true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *LorebookEntry) Validate() error {
	kept := make([]string, 0, len(e.Keywords))
	for _, k := range e.Keywords {
		if strings.TrimSpace(k) != "" {
			kept = append(kept, k)
		}
	}
	if len(kept) == 0 {
		return fmt.Errorf("%w: lorebook entry needs at least one keyword", domain.ErrInvalidArgument)
	}
	if len(kept) > LorebookMaxKeywords {
		return fmt.Errorf("%w: at most %d keywords per entry", domain.ErrInvalidArgument, LorebookMaxKeywords)
	}
	if len([]rune(e.Content)) > LorebookMaxContentChars {
		return fmt.Errorf("%w: lorebook content exceeds %d chars", domain.ErrInvalidArgument, LorebookMaxContentChars)
	}
	e.Keywords = kept
	return nil
}

// matches reports whether any keyword of the entry occurs in haystack.
// haystack must already be lowercased; keywords are trimmed and lowercased
// here so stored casing never matters. Whitespace-only keywords never match.
func (e *LorebookEntry) matches(haystack string) bool {
	for _, k := range e.Keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if strings.Contains(haystack, k) {
			return true
		}
	}
	return false
}

// DetectActive scans the recent message window and returns the enabled
// entries whose keywords occur in it, most recently updated first, capped
// at max. The scan covers the same bounded window sent to the model, not
// the full history, so lorebook size never inflates the prompt.
func DetectActive(recent []ChatMessage, entries []*LorebookEntry, max int) []*LorebookEntry {
	if len(recent) == 0 || len(entries) == 0 || max <= 0 {
		return nil
	}

	var sb strings.Builder
	for _, m := range recent {
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	haystack := strings.ToLower(sb.String())

	var active []*LorebookEntry
	for _, e := range entries {
		if !e.Enabled {
			continue
		}
		if e.matches(haystack) {
			active = append(active, e)
		}
	}

	sort.SliceStable(active, func(i, j int) bool {
		return active[i].UpdatedAt.After(active[j].UpdatedAt)
	})
	if len(active) > max {
		active = active[:max]
	}
	return active
}
