// Package prompt assembles the bounded payload sent to the completion
// provider: persona block plus the trailing recent window of turns.
// Anything older must already live in the conversation's context summary.
package prompt

import (
	"strings"

	"persona-ai-chat/internal/domain/model"
	"persona-ai-chat/internal/domain/ports/adapter"
)

// DefaultMaxTurns is the hard cap on user+assistant turn pairs sent
// verbatim on every request.
const DefaultMaxTurns = 10

// openingPlaceholder satisfies the provider's first-turn-must-be-user
// rule when the window starts mid-assistant-turn or the history is empty.
const openingPlaceholder = "(continued)"

// Input is everything the builder needs; it carries no I/O handles so the
// builder stays pure and testable.
type Input struct {
	PersonaName         string
	PersonaInstructions string
	UserNote            string
	ContextSummary      string
	Lorebook            []*model.LorebookEntry
	ReplyLength         model.ReplyLength
	Recent              []model.ChatMessage
}

// Payload is the provider-ready request body: a system block and a turn
// history whose first entry is always a user turn.
type Payload struct {
	System  string
	History []adapter.Message
}

type Builder struct {
	maxTurns int
}

func NewBuilder(maxTurns int) *Builder {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Builder{maxTurns: maxTurns}
}

func (b *Builder) MaxTurns() int { return b.maxTurns }

// Build composes the persona block and converts the recent window into
// provider turns. The context summary is prose inside the system block,
// never a literal turn.
func (b *Builder) Build(in Input) Payload {
	return Payload{
		System:  b.systemBlock(in),
		History: b.history(in.Recent),
	}
}

func (b *Builder) systemBlock(in Input) string {
	var sb strings.Builder

	name := strings.TrimSpace(in.PersonaName)
	if name == "" {
		name = "the assistant"
	}
	sb.WriteString("You are ")
	sb.WriteString(name)
	sb.WriteString(". Stay in character for the entire conversation.\n")

	if inst := strings.TrimSpace(in.PersonaInstructions); inst != "" {
		sb.WriteString("\n")
		sb.WriteString(inst)
		sb.WriteString("\n")
	}

	if note := strings.TrimSpace(in.UserNote); note != "" {
		sb.WriteString("\n[World state: authoritative, always honor this]\n")
		sb.WriteString(note)
		sb.WriteString("\n")
	}

	if summary := strings.TrimSpace(in.ContextSummary); summary != "" {
		sb.WriteString("\n[Memory of earlier conversation: older context, weight the recent turns above it]\n")
		sb.WriteString(summary)
		sb.WriteString("\n")
	}

	if len(in.Lorebook) > 0 {
		sb.WriteString("\n[Relevant lore]\n")
		for _, e := range in.Lorebook {
			sb.WriteString("- ")
			sb.WriteString(strings.TrimSpace(e.Content))
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\n")
	sb.WriteString(in.ReplyLength.Instruction())
	return sb.String()
}

// history truncates to the last maxTurns*2 messages and enforces the
// first-turn invariant.
func (b *Builder) history(recent []model.ChatMessage) []adapter.Message {
	limit := b.maxTurns * 2
	if len(recent) > limit {
		recent = recent[len(recent)-limit:]
	}

	out := make([]adapter.Message, 0, len(recent)+1)
	if len(recent) == 0 || normalizeRole(recent[0].Role) != model.RoleUser {
		out = append(out, adapter.Message{Role: model.RoleUser, Content: openingPlaceholder})
	}
	for _, m := range recent {
		out = append(out, adapter.Message{Role: normalizeRole(m.Role), Content: m.Content})
	}
	return out
}

// normalizeRole maps provider-native aliases onto the two roles the
// payload uses ("model" is Gemini's name for assistant turns).
func normalizeRole(role string) string {
	switch strings.ToLower(role) {
	case "assistant", "model":
		return model.RoleAssistant
	default:
		return model.RoleUser
	}
}
