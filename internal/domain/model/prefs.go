package model

// ReplyLength is the user-selected output-length tier. Each tier maps to
// a qualitative instruction appended to the persona block; the table keeps
// the mapping auditable instead of chained numeric comparisons.
type ReplyLength string

const (
	ReplyBrief      ReplyLength = "brief"
	ReplyShort      ReplyLength = "short"
	ReplyMedium     ReplyLength = "medium"
	ReplyLong       ReplyLength = "long"
	ReplyExhaustive ReplyLength = "exhaustive"
)

var replyLengthInstructions = map[ReplyLength]string{
	ReplyBrief:      "Respond in 1-2 sentences.",
	ReplyShort:      "Respond in a short paragraph.",
	ReplyMedium:     "Respond at a natural conversational length.",
	ReplyLong:       "Respond in rich detail across several paragraphs.",
	ReplyExhaustive: "Respond with exhaustive depth and examples.",
}

func (l ReplyLength) Valid() bool {
	_, ok := replyLengthInstructions[l]
	return ok
}

// Instruction returns the prose instruction for the tier; the medium tier
// is the fallback for unknown values.
func (l ReplyLength) Instruction() string {
	if s, ok := replyLengthInstructions[l]; ok {
		return s
	}
	return replyLengthInstructions[ReplyMedium]
}

// ThinkingEffort is the optional reasoning-budget tier forwarded to
// providers that support it (token budget, 0 disables thinking).
type ThinkingEffort string

const (
	ThinkingOff    ThinkingEffort = "off"
	ThinkingLow    ThinkingEffort = "low"
	ThinkingMedium ThinkingEffort = "medium"
	ThinkingHigh   ThinkingEffort = "high"
)

var thinkingBudgets = map[ThinkingEffort]int{
	ThinkingOff:    0,
	ThinkingLow:    1024,
	ThinkingMedium: 4096,
	ThinkingHigh:   16384,
}

func (e ThinkingEffort) Valid() bool {
	_, ok := thinkingBudgets[e]
	return ok
}

func (e ThinkingEffort) Budget() int {
	if b, ok := thinkingBudgets[e]; ok {
		return b
	}
	return 0
}

// UserSettings is the per-user preference row consumed by the chat path.
type UserSettings struct {
	UserID             string
	PinnedCredentialID string
	ReplyLength        ReplyLength
	ThinkingEffort     ThinkingEffort
	LorebookCap        int
	Language           string
}

// DefaultSettings are applied when a user has no stored row.
func DefaultSettings(userID string) *UserSettings {
	return &UserSettings{
		UserID:         userID,
		ReplyLength:    ReplyMedium,
		ThinkingEffort: ThinkingOff,
		LorebookCap:    3,
		Language:       "en",
	}
}
