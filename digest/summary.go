package digest

import "time"

// SummaryInsights carries the optional explain/act fields on a summary item.
type SummaryInsights struct {
	KeyHighlights  []string `json:"key_highlights,omitempty"`
	WhyThisMatters string   `json:"why_this_matters,omitempty"`
	NextStep       []string `json:"next_step,omitempty"`
}

// SummaryItem is one digest entry. MessageID is its identity for merging;
// items that collide on it across summarization passes are deduplicated.
type SummaryItem struct {
	Title         string           `json:"title"`
	Headline      string           `json:"headline"`
	MessageID     string           `json:"message_id"`
	PriorityScore int              `json:"priority_score"`
	Insights      *SummaryInsights `json:"insights,omitempty"`
}

// CategorySummary is one ordered section of a digest.
type CategorySummary struct {
	Title     Category      `json:"title"`
	Summaries []SummaryItem `json:"summaries"`
}

// SummaryDocument is the final digest produced for one session.
type SummaryDocument struct {
	SessionID   string            `json:"session_id,omitempty"`
	UserID      string            `json:"user_id,omitempty"`
	GeneratedAt time.Time         `json:"generated_at"`
	Sections    []CategorySummary `json:"sections"`
}
