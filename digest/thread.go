package digest

import "strings"

// Category is one of the fixed labels email threads are partitioned into.
type Category string

const (
	CategoryImportantInfo Category = "Important Info"
	CategoryCalendar      Category = "Calendar"
	CategoryPayments      Category = "Payments"
	CategoryTravel        Category = "Travel"
	CategoryNewsletters   Category = "Newsletters"
	CategoryNotifications Category = "Notifications"
)

// CategoryPriority is the fixed order categories appear in a digest.
var CategoryPriority = []Category{
	CategoryImportantInfo,
	CategoryCalendar,
	CategoryPayments,
	CategoryTravel,
	CategoryNewsletters,
	CategoryNotifications,
}

// KnownCategory maps a model-returned label onto one of the fixed categories.
// Matching is case-insensitive; anything else stays unplaced and goes through
// the retry/fallback path.
func KnownCategory(name string) (Category, bool) {
	n := strings.TrimSpace(name)
	for _, c := range CategoryPriority {
		if strings.EqualFold(n, string(c)) {
			return c, true
		}
	}
	return "", false
}

// MessageHeaders holds the addressing headers kept for digest purposes.
type MessageHeaders struct {
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Subject string `json:"subject,omitempty"`
	Date    string `json:"date,omitempty"`
}

// Message is a single email message inside a thread.
type Message struct {
	ID      string         `json:"id"`
	Headers MessageHeaders `json:"headers"`
	Body    string         `json:"body,omitempty"`
	Snippet string         `json:"snippet,omitempty"`
}

// Thread is an email conversation: a stable ID plus its ordered messages.
// Threads entering the pipeline carry at least one message; the mail-sync
// collaborator rejects empty ones upstream.
type Thread struct {
	ID       string    `json:"id"`
	Messages []Message `json:"messages"`
}

// Subject returns the thread subject, taken from the first message.
func (t Thread) Subject() string {
	if len(t.Messages) == 0 {
		return ""
	}
	return strings.TrimSpace(t.Messages[0].Headers.Subject)
}

// SimplifiedThread is the compact projection sent to the categorization model.
// It is derived per call and discarded afterwards.
type SimplifiedThread struct {
	ID           string `json:"id"`
	Subject      string `json:"subject"`
	From         string `json:"from"`
	Preview      string `json:"preview"`
	ThreadNumber int    `json:"thread_number"`
	TotalThreads int    `json:"total_threads"`
}

const previewMaxChars = 200

// SimplifyThreads projects threads into the categorization prompt shape.
func SimplifyThreads(threads []Thread) []SimplifiedThread {
	out := make([]SimplifiedThread, 0, len(threads))
	for i, t := range threads {
		out = append(out, SimplifiedThread{
			ID:           t.ID,
			Subject:      t.Subject(),
			From:         threadFrom(t),
			Preview:      threadPreview(t),
			ThreadNumber: i + 1,
			TotalThreads: len(threads),
		})
	}
	return out
}

func threadFrom(t Thread) string {
	if len(t.Messages) == 0 {
		return ""
	}
	return strings.TrimSpace(t.Messages[0].Headers.From)
}

// threadPreview takes the newest message with content; a snippet beats nothing.
func threadPreview(t Thread) string {
	for i := len(t.Messages) - 1; i >= 0; i-- {
		m := t.Messages[i]
		if s := strings.TrimSpace(m.Body); s != "" {
			return truncate(s, previewMaxChars)
		}
		if s := strings.TrimSpace(m.Snippet); s != "" {
			return truncate(s, previewMaxChars)
		}
	}
	return ""
}

// CategorizedThread is a thread re-hydrated from the original-thread lookup
// after the model returns only IDs/partial data. Never mutated after merge.
type CategorizedThread struct {
	ID       string    `json:"id"`
	ThreadID string    `json:"thread_id"`
	Subject  string    `json:"subject"`
	Messages []Message `json:"messages"`
}

// CategoryBuffer accumulates categorized threads per category for the lifetime
// of one digest run.
type CategoryBuffer map[Category][]CategorizedThread

// ThreadIDs returns the set of thread IDs currently placed in the buffer.
func (b CategoryBuffer) ThreadIDs() map[string]struct{} {
	ids := make(map[string]struct{})
	for _, threads := range b {
		for _, ct := range threads {
			ids[ct.ThreadID] = struct{}{}
		}
	}
	return ids
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
