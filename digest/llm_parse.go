package digest

import (
	"strings"

	"github.com/tidwall/gjson"
)

// CategorizedRef is one thread entry returned inside a category by the model.
// Entries echo the thread's id, subject, and message IDs; the reconciler
// re-hydrates full content from the original-thread lookup.
type CategorizedRef struct {
	ID           string
	Subject      string
	MessageCount int
}

// CategoryAssignment is one category bucket in a categorization response.
type CategoryAssignment struct {
	Name    string
	Threads []CategorizedRef
}

// CategorizationResult is the parsed shape of one categorization call.
type CategorizationResult struct {
	Categories []CategoryAssignment
}

// ParseCategorizationJSON parses raw model output into a CategorizationResult.
// The second return is false when the payload is malformed. Malformed output
// is treated downstream as empty, never as an error: whatever the model failed
// to return shows up as dropped threads and gets recovered.
func ParseCategorizationJSON(raw string) (CategorizationResult, bool) {
	s := extractJSONObject(raw)
	if s == "" || !gjson.Valid(s) {
		return CategorizationResult{}, false
	}
	cats := gjson.Get(s, "categories")
	if !cats.IsArray() {
		return CategorizationResult{}, false
	}

	var res CategorizationResult
	cats.ForEach(func(_, c gjson.Result) bool {
		name := strings.TrimSpace(c.Get("name").String())
		if name == "" {
			name = strings.TrimSpace(c.Get("category").String())
		}
		a := CategoryAssignment{Name: name}
		c.Get("threads").ForEach(func(_, th gjson.Result) bool {
			ref := refFromResult(th)
			if ref.ID != "" {
				a.Threads = append(a.Threads, ref)
			}
			return true
		})
		res.Categories = append(res.Categories, a)
		return true
	})
	return res, true
}

func refFromResult(th gjson.Result) CategorizedRef {
	if th.Type == gjson.String {
		// Some responses list bare thread IDs. The entry still fails the
		// validity filter, but carrying the ID keeps drop detection exact.
		return CategorizedRef{ID: strings.TrimSpace(th.String())}
	}
	ref := CategorizedRef{
		ID:      strings.TrimSpace(th.Get("id").String()),
		Subject: strings.TrimSpace(th.Get("subject").String()),
	}
	if msgs := th.Get("messages"); msgs.IsArray() {
		ref.MessageCount = len(msgs.Array())
	}
	return ref
}

// ParseSummaryItemsJSON parses raw model output into summary items. Items
// without a message_id carry no stable identity and are skipped; priority
// scores are clamped to 0-100.
func ParseSummaryItemsJSON(raw string) ([]SummaryItem, bool) {
	s := extractJSONObject(raw)
	if s == "" || !gjson.Valid(s) {
		return nil, false
	}
	arr := gjson.Get(s, "summaries")
	if !arr.IsArray() {
		return nil, false
	}

	var items []SummaryItem
	arr.ForEach(func(_, it gjson.Result) bool {
		msgID := strings.TrimSpace(it.Get("message_id").String())
		if msgID == "" {
			msgID = strings.TrimSpace(it.Get("messageId").String())
		}
		if msgID == "" {
			return true
		}
		item := SummaryItem{
			Title:         strings.TrimSpace(it.Get("title").String()),
			Headline:      strings.TrimSpace(it.Get("headline").String()),
			MessageID:     msgID,
			PriorityScore: clampPriorityScore(int(it.Get("priority_score").Int())),
		}
		if ins := it.Get("insights"); ins.IsObject() {
			item.Insights = &SummaryInsights{
				KeyHighlights:  stringSlice(ins.Get("key_highlights")),
				WhyThisMatters: strings.TrimSpace(ins.Get("why_this_matters").String()),
				NextStep:       stringSlice(ins.Get("next_step")),
			}
		}
		items = append(items, item)
		return true
	})
	return items, true
}

func stringSlice(r gjson.Result) []string {
	if !r.IsArray() {
		return nil
	}
	var out []string
	r.ForEach(func(_, v gjson.Result) bool {
		if s := strings.TrimSpace(v.String()); s != "" {
			out = append(out, s)
		}
		return true
	})
	return out
}

// extractJSONObject trims raw model text down to its first top-level JSON
// object, tolerating prose wrapped around the payload.
func extractJSONObject(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		return s
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end <= start {
		return ""
	}
	return s[start : end+1]
}
