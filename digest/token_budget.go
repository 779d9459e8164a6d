package digest

import (
	"fmt"
	"strings"
)

// tokenCharRatio is the chars-per-token heuristic used for budgeting.
const tokenCharRatio = 4

// minSplitWindow is the smallest body window message splitting will use, so a
// tight budget over a long thread doesn't shred bodies into confetti.
const minSplitWindow = 256

// EstimateTokens estimates the token cost of text: length/4, rounded up.
// Deterministic and monotonic in the input length.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + tokenCharRatio - 1) / tokenCharRatio
}

// EstimateThreadTokens estimates the serialized token cost of a whole thread.
func EstimateThreadTokens(t Thread) int {
	n := EstimateTokens(t.ID)
	for _, m := range t.Messages {
		n += EstimateTokens(m.Headers.From)
		n += EstimateTokens(m.Headers.To)
		n += EstimateTokens(m.Headers.Subject)
		n += EstimateTokens(m.Headers.Date)
		n += EstimateTokens(m.Body)
		n += EstimateTokens(m.Snippet)
	}
	return n
}

// ChunkThreads partitions threads into chunks whose estimated token cost stays
// within tokenLimit.
//
// When everything fits it returns a single chunk: categorization works best
// with full context, so fragmentation is avoided unless the budget forces it.
// Otherwise threads are accumulated greedily; a thread that alone exceeds the
// budget is truncated via message-level splitting first. The union of all
// chunks' thread IDs always equals the input ID set, once each.
func ChunkThreads(threads []Thread, tokenLimit int) [][]Thread {
	if len(threads) == 0 {
		return nil
	}
	if tokenLimit <= 0 {
		return [][]Thread{threads}
	}

	total := 0
	for _, t := range threads {
		total += EstimateThreadTokens(t)
	}
	if total <= tokenLimit {
		return [][]Thread{threads}
	}

	var chunks [][]Thread
	var cur []Thread
	curTokens := 0
	for _, t := range threads {
		cost := EstimateThreadTokens(t)
		if cost > tokenLimit {
			t = TruncateThreadForLLM(t, tokenLimit)
			cost = EstimateThreadTokens(t)
		}
		if curTokens+cost > tokenLimit && len(cur) > 0 {
			chunks = append(chunks, cur)
			cur = nil
			curTokens = 0
		}
		cur = append(cur, t)
		curTokens += cost
	}
	if len(cur) > 0 {
		chunks = append(chunks, cur)
	}
	return chunks
}

// TruncateThreadForLLM rewrites an oversized thread so long message bodies are
// split at natural text boundaries. Split parts are reinserted as sibling
// messages with a "(Part i/n)" subject suffix; parts after the first get a
// synthetic continuation snippet.
func TruncateThreadForLLM(t Thread, tokenLimit int) Thread {
	if tokenLimit <= 0 || len(t.Messages) == 0 {
		return t
	}

	maxBodyChars := (tokenLimit * tokenCharRatio) / len(t.Messages)
	if maxBodyChars < minSplitWindow {
		maxBodyChars = minSplitWindow
	}

	out := Thread{ID: t.ID, Messages: make([]Message, 0, len(t.Messages))}
	for _, m := range t.Messages {
		if len(m.Body) <= maxBodyChars {
			out.Messages = append(out.Messages, m)
			continue
		}
		parts := splitBody(m.Body, maxBodyChars)
		for i, part := range parts {
			pm := m
			pm.Body = part
			pm.Headers.Subject = fmt.Sprintf("%s (Part %d/%d)", m.Headers.Subject, i+1, len(parts))
			if i > 0 {
				pm.ID = fmt.Sprintf("%s-part%d", m.ID, i+1)
				pm.Snippet = fmt.Sprintf("[Continued from part %d]", i)
			}
			out.Messages = append(out.Messages, pm)
		}
	}
	return out
}

// splitBody cuts body into pieces of at most maxLen chars, preferring a
// paragraph break, then sentence-ending punctuation, then a hard cut. Natural
// boundaries are taken only at or after 80% of the window.
func splitBody(body string, maxLen int) []string {
	if maxLen <= 0 || len(body) <= maxLen {
		return []string{body}
	}

	var parts []string
	rest := body
	for len(rest) > maxLen {
		window := rest[:maxLen]
		floor := (maxLen * 8) / 10

		cut := lastParagraphBreak(window, floor)
		if cut < 0 {
			cut = lastSentenceEnd(window, floor)
		}
		if cut < 0 {
			cut = maxLen
		}

		if s := strings.TrimSpace(rest[:cut]); s != "" {
			parts = append(parts, s)
		}
		rest = strings.TrimLeft(rest[cut:], " \t\r\n")
	}
	if s := strings.TrimSpace(rest); s != "" {
		parts = append(parts, s)
	}
	if len(parts) == 0 {
		parts = []string{strings.TrimSpace(body)}
	}
	return parts
}

func lastParagraphBreak(window string, floor int) int {
	i := strings.LastIndex(window, "\n\n")
	if i >= floor {
		return i + 2
	}
	return -1
}

func lastSentenceEnd(window string, floor int) int {
	for i := len(window) - 1; i >= floor && i >= 0; i-- {
		switch window[i] {
		case '.', '!', '?':
			if i+1 == len(window) || window[i+1] == ' ' || window[i+1] == '\n' {
				return i + 1
			}
		}
	}
	return -1
}
