package digest

import (
	"context"
	"errors"
	"sort"
	"strings"
)

// CategorySummarizer is the model-backed summarization capability: one call
// per non-empty category.
type CategorySummarizer interface {
	Summarize(ctx context.Context, category Category, threads []CategorizedThread) ([]SummaryItem, error)
}

// SummarizeCategories produces ordered digest sections from a reconciled
// buffer. Categories are emitted in CategoryPriority order with empty ones
// skipped; within a section, items are sorted by descending priority score
// with first-seen order preserved on ties. A category whose summarization
// call fails is omitted rather than aborting the digest.
func SummarizeCategories(ctx context.Context, summarizer CategorySummarizer, buffer CategoryBuffer) ([]CategorySummary, error) {
	if ctx == nil {
		return nil, errors.New("SummarizeCategories: ctx is nil")
	}
	if summarizer == nil {
		return nil, errors.New("SummarizeCategories: summarizer is nil")
	}

	var sections []CategorySummary
	for _, cat := range CategoryPriority {
		threads := buffer[cat]
		if len(threads) == 0 {
			continue
		}

		items, err := summarizer.Summarize(ctx, cat, threads)
		if err != nil {
			// Partial digests are acceptable; empty ones are not fabricated.
			continue
		}
		items = MergeSummaryItems(items)
		if len(items) == 0 {
			continue
		}
		sortSummaryItems(items)
		sections = append(sections, CategorySummary{Title: cat, Summaries: items})
	}
	return sections, nil
}

// MergeSummaryItems merges item batches, keeping the first occurrence of each
// MessageID. Items without a MessageID have no stable identity and are
// dropped; priority scores are clamped to 0-100. Repeated summarization passes
// over overlapping chunks merge idempotently through this.
func MergeSummaryItems(batches ...[]SummaryItem) []SummaryItem {
	seen := make(map[string]struct{})
	var out []SummaryItem
	for _, batch := range batches {
		for _, item := range batch {
			id := strings.TrimSpace(item.MessageID)
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			item.MessageID = id
			item.PriorityScore = clampPriorityScore(item.PriorityScore)
			out = append(out, item)
		}
	}
	return out
}

func sortSummaryItems(items []SummaryItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].PriorityScore > items[j].PriorityScore
	})
}
