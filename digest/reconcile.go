package digest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ThreadCategorizer is the model-backed categorization capability. One call
// covers one chunk; implementations own their own timeout/retry budget.
type ThreadCategorizer interface {
	Categorize(ctx context.Context, chunk []SimplifiedThread) (CategorizationResult, error)
}

// ReconcileOptions controls concurrent categorization across chunks.
type ReconcileOptions struct {
	// Concurrency caps in-flight categorization calls (defaults to 4).
	Concurrency int
}

const defaultCategorizeConcurrency = 4

// ErrChunkCategorization marks a hard failure of an initial per-chunk call.
// Sibling chunks' results are still merged; the caller resubmits the batch.
var ErrChunkCategorization = errors.New("chunk categorization failed")

// CategorizeThreads runs categorization over chunks concurrently and
// reconciles the per-chunk responses into a complete category partition.
//
// Every thread from a successfully categorized chunk ends up in exactly one
// bucket: entries are re-hydrated from originals (content is never
// fabricated), invalid or dropped entries get exactly one retry scoped to the
// dropped set, and whatever is still missing is force-placed into
// FallbackCategory. A hard failure of an initial chunk call is reported via
// ErrChunkCategorization; that chunk's threads are left out entirely so a
// later resubmission can cover them.
func CategorizeThreads(ctx context.Context, categorizer ThreadCategorizer, chunks [][]Thread, originals map[string]Thread, opts ReconcileOptions) (CategoryBuffer, error) {
	if ctx == nil {
		return nil, errors.New("CategorizeThreads: ctx is nil")
	}
	if categorizer == nil {
		return nil, errors.New("CategorizeThreads: categorizer is nil")
	}

	merged := CategoryBuffer{}
	if len(chunks) == 0 {
		return merged, nil
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultCategorizeConcurrency
	}

	type chunkOutcome struct {
		result CategorizationResult
		err    error
	}
	outcomes := make([]chunkOutcome, len(chunks))

	// Sibling chunks run concurrently with no ordering dependency. Each
	// outcome is collected independently so one failure cannot cancel or
	// corrupt the others; reconciliation starts only once all are in.
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for i, chunk := range chunks {
		wg.Add(1)
		go func(i int, chunk []Thread) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res, err := categorizer.Categorize(ctx, SimplifyThreads(chunk))
			outcomes[i] = chunkOutcome{result: res, err: err}
		}(i, chunk)
	}
	wg.Wait()

	// Chunk threads double as the rehydration source when the caller's
	// originals map is missing an entry; chunk bodies may be truncated, so
	// originals win when present.
	byChunkID := make(map[string]Thread)
	lookup := func(id string) (Thread, bool) {
		if t, ok := originals[id]; ok {
			return t, true
		}
		t, ok := byChunkID[id]
		return t, ok
	}

	placed := make(map[string]struct{})
	inputIDs := make(map[string]struct{})
	var inputOrder []string
	var chunkErrs []error
	for i, chunk := range chunks {
		if outcomes[i].err != nil {
			chunkErrs = append(chunkErrs, fmt.Errorf("%w: %v", ErrChunkCategorization, outcomes[i].err))
			continue
		}
		for _, t := range chunk {
			byChunkID[t.ID] = t
			if _, ok := inputIDs[t.ID]; !ok {
				inputIDs[t.ID] = struct{}{}
				inputOrder = append(inputOrder, t.ID)
			}
		}
		mergeCategorization(merged, outcomes[i].result, lookup, inputIDs, placed)
	}

	if uncategorized := missingIDs(inputOrder, placed); len(uncategorized) > 0 {
		retryChunk := make([]Thread, 0, len(uncategorized))
		for _, id := range uncategorized {
			if t, ok := lookup(id); ok {
				retryChunk = append(retryChunk, t)
			}
		}

		// Exactly one retry, scoped to the dropped subset. A failed retry
		// routes the whole set to the fallback bucket instead.
		res, err := categorizer.Categorize(ctx, SimplifyThreads(retryChunk))
		if err == nil {
			mergeCategorization(merged, res, lookup, inputIDs, placed)
		}

		for _, id := range missingIDs(inputOrder, placed) {
			orig, ok := lookup(id)
			if !ok {
				continue
			}
			merged[FallbackCategory] = append(merged[FallbackCategory], newFallbackThread(orig))
			placed[id] = struct{}{}
		}
	}

	if len(chunkErrs) > 0 {
		return merged, errors.Join(chunkErrs...)
	}
	return merged, nil
}

// mergeCategorization folds one categorization response into the accumulator.
// First placement wins; duplicate IDs are dropped silently. Entries failing
// the validity filter (missing id, empty subject, empty messages) or naming a
// thread outside the input set are skipped and surface as dropped threads.
func mergeCategorization(dst CategoryBuffer, res CategorizationResult, lookup func(string) (Thread, bool), inputIDs, placed map[string]struct{}) {
	for _, assignment := range res.Categories {
		cat, ok := KnownCategory(assignment.Name)
		if !ok {
			continue
		}
		for _, ref := range assignment.Threads {
			if ref.ID == "" || strings.TrimSpace(ref.Subject) == "" || ref.MessageCount == 0 {
				continue
			}
			if _, ok := inputIDs[ref.ID]; !ok {
				continue
			}
			if _, ok := placed[ref.ID]; ok {
				continue
			}
			orig, ok := lookup(ref.ID)
			if !ok || len(orig.Messages) == 0 {
				continue
			}
			dst[cat] = append(dst[cat], CategorizedThread{
				ID:       ref.ID,
				ThreadID: ref.ID,
				Subject:  strings.TrimSpace(ref.Subject),
				Messages: orig.Messages,
			})
			placed[ref.ID] = struct{}{}
		}
	}
}

func missingIDs(order []string, placed map[string]struct{}) []string {
	var missing []string
	for _, id := range order {
		if _, ok := placed[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
