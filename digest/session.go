package digest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotReady is returned by GenerateSummaries while expected threads are
// still uncategorized. The session state is left untouched; the caller may
// retry after completing categorization.
var ErrNotReady = errors.New("not all threads categorized")

// SessionOptions configures a digest session.
type SessionOptions struct {
	// TokenLimit bounds the estimated size of one categorization chunk
	// (defaults to 12000 tokens).
	TokenLimit int

	// Concurrency caps in-flight categorization calls per batch.
	Concurrency int
}

const defaultSessionTokenLimit = 12_000

// Session owns the state of one digest-generation run: the original-thread
// lookup, the category buffer, and the completeness counters. Construct one
// per run and per user; state is never shared across sessions.
//
// A Session is not safe for concurrent use. Callers stream batches serially:
// CategorizeBatch one or more times, then GenerateSummaries once every
// expected thread is accounted for.
type Session struct {
	id          string
	userID      string
	categorizer ThreadCategorizer
	summarizer  CategorySummarizer
	tokenLimit  int
	concurrency int

	originals map[string]Thread
	buffer    CategoryBuffer
	placed    map[string]struct{}

	totalExpected int
	processed     int
}

// NewSession creates an idle session for one user's digest run.
func NewSession(userID string, categorizer ThreadCategorizer, summarizer CategorySummarizer, opts SessionOptions) *Session {
	tokenLimit := opts.TokenLimit
	if tokenLimit <= 0 {
		tokenLimit = defaultSessionTokenLimit
	}
	return &Session{
		id:          uuid.NewString(),
		userID:      userID,
		categorizer: categorizer,
		summarizer:  summarizer,
		tokenLimit:  tokenLimit,
		concurrency: opts.Concurrency,
		originals:   make(map[string]Thread),
		buffer:      CategoryBuffer{},
		placed:      make(map[string]struct{}),
	}
}

// ID returns the session's generated identifier.
func (s *Session) ID() string { return s.id }

// UserID returns the user this session digests for.
func (s *Session) UserID() string { return s.userID }

// Processed returns the count of distinct threads categorized so far.
func (s *Session) Processed() int { return s.processed }

// Expected returns the total thread count pinned by the first batch.
func (s *Session) Expected() int { return s.totalExpected }

// Ready reports whether every expected thread has been categorized.
func (s *Session) Ready() bool {
	return s.totalExpected > 0 && s.processed >= s.totalExpected
}

// CategorizeBatch chunks the batch by token budget, categorizes it, and folds
// the reconciled result into the session buffer. The expected total is pinned
// by the first call; resubmitted thread IDs are tolerated without
// double-counting or re-categorizing. It returns whether the session now has
// every expected thread categorized.
//
// A hard per-chunk categorization failure returns false with a non-nil error;
// successful sibling chunks are still retained, so resubmitting the same
// batch later converges without duplicating work.
func (s *Session) CategorizeBatch(ctx context.Context, threads []Thread, totalThreads int) (bool, error) {
	if ctx == nil {
		return false, errors.New("CategorizeBatch: ctx is nil")
	}
	if s.categorizer == nil {
		return false, errors.New("CategorizeBatch: categorizer is nil")
	}

	if s.totalExpected == 0 && totalThreads > 0 {
		s.totalExpected = totalThreads
	}

	pending := make([]Thread, 0, len(threads))
	pendingSeen := make(map[string]struct{}, len(threads))
	for _, t := range threads {
		if t.ID == "" || len(t.Messages) == 0 {
			continue
		}
		if _, ok := s.originals[t.ID]; !ok {
			s.originals[t.ID] = t
		}
		if _, ok := s.placed[t.ID]; ok {
			continue
		}
		if _, ok := pendingSeen[t.ID]; ok {
			continue
		}
		pendingSeen[t.ID] = struct{}{}
		pending = append(pending, t)
	}
	if len(pending) == 0 {
		return s.Ready(), nil
	}

	chunks := ChunkThreads(pending, s.tokenLimit)
	result, err := CategorizeThreads(ctx, s.categorizer, chunks, s.originals, ReconcileOptions{Concurrency: s.concurrency})
	s.mergeBuffer(result)
	s.processed = len(s.placed)
	if err != nil {
		return false, err
	}
	return s.Ready(), nil
}

// GenerateSummaries builds the digest once all expected threads are
// categorized, then resets the session back to idle.
func (s *Session) GenerateSummaries(ctx context.Context) (SummaryDocument, error) {
	if ctx == nil {
		return SummaryDocument{}, errors.New("GenerateSummaries: ctx is nil")
	}
	if s.summarizer == nil {
		return SummaryDocument{}, errors.New("GenerateSummaries: summarizer is nil")
	}
	if s.totalExpected == 0 || s.processed < s.totalExpected {
		return SummaryDocument{}, fmt.Errorf("GenerateSummaries: %w (%d/%d)", ErrNotReady, s.processed, s.totalExpected)
	}

	sections, err := SummarizeCategories(ctx, s.summarizer, s.buffer)
	if err != nil {
		return SummaryDocument{}, fmt.Errorf("GenerateSummaries: %w", err)
	}

	doc := SummaryDocument{
		SessionID:   s.id,
		UserID:      s.userID,
		GeneratedAt: time.Now().UTC(),
		Sections:    sections,
	}
	s.reset()
	return doc, nil
}

// reset returns the session to idle: buckets emptied, counters zeroed.
func (s *Session) reset() {
	s.originals = make(map[string]Thread)
	s.buffer = CategoryBuffer{}
	s.placed = make(map[string]struct{})
	s.totalExpected = 0
	s.processed = 0
}

// mergeBuffer folds a reconciled result into the session buffer,
// deduplicating by thread ID across batches.
func (s *Session) mergeBuffer(result CategoryBuffer) {
	for cat, threads := range result {
		for _, ct := range threads {
			if _, ok := s.placed[ct.ThreadID]; ok {
				continue
			}
			s.placed[ct.ThreadID] = struct{}{}
			s.buffer[cat] = append(s.buffer[cat], ct)
		}
	}
}
