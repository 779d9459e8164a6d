package digest

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// echoSummarizer returns one item per thread, keyed by the first message ID.
func echoSummarizer() *fakeSummarizer {
	return &fakeSummarizer{respond: func(category Category, threads []CategorizedThread) ([]SummaryItem, error) {
		var items []SummaryItem
		for i, ct := range threads {
			items = append(items, SummaryItem{
				Title:         ct.Subject,
				Headline:      "about " + ct.Subject,
				MessageID:     ct.Messages[0].ID,
				PriorityScore: 90 - i,
			})
		}
		return items, nil
	}}
}

func cleanCategorizer() *scriptedCategorizer {
	return &scriptedCategorizer{script: func(call int, chunk []SimplifiedThread) (CategorizationResult, error) {
		return CategorizationResult{Categories: []CategoryAssignment{assignAll("Important Info", chunk)}}, nil
	}}
}

func TestSession_FullRunResetsToIdle(t *testing.T) {
	t.Parallel()

	s := NewSession("user-1", cleanCategorizer(), echoSummarizer(), SessionOptions{})
	threads := []Thread{
		testThread("t1", "contract", "please sign"),
		testThread("t2", "offer", "new terms"),
	}

	ready, err := s.CategorizeBatch(context.Background(), threads, 2)
	if err != nil {
		t.Fatalf("CategorizeBatch: %v", err)
	}
	if !ready {
		t.Fatalf("ready=false, want true")
	}

	doc, err := s.GenerateSummaries(context.Background())
	if err != nil {
		t.Fatalf("GenerateSummaries: %v", err)
	}
	if doc.UserID != "user-1" || doc.SessionID == "" {
		t.Fatalf("doc identity=%q/%q", doc.UserID, doc.SessionID)
	}
	if len(doc.Sections) != 1 || doc.Sections[0].Title != CategoryImportantInfo {
		t.Fatalf("sections=%+v", doc.Sections)
	}
	if len(doc.Sections[0].Summaries) != 2 {
		t.Fatalf("summaries=%d, want 2", len(doc.Sections[0].Summaries))
	}

	// Back to idle.
	if s.Processed() != 0 || s.Expected() != 0 || s.Ready() {
		t.Fatalf("session not reset: processed=%d expected=%d", s.Processed(), s.Expected())
	}
	if len(s.buffer) != 0 || len(s.originals) != 0 {
		t.Fatalf("session state not emptied")
	}
}

func TestSession_CompletenessUnderDroppingModel(t *testing.T) {
	t.Parallel()

	// The model drops half of every chunk on the first attempt; retries
	// categorize whatever they are given.
	cat := &scriptedCategorizer{script: func(call int, chunk []SimplifiedThread) (CategorizationResult, error) {
		kept := chunk[:(len(chunk)+1)/2]
		return CategorizationResult{Categories: []CategoryAssignment{assignAll("Notifications", kept)}}, nil
	}}
	s := NewSession("user-1", cat, echoSummarizer(), SessionOptions{})

	ids := []string{"t1", "t2", "t3", "t4", "t5", "t6"}
	var all []Thread
	for _, id := range ids {
		all = append(all, testThread(id, "subj "+id, strings.Repeat("body ", 20)))
	}

	ready, err := s.CategorizeBatch(context.Background(), all[:3], len(all))
	if err != nil {
		t.Fatalf("CategorizeBatch(1): %v", err)
	}
	if ready {
		t.Fatalf("ready after first batch, want false")
	}
	ready, err = s.CategorizeBatch(context.Background(), all[3:], len(all))
	if err != nil {
		t.Fatalf("CategorizeBatch(2): %v", err)
	}
	if !ready {
		t.Fatalf("ready=false after all batches, want true")
	}

	placed := s.buffer.ThreadIDs()
	if len(placed) != len(ids) {
		t.Fatalf("placed=%d threads, want %d", len(placed), len(ids))
	}
	for _, id := range ids {
		if _, ok := placed[id]; !ok {
			t.Fatalf("thread %s missing from buffer", id)
		}
	}
	counts := bufferIDCounts(s.buffer)
	for id, n := range counts {
		if n != 1 {
			t.Fatalf("thread %s placed %d times, want 1", id, n)
		}
	}
}

func TestSession_OverlappingBatchesDoNotDoubleCount(t *testing.T) {
	t.Parallel()

	cat := cleanCategorizer()
	s := NewSession("user-1", cat, echoSummarizer(), SessionOptions{})

	t1 := testThread("t1", "a", "x")
	t2 := testThread("t2", "b", "y")
	t3 := testThread("t3", "c", "z")

	if _, err := s.CategorizeBatch(context.Background(), []Thread{t1, t2}, 3); err != nil {
		t.Fatalf("CategorizeBatch(1): %v", err)
	}
	// t2 is resubmitted alongside t3.
	ready, err := s.CategorizeBatch(context.Background(), []Thread{t2, t3}, 3)
	if err != nil {
		t.Fatalf("CategorizeBatch(2): %v", err)
	}
	if !ready {
		t.Fatalf("ready=false, want true")
	}
	if s.Processed() != 3 {
		t.Fatalf("processed=%d, want 3 (distinct threads only)", s.Processed())
	}
	if n := bufferIDCounts(s.buffer)["t2"]; n != 1 {
		t.Fatalf("t2 placed %d times, want 1", n)
	}

	// Fully duplicate batch is a no-op.
	if _, err := s.CategorizeBatch(context.Background(), []Thread{t1, t2, t3}, 3); err != nil {
		t.Fatalf("CategorizeBatch(3): %v", err)
	}
	if s.Processed() != 3 {
		t.Fatalf("processed=%d after duplicate batch, want 3", s.Processed())
	}
}

func TestSession_GenerateSummariesPrecondition(t *testing.T) {
	t.Parallel()

	s := NewSession("user-1", cleanCategorizer(), echoSummarizer(), SessionOptions{})
	if _, err := s.CategorizeBatch(context.Background(), []Thread{testThread("t1", "a", "x")}, 5); err != nil {
		t.Fatalf("CategorizeBatch: %v", err)
	}

	before := bufferIDCounts(s.buffer)
	_, err := s.GenerateSummaries(context.Background())
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("err=%v, want ErrNotReady", err)
	}

	// Session state is untouched by the failed call.
	after := bufferIDCounts(s.buffer)
	if len(after) != len(before) {
		t.Fatalf("buffer mutated by failed GenerateSummaries")
	}
	if s.Processed() != 1 || s.Expected() != 5 {
		t.Fatalf("counters mutated: processed=%d expected=%d", s.Processed(), s.Expected())
	}
}

func TestSession_GenerateSummariesBeforeAnyBatch(t *testing.T) {
	t.Parallel()

	s := NewSession("user-1", cleanCategorizer(), echoSummarizer(), SessionOptions{})
	if _, err := s.GenerateSummaries(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Fatalf("err=%v, want ErrNotReady", err)
	}
}

func TestSession_ExpectedTotalPinnedByFirstBatch(t *testing.T) {
	t.Parallel()

	s := NewSession("user-1", cleanCategorizer(), echoSummarizer(), SessionOptions{})
	if _, err := s.CategorizeBatch(context.Background(), []Thread{testThread("t1", "a", "x")}, 2); err != nil {
		t.Fatalf("CategorizeBatch(1): %v", err)
	}
	// A later batch cannot re-pin the expected total.
	if _, err := s.CategorizeBatch(context.Background(), []Thread{testThread("t2", "b", "y")}, 99); err != nil {
		t.Fatalf("CategorizeBatch(2): %v", err)
	}
	if s.Expected() != 2 {
		t.Fatalf("expected=%d, want 2 (pinned by first call)", s.Expected())
	}
	if !s.Ready() {
		t.Fatalf("ready=false, want true")
	}
}

func TestSession_ChunkFailureThenResubmission(t *testing.T) {
	t.Parallel()

	// The first categorization call fails hard; later calls succeed.
	cat := &scriptedCategorizer{script: func(call int, chunk []SimplifiedThread) (CategorizationResult, error) {
		if call < 1 {
			return CategorizationResult{}, errors.New("model down")
		}
		return CategorizationResult{Categories: []CategoryAssignment{assignAll("Payments", chunk)}}, nil
	}}
	s := NewSession("user-1", cat, echoSummarizer(), SessionOptions{})

	threads := []Thread{testThread("t1", "a", "x"), testThread("t2", "b", "y")}
	ready, err := s.CategorizeBatch(context.Background(), threads, 2)
	if !errors.Is(err, ErrChunkCategorization) {
		t.Fatalf("err=%v, want ErrChunkCategorization", err)
	}
	if ready {
		t.Fatalf("ready=true after failed batch, want false")
	}
	if _, err := s.GenerateSummaries(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Fatalf("summaries after failed batch: err=%v, want ErrNotReady", err)
	}

	// Resubmitting the same batch converges.
	ready, err = s.CategorizeBatch(context.Background(), threads, 2)
	if err != nil {
		t.Fatalf("CategorizeBatch(retry): %v", err)
	}
	if !ready {
		t.Fatalf("ready=false after resubmission, want true")
	}
	counts := bufferIDCounts(s.buffer)
	if counts["t1"] != 1 || counts["t2"] != 1 {
		t.Fatalf("counts=%v, want each thread once", counts)
	}
}
