package digest

// FallbackCategory is the catch-all bucket shared by every recovery path.
// Categorization never loses a thread: anything still unplaced after the
// single retry pass lands here, built from original thread data alone.
const FallbackCategory = CategoryNotifications

// newFallbackThread builds the minimal CategorizedThread for default
// placement. No model content is needed or used.
func newFallbackThread(orig Thread) CategorizedThread {
	subject := orig.Subject()
	if subject == "" {
		subject = "(no subject)"
	}
	return CategorizedThread{
		ID:       orig.ID,
		ThreadID: orig.ID,
		Subject:  subject,
		Messages: orig.Messages,
	}
}

func clampPriorityScore(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
