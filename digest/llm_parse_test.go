package digest

import "testing"

func TestParseCategorizationJSON_Valid(t *testing.T) {
	t.Parallel()

	raw := `{
		"categories": [
			{"name": "Payments", "threads": [
				{"id": "t1", "subject": "Invoice #42", "messages": ["m1", "m2"]}
			]},
			{"name": "Calendar", "threads": [
				{"id": "t2", "subject": "Standup", "messages": ["m3"]}
			]}
		]
	}`

	res, ok := ParseCategorizationJSON(raw)
	if !ok {
		t.Fatalf("ok=false, want true")
	}
	if len(res.Categories) != 2 {
		t.Fatalf("len(categories)=%d, want 2", len(res.Categories))
	}
	first := res.Categories[0]
	if first.Name != "Payments" || len(first.Threads) != 1 {
		t.Fatalf("first assignment=%+v", first)
	}
	ref := first.Threads[0]
	if ref.ID != "t1" || ref.Subject != "Invoice #42" || ref.MessageCount != 2 {
		t.Fatalf("ref=%+v", ref)
	}
}

func TestParseCategorizationJSON_WrappedInProse(t *testing.T) {
	t.Parallel()

	raw := "Sure! Here is the categorization:\n" +
		`{"categories":[{"name":"Travel","threads":[{"id":"t9","subject":"Itinerary","messages":["m1"]}]}]}` +
		"\nLet me know if you need anything else."

	res, ok := ParseCategorizationJSON(raw)
	if !ok {
		t.Fatalf("ok=false, want true")
	}
	if len(res.Categories) != 1 || res.Categories[0].Threads[0].ID != "t9" {
		t.Fatalf("res=%+v", res)
	}
}

func TestParseCategorizationJSON_Malformed(t *testing.T) {
	t.Parallel()

	cases := []string{
		"",
		"not json at all",
		`{"categories": "nope"}`,
		`{"something_else": []}`,
		`{"categories": [`,
	}
	for _, raw := range cases {
		if _, ok := ParseCategorizationJSON(raw); ok {
			t.Fatalf("ParseCategorizationJSON(%q) ok=true, want false", raw)
		}
	}
}

func TestParseCategorizationJSON_BareIDThreads(t *testing.T) {
	t.Parallel()

	raw := `{"categories":[{"name":"Newsletters","threads":["t1","t2"]}]}`
	res, ok := ParseCategorizationJSON(raw)
	if !ok {
		t.Fatalf("ok=false, want true")
	}
	threads := res.Categories[0].Threads
	if len(threads) != 2 {
		t.Fatalf("len(threads)=%d, want 2", len(threads))
	}
	// Bare IDs are kept for drop detection but carry no subject/messages.
	if threads[0].ID != "t1" || threads[0].Subject != "" || threads[0].MessageCount != 0 {
		t.Fatalf("threads[0]=%+v", threads[0])
	}
}

func TestParseSummaryItemsJSON_Valid(t *testing.T) {
	t.Parallel()

	raw := `{"summaries":[
		{"title":"Invoice due","headline":"Pay by Friday","message_id":"m1","priority_score":150,
		 "insights":{"key_highlights":["$420 due"],"why_this_matters":"Late fees apply","next_step":["Pay invoice"]}},
		{"title":"No identity","headline":"skipped","priority_score":50},
		{"title":"Negative","headline":"clamped","messageId":"m2","priority_score":-5}
	]}`

	items, ok := ParseSummaryItemsJSON(raw)
	if !ok {
		t.Fatalf("ok=false, want true")
	}
	if len(items) != 2 {
		t.Fatalf("len(items)=%d, want 2 (identity-less item skipped)", len(items))
	}
	if items[0].MessageID != "m1" || items[0].PriorityScore != 100 {
		t.Fatalf("items[0]=%+v, want clamped score 100", items[0])
	}
	if items[0].Insights == nil || items[0].Insights.WhyThisMatters != "Late fees apply" {
		t.Fatalf("items[0].Insights=%+v", items[0].Insights)
	}
	if items[1].MessageID != "m2" || items[1].PriorityScore != 0 {
		t.Fatalf("items[1]=%+v, want clamped score 0", items[1])
	}
}

func TestParseSummaryItemsJSON_Malformed(t *testing.T) {
	t.Parallel()

	cases := []string{
		"",
		"null",
		`{"summaries": {"m1": "oops"}}`,
		`[1,2,3]`,
	}
	for _, raw := range cases {
		if _, ok := ParseSummaryItemsJSON(raw); ok {
			t.Fatalf("ParseSummaryItemsJSON(%q) ok=true, want false", raw)
		}
	}
}
