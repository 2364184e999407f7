package research

import (
	"encoding/json"
	"testing"
)

func TestResearchQueryValidate(t *testing.T) {
	cases := []struct {
		name  string
		query ResearchQuery
		ok    bool
	}{
		{"valid", ResearchQuery{Topic: "fusion", Depth: 3}, true},
		{"min depth", ResearchQuery{Topic: "fusion", Depth: 1}, true},
		{"max depth", ResearchQuery{Topic: "fusion", Depth: 5}, true},
		{"empty topic", ResearchQuery{Topic: "", Depth: 3}, false},
		{"whitespace topic", ResearchQuery{Topic: "   ", Depth: 3}, false},
		{"depth too low", ResearchQuery{Topic: "fusion", Depth: 0}, false},
		{"depth too high", ResearchQuery{Topic: "fusion", Depth: 6}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.query.Validate()
			if tc.ok && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestClampCredibility(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{-0.5, 0}, {0, 0}, {0.7, 0.7}, {1, 1}, {1.5, 1},
	}
	for _, tc := range cases {
		if got := ClampCredibility(tc.in); got != tc.want {
			t.Fatalf("ClampCredibility(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestDedupeSources(t *testing.T) {
	sources := []ResearchSource{
		{Title: "A", URL: "https://a", Credibility: 0.9},
		{Title: "B", URL: "https://b", Credibility: 0.8},
		{Title: "A", URL: "https://a", Credibility: 0.1},
		{Title: "A", URL: "https://other", Credibility: 0.5},
	}
	got := DedupeSources(sources)
	if len(got) != 3 {
		t.Fatalf("expected 3 unique sources, got %d", len(got))
	}
	// First occurrence wins, order preserved.
	if got[0].Credibility != 0.9 || got[1].Title != "B" || got[2].URL != "https://other" {
		t.Fatalf("unexpected dedupe result: %+v", got)
	}
}

func TestReportRoundTripPreservesOrderAndScores(t *testing.T) {
	report := ResearchReport{
		Title: "r",
		Sections: []ResearchSection{
			{Title: "first", Confidence: 0.85, Sources: []ResearchSource{
				{Title: "s1", Credibility: 0.91},
				{Title: "s2", Credibility: 0.37},
			}},
			{Title: "second", Confidence: 0.6},
		},
		Sources: []ResearchSource{{Title: "s1", Credibility: 0.91}, {Title: "s3", Credibility: 0.42}},
	}

	data, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got ResearchReport
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.Sections[0].Title != "first" || got.Sections[1].Title != "second" {
		t.Fatal("section order not preserved")
	}
	if got.Sections[0].Sources[0].Title != "s1" || got.Sections[0].Sources[1].Title != "s2" {
		t.Fatal("source order within section not preserved")
	}
	if got.Sections[0].Confidence != 0.85 || got.Sections[0].Sources[1].Credibility != 0.37 {
		t.Fatal("scores not preserved exactly")
	}
	if got.Sources[1].Credibility != 0.42 {
		t.Fatal("bibliography scores not preserved exactly")
	}
}

func TestNewResearchTask(t *testing.T) {
	task := NewResearchTask(ResearchQuery{Topic: "x", Depth: 1}, 3)
	if task.ID == "" {
		t.Fatal("expected generated ID")
	}
	if task.Status != StatusPending {
		t.Fatalf("expected pending, got %s", task.Status)
	}
	if task.MaxRetries != 3 || task.RetryCount != 0 {
		t.Fatalf("unexpected retry fields: %d/%d", task.RetryCount, task.MaxRetries)
	}
}

func TestEvidenceBundleHelpers(t *testing.T) {
	bundle := NewEvidenceBundle([]string{"web", "arxiv"})
	if !bundle.IsEmpty() || bundle.Total() != 0 {
		t.Fatal("fresh bundle must be empty")
	}
	if _, ok := bundle.Slots["arxiv"]; !ok {
		t.Fatal("every configured kind gets a slot")
	}
	bundle.Slots["web"] = append(bundle.Slots["web"], EvidenceItem{Title: "t"})
	if bundle.IsEmpty() || bundle.Total() != 1 {
		t.Fatal("bundle with one item must not be empty")
	}
}
