package resolver

import "testing"

func TestResolvePriorityOrder(t *testing.T) {
	mappings := []Mapping{
		{ExternalPattern: "sonnet", InternalID: "sonnet-family", MatchType: MatchContains, Priority: 1, Enabled: true},
		{ExternalPattern: `.*-sonnet-4-5-\d+`, InternalID: "sonnet-4-5", MatchType: MatchRegex, Priority: 10, Enabled: true},
		{ExternalPattern: "claude-sonnet-4-5-20250929", InternalID: "sonnet-4-5-exact", MatchType: MatchExact, Priority: 20, Enabled: true},
	}
	r, err := New(mappings)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	id, err := r.ResolveWith("claude-sonnet-4-5-20250929")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id != "sonnet-4-5-exact" {
		t.Fatalf("expected exact match to win, got %s", id)
	}

	id, err = r.ResolveWith("vendor-sonnet-4-5-99999999")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id != "sonnet-4-5" {
		t.Fatalf("expected regex match to beat contains, got %s", id)
	}

	id, err = r.ResolveWith("some-sonnet-thing")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id != "sonnet-family" {
		t.Fatalf("expected contains fallback, got %s", id)
	}
}

func TestResolveUnsupportedModel(t *testing.T) {
	r, _ := New(nil)
	_, err := r.ResolveWith("unknown")
	if err == nil {
		t.Fatal("expected error for unresolved model")
	}
}

func TestResolveDisabledSkipped(t *testing.T) {
	r, _ := New([]Mapping{
		{ExternalPattern: "x", InternalID: "should-not-match", MatchType: MatchExact, Priority: 100, Enabled: false},
		{ExternalPattern: "x", InternalID: "fallback", MatchType: MatchExact, Priority: 1, Enabled: true},
	})
	id, err := r.ResolveWith("x")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id != "fallback" {
		t.Fatalf("expected disabled rule to be skipped, got %s", id)
	}
}
