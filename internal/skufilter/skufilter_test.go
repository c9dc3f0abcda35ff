package skufilter

import "testing"

func TestShouldProcess_FormatBounds(t *testing.T) {
	f, err := New(Config{MinLen: 3, MaxLen: 8})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := []struct {
		name string
		sku  string
		want bool
	}{
		{"empty", "", false},
		{"too short", "ab", false},
		{"too long", "abcdefghij", false},
		{"within bounds", "abcde", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := f.ShouldProcess(Event{SKU: tt.sku})
			if d.Allowed != tt.want {
				t.Errorf("ShouldProcess(%q).Allowed = %v, want %v (stage=%s)", tt.sku, d.Allowed, tt.want, d.Stage)
			}
		})
	}
}

func TestShouldProcess_DenyListCaseInsensitive(t *testing.T) {
	f, err := New(Config{DenyList: []string{"ABC123"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	d := f.ShouldProcess(Event{SKU: "abc123"})
	if d.Allowed {
		t.Fatalf("expected abc123 to be denied by case-insensitive deny list")
	}
	if d.Stage != StageDenyList {
		t.Errorf("stage = %s, want %s", d.Stage, StageDenyList)
	}
}

func TestShouldProcess_DenyPatternShortCircuitsAllowList(t *testing.T) {
	f, err := New(Config{
		DenyPatterns: []string{"^TEST-"},
		AllowList:    []string{"TEST-001"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	d := f.ShouldProcess(Event{SKU: "TEST-001"})
	if d.Allowed {
		t.Fatalf("expected deny pattern to win over allow list")
	}
	if d.Stage != StageDenyPattern {
		t.Errorf("stage = %s, want %s", d.Stage, StageDenyPattern)
	}
}

func TestShouldProcess_AllowListRejectsUnlisted(t *testing.T) {
	f, err := New(Config{AllowList: []string{"GOOD-1"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if d := f.ShouldProcess(Event{SKU: "GOOD-1"}); !d.Allowed {
		t.Errorf("expected GOOD-1 to be allowed")
	}
	d := f.ShouldProcess(Event{SKU: "BAD-1"})
	if d.Allowed {
		t.Errorf("expected BAD-1 to be rejected, not in allow list")
	}
	if d.Stage != StageAllowList {
		t.Errorf("stage = %s, want %s", d.Stage, StageAllowList)
	}
}

func TestShouldProcess_AllowPatternMustMatch(t *testing.T) {
	f, err := New(Config{AllowPatterns: []string{"^SKU-\\d+$"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if d := f.ShouldProcess(Event{SKU: "SKU-42"}); !d.Allowed {
		t.Errorf("expected SKU-42 to match allow pattern")
	}
	if d := f.ShouldProcess(Event{SKU: "OTHER"}); d.Allowed {
		t.Errorf("expected OTHER to be rejected, no allow pattern match")
	}
}

func TestShouldProcess_MemoizesDecision(t *testing.T) {
	f, err := New(Config{DenyList: []string{"memo-1"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	first := f.ShouldProcess(Event{SKU: "memo-1"})
	second := f.ShouldProcess(Event{SKU: "memo-1"})
	if first != second {
		t.Errorf("expected identical cached decision, got %+v vs %+v", first, second)
	}
}

func TestShouldProcess_NoListsApprovesEverything(t *testing.T) {
	f, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d := f.ShouldProcess(Event{SKU: "ANYTHING"})
	if !d.Allowed || d.Stage != StageApproved {
		t.Errorf("expected approval with no configured lists, got %+v", d)
	}
}

func TestNew_InvalidPatternFails(t *testing.T) {
	_, err := New(Config{DenyPatterns: []string{"(unterminated"}})
	if err == nil {
		t.Fatalf("expected error compiling invalid deny pattern")
	}
}
