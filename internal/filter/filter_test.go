package filter

import (
	"testing"

	"github.com/me/visium/pkg/model"
)

func sampleImages() []model.Image {
	return []model.Image{
		{ID: 1, Description: "Sunset over the BAY", IsAIGenerated: false, LikesCount: 5, Username: "alice"},
		{ID: 2, Description: "robot cat", IsAIGenerated: true, LikesCount: 1, Username: "bob"},
		{ID: 3, Description: "bay bridge at night", IsAIGenerated: true, LikesCount: 9, Username: "alice", UserHasLiked: true},
		{ID: 4, Description: "", IsAIGenerated: false, LikesCount: 0},
	}
}

func ids(images []model.Image) []int64 {
	out := make([]int64, len(images))
	for i, img := range images {
		out[i] = img.ID
	}
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestApply(t *testing.T) {
	tests := []struct {
		name     string
		criteria Criteria
		want     []int64
	}{
		{"zero value", Criteria{}, []int64{1, 2, 3, 4}},
		{"query ignores case", Criteria{Query: "bay"}, []int64{1, 3}},
		{"ai only", Criteria{Kind: KindAI}, []int64{2, 3}},
		{"non-ai only", Criteria{Kind: KindNonAI}, []int64{1, 4}},
		{"query and kind", Criteria{Query: "bay", Kind: KindAI}, []int64{3}},
		{"expression", Criteria{Expr: "img.likes_count > 3"}, []int64{1, 3}},
		{"expression on strings", Criteria{Expr: "img.username === 'alice' && img.user_has_liked"}, []int64{3}},
		{"everything", Criteria{Query: "bay", Kind: KindNonAI, Expr: "img.id < 10"}, []int64{1}},
		{"no match", Criteria{Query: "zebra"}, []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(sampleImages(), tt.criteria)
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if !equalIDs(ids(got), tt.want) {
				t.Errorf("expected %v, got %v", tt.want, ids(got))
			}
		})
	}
}

func TestCompileErrors(t *testing.T) {
	for _, expr := range []string{"", "   ", "img.likes_count >"} {
		if _, err := Compile(expr); err == nil {
			t.Errorf("expected error for %q", expr)
		}
	}
}

func TestPredicateRuntimeError(t *testing.T) {
	p, err := Compile("img.missing.field")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if _, err := p.Match(model.Image{ID: 7}); err == nil {
		t.Error("expected runtime error")
	}
}

func TestPredicateTruthiness(t *testing.T) {
	p, err := Compile("img.description")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	got, err := p.Select(sampleImages())
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if want := []int64{1, 2, 3}; !equalIDs(ids(got), want) {
		t.Errorf("expected %v, got %v", want, ids(got))
	}
}

func TestSplitAI(t *testing.T) {
	ai, other := SplitAI(sampleImages())
	if !equalIDs(ids(ai), []int64{2, 3}) {
		t.Errorf("expected ai [2 3], got %v", ids(ai))
	}
	if !equalIDs(ids(other), []int64{1, 4}) {
		t.Errorf("expected other [1 4], got %v", ids(other))
	}

	ai, other = SplitAI(nil)
	if ai == nil || other == nil {
		t.Error("expected non-nil empty slices")
	}
}

func TestParseKind(t *testing.T) {
	for _, s := range []string{"", "ai", "AI", "non-ai"} {
		if _, err := ParseKind(s); err != nil {
			t.Errorf("ParseKind(%q): %v", s, err)
		}
	}
	if _, err := ParseKind("photo"); err == nil {
		t.Error("expected error for unknown kind")
	}
}
