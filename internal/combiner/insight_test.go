package combiner

import "testing"

func TestKeywordScorerRanksInsightLines(t *testing.T) {
	s := NewKeywordScorer()

	plain := s.Score("The sky is blue.")
	insight := s.Score("Consider the broader perspective on this.")
	if plain != 0 {
		t.Errorf("expected plain line to score 0, got %v", plain)
	}
	if insight <= plain {
		t.Errorf("expected insight line above plain line, got %v <= %v", insight, plain)
	}
	if insight != 2 {
		t.Errorf("expected two keyword hits (consider, perspective), got %v", insight)
	}
}

func TestKeywordScorerCaseInsensitive(t *testing.T) {
	s := NewKeywordScorer()
	if s.Score("ANALYSIS shows the trend holds.") == 0 {
		t.Error("expected case-insensitive keyword match")
	}
}

func TestKeywordScorerExtras(t *testing.T) {
	s := NewKeywordScorer("tradeoff")
	if s.Score("There is a tradeoff here.") == 0 {
		t.Error("expected extra keyword to match")
	}
}

func TestScoreLinesPreservesOrder(t *testing.T) {
	s := NewKeywordScorer()
	scored := ScoreLines(s, "first\nmy analysis follows\nlast")

	if len(scored) != 3 {
		t.Fatalf("expected 3 scored lines, got %d", len(scored))
	}
	if scored[1].Score == 0 {
		t.Error("expected middle line to score")
	}
	for i, sl := range scored {
		if sl.Index != i {
			t.Errorf("expected index %d, got %d", i, sl.Index)
		}
	}
}
