package combiner

import "strings"

// LineScorer assigns a confidence score to one line of channel output.
// The merge strategies operate on the ranked output, so a stricter or
// learned scorer can be swapped in without touching the orchestrator.
type LineScorer interface {
	Score(line string) float64
}

// ScoredLine pairs a line with its confidence and original position.
type ScoredLine struct {
	Index int
	Text  string
	Score float64
}

// ScoreLines runs scorer over every line of text, preserving order.
func ScoreLines(scorer LineScorer, text string) []ScoredLine {
	lines := strings.Split(text, "\n")
	out := make([]ScoredLine, len(lines))
	for i, line := range lines {
		out[i] = ScoredLine{Index: i, Text: line, Score: scorer.Score(line)}
	}
	return out
}

// KeywordScorer scores a line by how many insight keywords it
// contains. The deep channel produces exploratory reasoning; lines
// that name an insight, an analysis, or an alternative perspective are
// the ones worth carrying into the merged response.
type KeywordScorer struct {
	keywords []string
}

var defaultInsightKeywords = []string{
	"insight", "analysis", "consider", "perspective", "approach", "thinking",
}

// NewKeywordScorer builds a scorer over the default keywords plus any
// extras.
func NewKeywordScorer(extra ...string) *KeywordScorer {
	return &KeywordScorer{
		keywords: append(append([]string(nil), defaultInsightKeywords...), extra...),
	}
}

func (s *KeywordScorer) Score(line string) float64 {
	lower := strings.ToLower(line)
	score := 0.0
	for _, kw := range s.keywords {
		if strings.Contains(lower, kw) {
			score++
		}
	}
	return score
}
