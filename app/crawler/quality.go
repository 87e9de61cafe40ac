package crawler

import (
	"strings"
)

// Filter scores extracted text for inclusion. The score combines a
// saturating word-count bucket, a saturating domain-keyword bucket, and a
// small structural bonus for real prose, and is monotone non-decreasing in
// both word count and keyword matches.
type Filter struct {
	minScore float64
}

func NewFilter(minScore float64) *Filter {
	return &Filter{minScore: minScore}
}

func (f *Filter) MinScore() float64 {
	return f.minScore
}

// Score returns a value in [0,1]. Text below the extraction minimum always
// scores 0 and can never be accepted.
func (f *Filter) Score(text string, keywords []string) float64 {
	if len(text) < minBodyLength {
		return 0.0
	}

	score := wordCountScore(countWords(text))
	score += keywordScore(countKeywordMatches(text, keywords))
	score += structureBonus(text)

	if score > 1.0 {
		score = 1.0
	}
	return score
}

func (f *Filter) Accept(text string, keywords []string) (float64, bool) {
	score := f.Score(text, keywords)
	return score, score >= f.minScore
}

// wordCountScore saturates at 0.5 for long-form text.
func wordCountScore(words int) float64 {
	switch {
	case words >= 300:
		return 0.5
	case words >= 150:
		return 0.4
	case words >= 100:
		return 0.3
	case words >= 50:
		return 0.2
	case words >= 15:
		return 0.1
	default:
		return 0.0
	}
}

// keywordScore saturates at 0.4; each distinct match counts once.
func keywordScore(matches int) float64 {
	score := float64(matches) * 0.1
	if score > 0.4 {
		score = 0.4
	}
	return score
}

// structureBonus rewards prose markers: multiple sentence terminators.
func structureBonus(text string) float64 {
	terminators := 0
	for _, r := range text {
		switch r {
		case '.', '!', '?', '。':
			terminators++
		}
	}
	if terminators >= 2 {
		return 0.1
	}
	return 0.0
}

func countWords(text string) int {
	return len(strings.Fields(text))
}

func countKeywordMatches(text string, keywords []string) int {
	lower := strings.ToLower(text)
	matches := 0
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			matches++
		}
	}
	return matches
}
