// Package lexicon implements [psycho.Scorer] with a small keyword lexicon.
//
// Scores cover five basic emotion dimensions (excited, angry, happy, sad,
// fun) counted from keyword occurrences, plus a crude valence derived from
// positive/negative keyword balance. The scorer is deterministic and fully
// offline; it stands in for a real sentiment model.
package lexicon

import (
	"context"
	"strings"

	"github.com/tbruckner/voxatlas/pkg/provider/psycho"
)

var emotionKeywords = map[string][]string{
	"excited": {"excited", "thrilled", "pumped", "energetic"},
	"angry":   {"angry", "furious", "frustrated", "mad"},
	"happy":   {"happy", "glad", "pleased", "delighted"},
	"sad":     {"sad", "upset", "down", "unhappy"},
	"fun":     {"fun", "enjoy", "laugh", "joke", "humor"},
}

// positive/negative dimensions used for the valence balance.
var (
	positiveDims = []string{"excited", "happy", "fun"}
	negativeDims = []string{"angry", "sad"}
)

var _ psycho.Scorer = (*Scorer)(nil)

// Scorer is a deterministic lexicon-based psychometric scorer.
// The zero value is ready to use.
type Scorer struct{}

// New returns a ready-to-use Scorer.
func New() *Scorer { return &Scorer{} }

// Score implements [psycho.Scorer].
func (s *Scorer) Score(ctx context.Context, text string) (psycho.Score, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		counts[strings.Trim(token, ".,!?;:'\"")]++
	}

	score := psycho.Score{}
	for dim, keywords := range emotionKeywords {
		var n int
		for _, kw := range keywords {
			n += counts[kw]
		}
		score[dim] = float64(n)
	}

	var pos, neg float64
	for _, d := range positiveDims {
		pos += score[d]
	}
	for _, d := range negativeDims {
		neg += score[d]
	}
	if total := pos + neg; total > 0 {
		score["valence"] = (pos - neg) / total
	} else {
		score["valence"] = 0
	}
	return score, nil
}
