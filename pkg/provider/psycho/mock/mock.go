// Package mock provides a test double for the psycho.Scorer interface.
package mock

import (
	"context"
	"sync"

	"github.com/tbruckner/voxatlas/pkg/provider/psycho"
)

// Scorer is a mock implementation of psycho.Scorer.
type Scorer struct {
	mu sync.Mutex

	// Result is returned by Score.
	Result psycho.Score

	// Err, if non-nil, is returned as the error from Score.
	Err error

	// Texts records every text passed to Score, in call order.
	Texts []string
}

var _ psycho.Scorer = (*Scorer)(nil)

// Score implements psycho.Scorer.
func (s *Scorer) Score(ctx context.Context, text string) (psycho.Score, error) {
	s.mu.Lock()
	s.Texts = append(s.Texts, text)
	s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Result, nil
}
