// Package mock provides a test double for the diarize.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/tbruckner/voxatlas/pkg/audio"
	"github.com/tbruckner/voxatlas/pkg/provider/diarize"
)

// Provider is a mock implementation of diarize.Provider.
type Provider struct {
	mu sync.Mutex

	// Turns is returned by Diarize.
	Turns []diarize.Turn

	// Err, if non-nil, is returned as the error from Diarize.
	Err error

	// Calls counts Diarize invocations.
	Calls int
}

var _ diarize.Provider = (*Provider)(nil)

// Diarize implements diarize.Provider.
func (p *Provider) Diarize(ctx context.Context, _ audio.SampleSource) ([]diarize.Turn, error) {
	p.mu.Lock()
	p.Calls++
	p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Turns, nil
}
