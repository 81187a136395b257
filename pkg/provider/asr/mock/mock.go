// Package mock provides a test double for the asr.Provider interface.
//
// Use Provider to return pre-canned transcript segments without a live
// recognition model:
//
//	p := &mock.Provider{
//	    Segments: []asr.Segment{{Start: 0, End: 2, Text: "hello"}},
//	}
//	segs, _ := p.Transcribe(ctx, src)
package mock

import (
	"context"
	"sync"

	"github.com/tbruckner/voxatlas/pkg/audio"
	"github.com/tbruckner/voxatlas/pkg/provider/asr"
)

// Provider is a mock implementation of asr.Provider.
type Provider struct {
	mu sync.Mutex

	// Segments is returned by Transcribe.
	Segments []asr.Segment

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Calls counts Transcribe invocations.
	Calls int
}

var _ asr.Provider = (*Provider)(nil)

// Transcribe implements asr.Provider.
func (p *Provider) Transcribe(ctx context.Context, _ audio.SampleSource) ([]asr.Segment, error) {
	p.mu.Lock()
	p.Calls++
	p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Segments, nil
}
