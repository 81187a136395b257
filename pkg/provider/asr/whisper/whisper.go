// Package whisper implements [asr.Provider] backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/tbruckner/voxatlas/pkg/audio"
	"github.com/tbruckner/voxatlas/pkg/provider/asr"
)

// whisper.cpp operates on 16 kHz mono input only.
const whisperSampleRate = 16000

// Compile-time assertion that Provider satisfies asr.Provider.
var _ asr.Provider = (*Provider)(nil)

// Provider transcribes complete recordings through a whisper.cpp model. The
// model is loaded once and shared; each Transcribe call creates its own
// whisper context, so concurrent calls do not interfere.
type Provider struct {
	model    whisperlib.Model
	language string
}

// Option is a functional option for configuring a [Provider].
type Option func(*Provider)

// WithLanguage sets the BCP-47 language code for transcription (e.g., "en",
// "de"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// New loads the whisper.cpp model from modelPath. The caller must call Close
// when the provider is no longer needed.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	p := &Provider{model: model, language: "en"}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe implements [asr.Provider]. The source must be sampled at
// 16 kHz; other rates are rejected rather than silently resampled so that
// segment timestamps stay trustworthy.
func (p *Provider) Transcribe(ctx context.Context, src audio.SampleSource) ([]asr.Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	if sr := src.SampleRate(); sr != whisperSampleRate {
		return nil, fmt.Errorf("whisper: source sample rate %d Hz, need %d Hz", sr, whisperSampleRate)
	}

	samples, err := src.Samples(0, src.Duration())
	if err != nil {
		return nil, fmt.Errorf("whisper: read samples: %w", err)
	}

	// Each context is NOT thread-safe, but the model can be shared.
	wctx, err := p.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(p.language); err != nil {
		return nil, fmt.Errorf("whisper: set language %q: %w", p.language, err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper: process audio: %w", err)
	}

	var segments []asr.Segment
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		segments = append(segments, asr.Segment{
			Start: seg.Start.Seconds(),
			End:   seg.End.Seconds(),
			Text:  text,
		})
	}
	return segments, nil
}
