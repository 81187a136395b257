package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Errors returned by the WAV reader.
var (
	ErrNotWAV            = errors.New("audio: not a RIFF/WAVE file")
	ErrUnsupportedFormat = errors.New("audio: unsupported WAV encoding (PCM16 only)")
)

// ReadWAV parses a RIFF/WAVE stream and returns its audio as a mono [Buffer].
// Only uncompressed 16-bit PCM is supported; stereo input is downmixed.
// Chunks other than fmt and data are skipped.
func ReadWAV(r io.Reader) (*Buffer, error) {
	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("audio: read wav header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}

	var (
		sampleRate int
		channels   int
		haveFmt    bool
	)

	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("audio: wav stream ended before data chunk: %w", io.ErrUnexpectedEOF)
			}
			return nil, fmt.Errorf("audio: read wav chunk header: %w", err)
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, fmt.Errorf("audio: read fmt chunk: %w", err)
			}
			if len(body) < 16 {
				return nil, ErrUnsupportedFormat
			}
			format := binary.LittleEndian.Uint16(body[0:2])
			channels = int(binary.LittleEndian.Uint16(body[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			bits := binary.LittleEndian.Uint16(body[14:16])
			if format != 1 || bits != 16 || channels < 1 || channels > 2 {
				return nil, ErrUnsupportedFormat
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, fmt.Errorf("audio: wav data chunk before fmt chunk: %w", ErrNotWAV)
			}
			pcm := make([]byte, size)
			if _, err := io.ReadFull(r, pcm); err != nil {
				return nil, fmt.Errorf("audio: read data chunk: %w", err)
			}
			return NewBuffer(DecodePCM16(pcm, channels), sampleRate)
		default:
			// Chunks are word-aligned; skip the pad byte on odd sizes.
			skip := int64(size)
			if size%2 == 1 {
				skip++
			}
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				return nil, fmt.Errorf("audio: skip %s chunk: %w", id, err)
			}
		}
	}
}

// LoadWAV reads the WAV file at path via [ReadWAV].
func LoadWAV(path string) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audio: open %q: %w", path, err)
	}
	defer f.Close()
	return ReadWAV(f)
}
