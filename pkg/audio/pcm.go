package audio

import "encoding/binary"

// DecodePCM16 converts little-endian int16 PCM bytes to float32 samples in
// [-1, 1). Interleaved multi-channel input is downmixed to mono by averaging
// channels. A trailing odd byte is dropped.
func DecodePCM16(pcm []byte, channels int) []float32 {
	if channels <= 0 {
		channels = 1
	}
	sampleCount := len(pcm) / 2
	frameCount := sampleCount / channels
	out := make([]float32, 0, frameCount)
	for f := 0; f < frameCount; f++ {
		var sum float32
		for c := 0; c < channels; c++ {
			idx := (f*channels + c) * 2
			s := int16(binary.LittleEndian.Uint16(pcm[idx:]))
			sum += float32(s) / 32768.0
		}
		out = append(out, sum/float32(channels))
	}
	return out
}

// StereoToMono averages interleaved stereo float32 samples into mono.
func StereoToMono(samples []float32) []float32 {
	out := make([]float32, 0, len(samples)/2)
	for i := 0; i+1 < len(samples); i += 2 {
		out = append(out, (samples[i]+samples[i+1])/2)
	}
	return out
}
