package feature

import "math"

// Pitch search range in Hz. Human speech fundamentals sit comfortably
// inside 50–400 Hz; lags outside the range are not evaluated.
const (
	pitchMinHz = 50.0
	pitchMaxHz = 400.0

	// Minimum normalised autocorrelation peak for a frame to count as
	// pitched. Below this the frame contributes to energy/spectral stats
	// but not to pitch statistics.
	pitchMinCorr = 0.30
)

// spectrumBins is the number of DFT bins evaluated per frame, spanning
// 0..Nyquist. A direct DFT at this resolution is cheap for 25 ms frames and
// keeps the extractor dependency-free and bit-deterministic.
const spectrumBins = 128

// melBands is the number of mel-spaced band energies in the embedding.
const melBands = 24

func frameRMS(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(frame)))
}

// framePitch estimates the fundamental frequency of one frame via
// normalised autocorrelation. Returns ok=false when no lag in the search
// range produces a confident peak.
func framePitch(frame []float32, rate int) (f0 float64, ok bool) {
	minLag := int(float64(rate) / pitchMaxHz)
	maxLag := int(float64(rate) / pitchMinHz)
	if maxLag >= len(frame) {
		maxLag = len(frame) - 1
	}
	if minLag < 1 || minLag >= maxLag {
		return 0, false
	}

	var energy float64
	for _, s := range frame {
		energy += float64(s) * float64(s)
	}
	if energy == 0 {
		return 0, false
	}

	bestLag, bestCorr := 0, 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		var corr float64
		for i := 0; i+lag < len(frame); i++ {
			corr += float64(frame[i]) * float64(frame[i+lag])
		}
		corr /= energy
		if corr > bestCorr {
			bestLag, bestCorr = lag, corr
		}
	}
	if bestLag == 0 || bestCorr < pitchMinCorr {
		return 0, false
	}
	return float64(rate) / float64(bestLag), true
}

// averageSpectrum computes the mean power spectrum over frames via a direct
// DFT at [spectrumBins] evenly spaced frequencies from 0 to Nyquist.
func averageSpectrum(frames [][]float32, rate int) []float64 {
	spectrum := make([]float64, spectrumBins)
	if len(frames) == 0 {
		return spectrum
	}
	for _, frame := range frames {
		n := float64(len(frame))
		for bin := 0; bin < spectrumBins; bin++ {
			// Bin k corresponds to k/(2*bins) cycles per sample.
			omega := math.Pi * float64(bin) / float64(spectrumBins)
			var re, im float64
			for i, s := range frame {
				phase := omega * float64(i)
				re += float64(s) * math.Cos(phase)
				im -= float64(s) * math.Sin(phase)
			}
			spectrum[bin] += (re*re + im*im) / n
		}
	}
	for bin := range spectrum {
		spectrum[bin] /= float64(len(frames))
	}
	return spectrum
}

// binFrequency returns the centre frequency in Hz of a spectrum bin.
func binFrequency(bin, rate int) float64 {
	return float64(bin) / float64(spectrumBins) * float64(rate) / 2
}

func spectralCentroid(spectrum []float64, rate int) float64 {
	var weighted, total float64
	for bin, p := range spectrum {
		weighted += binFrequency(bin, rate) * p
		total += p
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

// spectralRolloff returns the frequency below which fraction of the total
// spectral energy is contained.
func spectralRolloff(spectrum []float64, rate int, fraction float64) float64 {
	var total float64
	for _, p := range spectrum {
		total += p
	}
	if total == 0 {
		return 0
	}
	target := total * fraction
	var cum float64
	for bin, p := range spectrum {
		cum += p
		if cum >= target {
			return binFrequency(bin, rate)
		}
	}
	return binFrequency(len(spectrum)-1, rate)
}

func hzToMel(hz float64) float64 {
	return 2595 * math.Log10(1+hz/700)
}

func melToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2595) - 1)
}

// melBandEnergies partitions the power spectrum into [melBands] bands with
// boundaries evenly spaced on the mel scale and returns the log-compressed
// mean power of each band.
func melBandEnergies(spectrum []float64, rate int) []float64 {
	nyquist := float64(rate) / 2
	maxMel := hzToMel(nyquist)

	bands := make([]float64, melBands)
	counts := make([]int, melBands)
	for bin, p := range spectrum {
		mel := hzToMel(binFrequency(bin, rate))
		idx := int(mel / maxMel * melBands)
		if idx >= melBands {
			idx = melBands - 1
		}
		bands[idx] += p
		counts[idx]++
	}
	for i := range bands {
		if counts[i] > 0 {
			bands[i] /= float64(counts[i])
		}
		bands[i] = math.Log1p(bands[i] * 1e4)
	}
	return bands
}

// zeroCrossingRate returns the mean fraction of sign changes per frame.
func zeroCrossingRate(frames [][]float32) float64 {
	if len(frames) == 0 {
		return 0
	}
	var total float64
	for _, frame := range frames {
		var crossings int
		for i := 1; i < len(frame); i++ {
			if (frame[i] >= 0) != (frame[i-1] >= 0) {
				crossings++
			}
		}
		if len(frame) > 1 {
			total += float64(crossings) / float64(len(frame)-1)
		}
	}
	return total / float64(len(frames))
}

type scalarFeatures struct {
	pitchMean   float64
	pitchStdev  float64
	energyMean  float64
	energyStdev float64
	centroid    float64
	rolloff     float64
	voicedRatio float64
	zcr         float64
	nyquist     float64
}

// buildEmbedding lays out the mel bands and normalised scalars into the
// fixed embedding and L2-normalises the result so vectors are directly
// comparable via cosine similarity.
func buildEmbedding(bands []float64, s scalarFeatures) []float32 {
	raw := make([]float64, 0, EmbeddingDim)
	raw = append(raw, bands...)
	raw = append(raw,
		s.pitchMean/pitchMaxHz,
		s.pitchStdev/100,
		s.energyMean,
		s.energyStdev,
		s.centroid/s.nyquist,
		s.rolloff/s.nyquist,
		s.voicedRatio,
		s.zcr,
	)

	var norm float64
	for _, v := range raw {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, len(raw))
	for i, v := range raw {
		if norm > 0 {
			out[i] = float32(v / norm)
		}
	}
	return out
}
