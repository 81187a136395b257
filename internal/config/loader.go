package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// validASRNames and validDiarizeNames list recognised provider names.
var (
	validASRNames     = []string{"whisper", "mock"}
	validDiarizeNames = []string{"energy", "mock"}
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config with every default applied, suitable for running
// without a config file.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with their documented defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.MinVoicedDuration == 0 {
		cfg.Audio.MinVoicedDuration = 1.0
	}
	if cfg.Audio.EnergyFloor == 0 {
		cfg.Audio.EnergyFloor = 0.01
	}
	if cfg.Match.TAuto == 0 {
		cfg.Match.TAuto = 0.85
	}
	if cfg.Match.TAmbiguous == 0 {
		cfg.Match.TAmbiguous = 0.70
	}
	if cfg.Match.TopK == 0 {
		cfg.Match.TopK = 3
	}
	if cfg.Match.FeaturePenalty == 0 {
		cfg.Match.FeaturePenalty = 0.15
	}
	if cfg.Merge.MaxWeight == 0 {
		cfg.Merge.MaxWeight = 5
	}
	if cfg.Merge.MaxRetries == 0 {
		cfg.Merge.MaxRetries = 3
	}
	if cfg.Store.EmbeddingDimensions == 0 {
		cfg.Store.EmbeddingDimensions = 32
	}
	if cfg.ASR.Name == "" {
		cfg.ASR.Name = "whisper"
	}
	if cfg.ASR.Language == "" {
		cfg.ASR.Language = "en"
	}
	if cfg.Diarize.Name == "" {
		cfg.Diarize.Name = "energy"
	}
	if cfg.Diarize.SilenceFloor == 0 {
		cfg.Diarize.SilenceFloor = 0.01
	}
	if cfg.Output.TranscriptDir == "" {
		cfg.Output.TranscriptDir = "out/transcripts"
	}
	if cfg.Output.ReportDir == "" {
		cfg.Output.ReportDir = "out/reports"
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Audio.SampleRate < 8000 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is too low; need at least 8000", cfg.Audio.SampleRate))
	}
	if cfg.Audio.MinVoicedDuration < 0 {
		errs = append(errs, fmt.Errorf("audio.min_voiced_duration must not be negative"))
	}
	if cfg.Audio.EnergyFloor < 0 {
		errs = append(errs, fmt.Errorf("audio.energy_floor must not be negative"))
	}
	if cfg.Match.TAuto <= cfg.Match.TAmbiguous {
		errs = append(errs, fmt.Errorf("match.t_auto (%g) must exceed match.t_ambiguous (%g)", cfg.Match.TAuto, cfg.Match.TAmbiguous))
	}
	if cfg.Match.TAuto > 1 || cfg.Match.TAmbiguous <= 0 {
		errs = append(errs, fmt.Errorf("match thresholds must lie in (0, 1]"))
	}
	if cfg.Match.TopK < 1 {
		errs = append(errs, fmt.Errorf("match.top_k must be at least 1, got %d", cfg.Match.TopK))
	}
	if cfg.Match.FeaturePenalty < 0 {
		errs = append(errs, fmt.Errorf("match.feature_penalty must not be negative"))
	}
	if cfg.Merge.MaxWeight <= 0 {
		errs = append(errs, fmt.Errorf("merge.max_weight must be positive, got %g", cfg.Merge.MaxWeight))
	}
	if cfg.Merge.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("merge.max_retries must be at least 1, got %d", cfg.Merge.MaxRetries))
	}
	if cfg.Store.EmbeddingDimensions < 1 {
		errs = append(errs, fmt.Errorf("store.embedding_dimensions must be positive, got %d", cfg.Store.EmbeddingDimensions))
	}
	if !slices.Contains(validASRNames, cfg.ASR.Name) {
		errs = append(errs, fmt.Errorf("asr.name %q is unknown; valid values: %v", cfg.ASR.Name, validASRNames))
	}
	if cfg.ASR.Name == "whisper" && cfg.ASR.ModelPath == "" {
		errs = append(errs, fmt.Errorf("asr.model_path is required when asr.name is %q", cfg.ASR.Name))
	}
	if !slices.Contains(validDiarizeNames, cfg.Diarize.Name) {
		errs = append(errs, fmt.Errorf("diarize.name %q is unknown; valid values: %v", cfg.Diarize.Name, validDiarizeNames))
	}

	return errors.Join(errs...)
}
