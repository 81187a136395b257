package config_test

import (
	"strings"
	"testing"

	"github.com/tbruckner/voxatlas/internal/config"
)

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader("asr:\n  model_path: models/ggml-small.bin\n"))
	if err != nil {
		t.Fatalf("LoadFromReader returned error: %v", err)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("LogLevel=%q, want info", cfg.Server.LogLevel)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("SampleRate=%d, want 16000", cfg.Audio.SampleRate)
	}
	if cfg.Match.TAuto != 0.85 || cfg.Match.TAmbiguous != 0.70 {
		t.Errorf("thresholds %g/%g, want 0.85/0.70", cfg.Match.TAuto, cfg.Match.TAmbiguous)
	}
	if cfg.Match.TopK != 3 {
		t.Errorf("TopK=%d, want 3", cfg.Match.TopK)
	}
	if cfg.Merge.MaxWeight != 5 || cfg.Merge.MaxRetries != 3 {
		t.Errorf("merge %g/%d, want 5/3", cfg.Merge.MaxWeight, cfg.Merge.MaxRetries)
	}
	if cfg.Store.EmbeddingDimensions != 32 {
		t.Errorf("EmbeddingDimensions=%d, want 32", cfg.Store.EmbeddingDimensions)
	}
	if cfg.ASR.Name != "whisper" || cfg.Diarize.Name != "energy" {
		t.Errorf("providers %q/%q, want whisper/energy", cfg.ASR.Name, cfg.Diarize.Name)
	}
}

func TestLoadFromReader_EmptyInput(t *testing.T) {
	t.Parallel()

	// An empty file is the all-defaults config, except whisper then lacks
	// its required model path.
	_, err := config.LoadFromReader(strings.NewReader(""))
	if err == nil {
		t.Fatal("expected validation failure: whisper without model_path")
	}
	if !strings.Contains(err.Error(), "model_path") {
		t.Errorf("err=%v, want a model_path complaint", err)
	}
}

func TestLoadFromReader_OverridesApplied(t *testing.T) {
	t.Parallel()

	const doc = `
server:
  log_level: debug
match:
  t_auto: 0.9
  t_ambiguous: 0.6
asr:
  name: mock
diarize:
  name: mock
`
	cfg, err := config.LoadFromReader(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadFromReader returned error: %v", err)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("LogLevel=%q, want debug", cfg.Server.LogLevel)
	}
	if cfg.Match.TAuto != 0.9 || cfg.Match.TAmbiguous != 0.6 {
		t.Errorf("thresholds %g/%g, want 0.9/0.6", cfg.Match.TAuto, cfg.Match.TAmbiguous)
	}
	if cfg.ASR.Name != "mock" {
		t.Errorf("ASR.Name=%q, want mock", cfg.ASR.Name)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("serverr:\n  log_level: info\n"))
	if err == nil {
		t.Fatal("expected an unknown-field error")
	}
}

func TestValidate_CollectsAllFailures(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.ASR.Name = "mock" // avoid the model_path requirement
	cfg.Match.TAuto = 0.5 // below TAmbiguous
	cfg.Match.TopK = 0
	cfg.Merge.MaxRetries = 0

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("Validate accepted an incoherent config")
	}
	for _, want := range []string{"t_auto", "top_k", "max_retries"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error missing %q: %v", want, err)
		}
	}
}

func TestValidate_ProviderNames(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.ASR.Name = "siri"
	cfg.Diarize.Name = "oracle"
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("Validate accepted unknown provider names")
	}
	if !strings.Contains(err.Error(), "siri") || !strings.Contains(err.Error(), "oracle") {
		t.Errorf("err=%v, want both provider names called out", err)
	}
}

func TestLogLevelIsValid(t *testing.T) {
	t.Parallel()

	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q reported invalid", l)
		}
	}
	if config.LogLevel("verbose").IsValid() {
		t.Error("unknown level reported valid")
	}
}
