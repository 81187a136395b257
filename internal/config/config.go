// Package config provides the configuration schema and loader for the
// voxatlas speaker identity engine.
package config

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure, typically loaded from a YAML
// file using [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Audio   AudioConfig   `yaml:"audio"`
	Match   MatchConfig   `yaml:"match"`
	Merge   MergeConfig   `yaml:"merge"`
	Store   StoreConfig   `yaml:"store"`
	ASR     ASRConfig     `yaml:"asr"`
	Diarize DiarizeConfig `yaml:"diarize"`
	Output  OutputConfig  `yaml:"output"`
}

// ServerConfig holds process-level settings.
type ServerConfig struct {
	// LogLevel controls verbosity. Default: info.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig holds feature-extraction audio settings.
type AudioConfig struct {
	// SampleRate is the expected sample rate of input recordings in Hz.
	// Default: 16000.
	SampleRate int `yaml:"sample_rate"`

	// MinVoicedDuration is the minimum voiced audio (seconds) a turn must
	// contain to yield a feature vector. Default: 1.0.
	MinVoicedDuration float64 `yaml:"min_voiced_duration"`

	// EnergyFloor is the frame RMS below which audio counts as silence.
	// Default: 0.01.
	EnergyFloor float64 `yaml:"energy_floor"`
}

// MatchConfig holds the profile matcher's decision thresholds.
type MatchConfig struct {
	// TAuto is the similarity at or above which the top candidate is an
	// automatic match. Must exceed TAmbiguous. Default: 0.85.
	TAuto float64 `yaml:"t_auto"`

	// TAmbiguous is the similarity at or above which candidates go out for
	// external confirmation. Default: 0.70.
	TAmbiguous float64 `yaml:"t_ambiguous"`

	// TopK is the number of candidates an ambiguous result carries.
	// Default: 3.
	TopK int `yaml:"top_k"`

	// FeaturePenalty weights the scalar-feature distance penalty applied to
	// cosine similarity. Zero disables it. Default: 0.15.
	FeaturePenalty float64 `yaml:"feature_penalty"`
}

// MergeConfig holds the profile merger's settings.
type MergeConfig struct {
	// MaxWeight clamps the merge weight of a single session signature.
	// Default: 5.
	MaxWeight float64 `yaml:"max_weight"`

	// MaxRetries bounds conflict-retry rounds per merge. Default: 3.
	MaxRetries int `yaml:"max_retries"`
}

// StoreConfig selects and configures profile persistence.
type StoreConfig struct {
	// PostgresDSN is the connection string for the profile store. When
	// empty, profiles are held in memory and lost at exit.
	PostgresDSN string `yaml:"postgres_dsn"`

	// EmbeddingDimensions must match the extractor's embedding length.
	// Default: 32.
	EmbeddingDimensions int `yaml:"embedding_dimensions"`
}

// ASRConfig selects the speech-recognition provider.
type ASRConfig struct {
	// Name selects the provider implementation ("whisper" or "mock").
	Name string `yaml:"name"`

	// ModelPath is the path to the whisper.cpp model file.
	ModelPath string `yaml:"model_path"`

	// Language is the BCP-47 language code for transcription. Default: "en".
	Language string `yaml:"language"`
}

// DiarizeConfig selects the diarization provider.
type DiarizeConfig struct {
	// Name selects the provider implementation ("energy" or "mock").
	Name string `yaml:"name"`

	// SilenceFloor is the RMS level separating turns for the energy
	// diarizer. Default: 0.01.
	SilenceFloor float64 `yaml:"silence_floor"`
}

// OutputConfig holds report output locations.
type OutputConfig struct {
	// TranscriptDir receives per-recording CSV transcripts. Default:
	// "out/transcripts".
	TranscriptDir string `yaml:"transcript_dir"`

	// ReportDir receives per-recording JSON speaker reports. Default:
	// "out/reports".
	ReportDir string `yaml:"report_dir"`
}
